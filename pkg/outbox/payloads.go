package outbox

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderPlacedItem struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderPlacedEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	UserID      uuid.UUID         `json:"userId"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	Items       []OrderPlacedItem `json:"items"`
}

type CartExpiredEvent struct {
	CartID        uuid.UUID `json:"cartId"`
	UserID        uuid.UUID `json:"userId"`
	ReleasedUnits int64     `json:"releasedUnits"`
}

type ReservationDriftedEvent struct {
	ProductID uuid.UUID `json:"productId"`
	Reserved  int64     `json:"reserved"`
	Held      int64     `json:"held"`
}
