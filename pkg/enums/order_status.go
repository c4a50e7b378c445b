package enums

import "slices"

// OrderStatus is always "placed" today; payment and fulfilment states
// are handled outside this service.
type OrderStatus string

const OrderStatusPlaced OrderStatus = "placed"

var orderStatuses = []OrderStatus{OrderStatusPlaced}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return slices.Contains(orderStatuses, s) }

func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse("order status", orderStatuses, value)
}
