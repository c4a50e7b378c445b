package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/storage"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service exposes catalog reads and the admin stock controls.
type Service interface {
	ListProducts(ctx context.Context, params pagination.Params) (*ProductListResult, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	SetStock(ctx context.Context, id uuid.UUID, stock *int64) (*ProductDTO, error)
}

// CreateProductInput holds the validated payload to create a product. A nil
// Stock creates an untracked product.
type CreateProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	Stock       *int64
}

type service struct {
	store storage.ProductStore
	logg  *logger.Logger
}

func NewService(store storage.ProductStore, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("product store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{store: store, logg: logg}, nil
}

func (s *service) ListProducts(ctx context.Context, params pagination.Params) (*ProductListResult, error) {
	rows, next, err := s.store.ListProducts(ctx, params)
	if err != nil {
		return nil, err
	}
	out := &ProductListResult{Products: make([]ProductDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		out.Products = append(out.Products, toDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toDTO(product)
	return &dto, nil
}

func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be non-negative")
	}
	if err := validateStock(input.Stock); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Price:       input.Price.Round(2),
		ImageURL:    strings.TrimSpace(input.ImageURL),
		Stock:       input.Stock,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithProductID(ctx, product.ID.String()), "product created")
	dto := toDTO(product)
	return &dto, nil
}

// SetStock replaces the stock count, or untracks the product when stock is nil.
func (s *service) SetStock(ctx context.Context, id uuid.UUID, stock *int64) (*ProductDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if err := validateStock(stock); err != nil {
		return nil, err
	}
	product, err := s.store.SetProductStock(ctx, id, stock)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id": id.String(),
		"tracked":    product.Tracked(),
		"reserved":   product.Reserved,
	}), "product stock set")
	dto := toDTO(product)
	return &dto, nil
}

func validateStock(stock *int64) error {
	if stock != nil && *stock < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock must be non-negative")
	}
	return nil
}
