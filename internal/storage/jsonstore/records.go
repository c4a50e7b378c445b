package jsonstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/storage"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
)

func (d *document) product(id uuid.UUID) *models.Product {
	for i := range d.Products {
		if d.Products[i].ID == id {
			return &d.Products[i]
		}
	}
	return nil
}

func (d *document) cart(userID uuid.UUID) *models.Cart {
	for i := range d.Carts {
		if d.Carts[i].UserID == userID {
			return &d.Carts[i]
		}
	}
	return nil
}

func copyCart(c *models.Cart) *models.Cart {
	out := *c
	out.Items = append([]models.CartItem(nil), c.Items...)
	return &out
}

func copyOrder(o *models.Order) *models.Order {
	out := *o
	out.Items = append([]models.OrderItem(nil), o.Items...)
	return &out
}

func (s *Store) GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var out *models.Product
	err := s.read(func(doc *document) error {
		p := doc.product(id)
		if p == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		copied := *p
		out = &copied
		return nil
	})
	return out, err
}

func (s *Store) ListProducts(ctx context.Context, params pagination.Params) ([]models.Product, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	want := pagination.LimitWithBuffer(params.Limit)

	var rows []models.Product
	err = s.read(func(doc *document) error {
		all := slices.Clone(doc.Products)
		slices.SortFunc(all, func(a, b models.Product) int {
			return pagination.Compare(productKey(a), productKey(b))
		})
		for _, p := range all {
			if !cursor.Admits(productKey(p)) {
				continue
			}
			rows = append(rows, p)
			if len(rows) == want {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	page, next := pagination.Page(rows, params.Limit, productKey)
	return page, next, nil
}

func productKey(p models.Product) pagination.Cursor {
	return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	if product.Stock != nil {
		return unsupported("inventory tracking")
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	now := time.Now().UTC()
	product.Reserved = 0
	product.CreatedAt = now
	product.UpdatedAt = now
	return s.write(ctx, func(doc *document) error {
		if doc.product(product.ID) != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "product already exists")
		}
		doc.Products = append(doc.Products, *product)
		return nil
	})
}

// SetProductStock only accepts nil: without a ledger every product stays
// untracked, so cart operations never reach the unsupported ledger methods.
func (s *Store) SetProductStock(ctx context.Context, id uuid.UUID, stock *int64) (*models.Product, error) {
	if stock != nil {
		return nil, unsupported("inventory tracking")
	}
	var out *models.Product
	err := s.write(ctx, func(doc *document) error {
		p := doc.product(id)
		if p == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		p.Stock = nil
		p.Reserved = 0
		p.UpdatedAt = time.Now().UTC()
		copied := *p
		out = &copied
		return nil
	})
	return out, err
}

func (s *Store) GetCartByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var out *models.Cart
	err := s.read(func(doc *document) error {
		c := doc.cart(userID)
		if c == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		out = copyCart(c)
		return nil
	})
	return out, err
}

func (s *Store) CreateCart(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	if cart == nil || cart.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart user is required")
	}
	var out *models.Cart
	err := s.write(ctx, func(doc *document) error {
		if existing := doc.cart(cart.UserID); existing != nil {
			out = copyCart(existing)
			return nil
		}
		now := time.Now().UTC()
		row := models.Cart{
			ID:        cart.ID,
			UserID:    cart.UserID,
			Version:   1,
			Items:     normalizeItems(uuid.Nil, cart.Items, now),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		for i := range row.Items {
			row.Items[i].CartID = row.ID
		}
		doc.Carts = append(doc.Carts, row)
		out = copyCart(&row)
		return nil
	})
	return out, err
}

func (s *Store) UpdateCart(ctx context.Context, userID uuid.UUID, update storage.CartUpdate) (*models.Cart, error) {
	var out *models.Cart
	err := s.write(ctx, func(doc *document) error {
		c := doc.cart(userID)
		if c == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		if c.Version != update.ExpectedVersion {
			return pkgerrors.New(pkgerrors.CodeConflict, "cart was modified concurrently").
				WithDetails(map[string]any{"expectedVersion": update.ExpectedVersion, "currentVersion": c.Version})
		}
		now := time.Now().UTC()
		c.Items = normalizeItems(c.ID, update.Items, now)
		c.Version++
		c.UpdatedAt = now
		out = copyCart(c)
		return nil
	})
	return out, err
}

func normalizeItems(cartID uuid.UUID, items []models.CartItem, now time.Time) []models.CartItem {
	out := make([]models.CartItem, len(items))
	for i, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.CartID = cartID
		item.Position = i
		out[i] = item
	}
	return out
}

func (s *Store) ListIdleCarts(ctx context.Context, cutoff time.Time, limit int) ([]models.Cart, error) {
	var out []models.Cart
	err := s.read(func(doc *document) error {
		for i := range doc.Carts {
			c := &doc.Carts[i]
			if len(c.Items) > 0 && c.UpdatedAt.Before(cutoff) {
				out = append(out, *copyCart(c))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
		order.Items[i].Position = i
	}
	return s.write(ctx, func(doc *document) error {
		doc.Orders = append(doc.Orders, *copyOrder(order))
		return nil
	})
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var out *models.Order
	err := s.read(func(doc *document) error {
		for i := range doc.Orders {
			if doc.Orders[i].ID == id {
				out = copyOrder(&doc.Orders[i])
				return nil
			}
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	})
	return out, err
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Order, error) {
	var out []models.Order
	err := s.read(func(doc *document) error {
		for i := range doc.Orders {
			if doc.Orders[i].UserID == userID {
				out = append(out, *copyOrder(&doc.Orders[i]))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	return s.write(ctx, func(doc *document) error {
		for _, existing := range doc.Users {
			if existing.Email == user.Email {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
		}
		doc.Users = append(doc.Users, *user)
		return nil
	})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var out *models.User
	err := s.read(func(doc *document) error {
		for _, u := range doc.Users {
			if u.Email == email {
				copied := u
				out = &copied
				return nil
			}
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	})
	return out, err
}
