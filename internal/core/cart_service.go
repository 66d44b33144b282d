package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"portal.health/patient-portal/internal/metrics"
	"portal.health/patient-portal/internal/store"
)

// CartService keeps product stock and cart quantities consistent. Every mutation runs
// in a single store transaction: a unit leaving stock always lands in exactly one cart
// line and a unit returned to stock always leaves one.
type CartService struct {
	dbStore *store.SQLiteStore
}

func NewCartService(db *store.SQLiteStore) *CartService {
	return &CartService{dbStore: db}
}

// CartSummary is a user's cart with totals in minor currency units.
type CartSummary struct {
	Items      []store.CartLine `json:"items"`
	ItemCount  int64            `json:"item_count"`
	TotalPrice int64            `json:"total_price"`
}

func (s *CartService) GetAllProducts(ctx context.Context) ([]store.Product, error) {
	return s.dbStore.GetAllProducts(ctx)
}

func (s *CartService) GetProductsByCategory(ctx context.Context, category store.Category) ([]store.Product, error) {
	if !category.Valid() {
		return nil, ErrInvalidCategory
	}
	return s.dbStore.GetProductsByCategory(ctx, category)
}

func (s *CartService) GetCartItems(ctx context.Context, userID int64) ([]store.CartLine, error) {
	return s.dbStore.GetCartLinesByUserID(ctx, userID)
}

// GetCartLine is used by callers to check ownership before mutating a line.
func (s *CartService) GetCartLine(ctx context.Context, cartItemID int64) (*store.CartLine, error) {
	line, err := s.dbStore.GetCartLine(ctx, cartItemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCartItemNotFound
	}
	return line, err
}

func (s *CartService) CartSummary(ctx context.Context, userID int64) (*CartSummary, error) {
	lines, err := s.dbStore.GetCartLinesByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := &CartSummary{Items: lines}
	for _, l := range lines {
		summary.ItemCount += l.Quantity
		summary.TotalPrice += l.Quantity * l.Product.Price
	}
	return summary, nil
}

// AddToCart reserves one unit of the product for the user.
func (s *CartService) AddToCart(ctx context.Context, userID, productID int64) (line *store.CartLine, err error) {
	defer func() { metrics.CartOperation("add", err) }()

	err = s.dbStore.WithTx(ctx, func(tx *store.Tx) error {
		product, err := tx.GetProduct(productID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}
		if product.Stock <= 0 {
			return ErrOutOfStock
		}

		item, err := tx.FindCartItem(userID, productID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			item = &store.CartItem{UserID: userID, ProductID: productID, Quantity: 1}
			if err := tx.InsertCartItem(item); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.SetCartItemQuantity(item.ID, item.Quantity+1); err != nil {
				return err
			}
		}

		if err := tx.AdjustStock(productID, -1); err != nil {
			return err
		}
		line, err = tx.GetCartLine(item.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Added product to cart", "user_id", userID, "product_id", productID, "quantity", line.Quantity, "stock", line.Product.Stock)
	return line, nil
}

// UpdateQuantity sets a cart line to newQuantity, consuming or returning stock by the
// difference. A quantity of zero removes the line and returns a nil line.
func (s *CartService) UpdateQuantity(ctx context.Context, cartItemID, newQuantity int64) (line *store.CartLine, err error) {
	defer func() { metrics.CartOperation("update", err) }()

	if newQuantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if newQuantity == 0 {
		if err = s.dbStore.WithTx(ctx, func(tx *store.Tx) error { return removeLine(tx, cartItemID) }); err != nil {
			return nil, err
		}
		slog.Info("Removed cart item", "cart_item_id", cartItemID, "via", "update")
		return nil, nil
	}

	err = s.dbStore.WithTx(ctx, func(tx *store.Tx) error {
		item, err := tx.GetCartItem(cartItemID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrCartItemNotFound
		}
		if err != nil {
			return err
		}
		product, err := tx.GetProduct(item.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrProductNotFound
		}
		if err != nil {
			return err
		}

		delta := newQuantity - item.Quantity
		if delta > 0 && product.Stock < delta {
			return fmt.Errorf("%w: requested %d more, %d available", ErrNotEnoughStock, delta, product.Stock)
		}

		if err := tx.SetCartItemQuantity(item.ID, newQuantity); err != nil {
			return err
		}
		if delta != 0 {
			if err := tx.AdjustStock(product.ID, -delta); err != nil {
				return err
			}
		}
		line, err = tx.GetCartLine(item.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Updated cart item quantity", "cart_item_id", cartItemID, "quantity", newQuantity, "stock", line.Product.Stock)
	return line, nil
}

// RemoveFromCart deletes a cart line and returns its quantity to stock.
func (s *CartService) RemoveFromCart(ctx context.Context, cartItemID int64) (err error) {
	defer func() { metrics.CartOperation("remove", err) }()

	err = s.dbStore.WithTx(ctx, func(tx *store.Tx) error {
		return removeLine(tx, cartItemID)
	})
	if err != nil {
		return err
	}

	slog.Info("Removed cart item", "cart_item_id", cartItemID)
	return nil
}

func removeLine(tx *store.Tx, cartItemID int64) error {
	item, err := tx.GetCartItem(cartItemID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrCartItemNotFound
	}
	if err != nil {
		return err
	}
	if err := tx.AdjustStock(item.ProductID, item.Quantity); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrProductNotFound
		}
		return err
	}
	return tx.DeleteCartItem(item.ID)
}

// ClearCart returns every line of the user's cart to stock and deletes the lines.
// Either all restorations commit or none do.
func (s *CartService) ClearCart(ctx context.Context, userID int64) (err error) {
	defer func() { metrics.CartOperation("clear", err) }()

	var cleared int64
	err = s.dbStore.WithTx(ctx, func(tx *store.Tx) error {
		items, err := tx.ListCartItems(userID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.AdjustStock(item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("%w: product %d", ErrProductNotFound, item.ProductID)
				}
				return err
			}
		}
		cleared, err = tx.DeleteCartItemsByUser(userID)
		return err
	})
	if err != nil {
		return err
	}

	slog.Info("Cleared cart", "user_id", userID, "lines", cleared)
	return nil
}
