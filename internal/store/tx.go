package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// Tx is the write scope for stock and cart mutations. Product stock is only ever
// changed through a Tx so that every unit leaving stock is paired with a cart line.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// WithTx runs fn inside BEGIN/COMMIT. Any error returned by fn, or a panic, rolls the
// transaction back and the original error is returned to the caller.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Error("Rollback failed", "error", rbErr, "cause", err)
			}
		}
	}()

	if err = fn(&Tx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *Tx) insertProduct(p *Product) error {
	res, err := t.tx.ExecContext(t.ctx, "INSERT INTO products (name, description, price, category, image_url, stock) VALUES (?, ?, ?, ?, ?, ?)",
		p.Name, p.Description, p.Price, p.Category, p.ImageURL, p.Stock)
	if err != nil {
		return fmt.Errorf("failed to insert product %q: %w", p.Name, err)
	}
	p.ID, _ = res.LastInsertId()
	return nil
}

func (t *Tx) GetProduct(id int64) (*Product, error) {
	var p Product
	err := scanProduct(t.tx.QueryRowContext(t.ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id), &p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// AdjustStock adds delta (which may be negative) to the product's stock.
func (t *Tx) AdjustStock(productID, delta int64) error {
	res, err := t.tx.ExecContext(t.ctx, "UPDATE products SET stock = stock + ? WHERE id = ?", delta, productID)
	if err != nil {
		return fmt.Errorf("failed to adjust stock for product %d: %w", productID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) GetCartItem(id int64) (*CartItem, error) {
	var item CartItem
	err := t.tx.QueryRowContext(t.ctx, "SELECT id, user_id, product_id, quantity, created_at FROM cart_items WHERE id = ?", id).
		Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return &item, nil
}

// FindCartItem looks up the single line a user holds for a product.
func (t *Tx) FindCartItem(userID, productID int64) (*CartItem, error) {
	var item CartItem
	err := t.tx.QueryRowContext(t.ctx, "SELECT id, user_id, product_id, quantity, created_at FROM cart_items WHERE user_id = ? AND product_id = ?", userID, productID).
		Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find cart item: %w", err)
	}
	return &item, nil
}

func (t *Tx) InsertCartItem(item *CartItem) error {
	item.CreatedAt = now()
	res, err := t.tx.ExecContext(t.ctx, "INSERT INTO cart_items (user_id, product_id, quantity, created_at) VALUES (?, ?, ?, ?)",
		item.UserID, item.ProductID, item.Quantity, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert cart item: %w", err)
	}
	item.ID, _ = res.LastInsertId()
	return nil
}

func (t *Tx) SetCartItemQuantity(id, quantity int64) error {
	res, err := t.tx.ExecContext(t.ctx, "UPDATE cart_items SET quantity = ? WHERE id = ?", quantity, id)
	if err != nil {
		return fmt.Errorf("failed to update cart item quantity: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) DeleteCartItem(id int64) error {
	res, err := t.tx.ExecContext(t.ctx, "DELETE FROM cart_items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) ListCartItems(userID int64) ([]CartItem, error) {
	rows, err := t.tx.QueryContext(t.ctx, "SELECT id, user_id, product_id, quantity, created_at FROM cart_items WHERE user_id = ? ORDER BY id ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	var items []CartItem
	for rows.Next() {
		var item CartItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *Tx) DeleteCartItemsByUser(userID int64) (int64, error) {
	res, err := t.tx.ExecContext(t.ctx, "DELETE FROM cart_items WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart items: %w", err)
	}
	return res.RowsAffected()
}

func (t *Tx) GetCartLine(id int64) (*CartLine, error) {
	var l CartLine
	err := scanCartLine(t.tx.QueryRowContext(t.ctx, cartLineQuery+" WHERE c.id = ?", id), &l)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cart line: %w", err)
	}
	return &l, nil
}
