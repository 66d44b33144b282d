package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes write transactions and keeps ":memory:" databases
	// on one handle.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance tasks and tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        external_user_id TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS products (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        price INTEGER NOT NULL CHECK (price >= 0),
        category TEXT NOT NULL CHECK (category IN ('Herbs', 'Supplements')),
        image_url TEXT NOT NULL DEFAULT '',
        stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0)
    );

    CREATE TABLE IF NOT EXISTS cart_items (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id INTEGER NOT NULL,
        product_id INTEGER NOT NULL,
        quantity INTEGER NOT NULL CHECK (quantity > 0),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (user_id, product_id),
        FOREIGN KEY (user_id) REFERENCES users (id),
        FOREIGN KEY (product_id) REFERENCES products (id)
    );
    CREATE INDEX IF NOT EXISTS idx_cart_items_user ON cart_items (user_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods
func (s *SQLiteStore) GetUserByExternalID(ctx context.Context, externalUserID string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, "SELECT id, external_user_id, password_hash, created_at FROM users WHERE external_user_id = ?", externalUserID).Scan(&user.ID, &user.ExternalUserID, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, externalUserID, passwordHash string) (*User, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO users (external_user_id, password_hash) VALUES (?, ?)", externalUserID, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.getUserByID(ctx, id)
}

func (s *SQLiteStore) getUserByID(ctx context.Context, id int64) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, "SELECT id, external_user_id, password_hash, created_at FROM users WHERE id = ?", id).Scan(&user.ID, &user.ExternalUserID, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Product methods
const productColumns = "id, name, description, price, category, image_url, stock"

func scanProduct(row interface{ Scan(...any) error }, p *Product) error {
	return row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.ImageURL, &p.Stock)
}

func (s *SQLiteStore) CreateProduct(ctx context.Context, p *Product) error {
	stmt, err := s.db.PrepareContext(ctx, "INSERT INTO products (name, description, price, category, image_url, stock) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare product insert: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, p.Name, p.Description, p.Price, p.Category, p.ImageURL, p.Stock)
	if err != nil {
		return fmt.Errorf("failed to execute product insert: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetProductByID(ctx context.Context, id int64) (*Product, error) {
	var p Product
	err := scanProduct(s.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id), &p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) GetAllProducts(ctx context.Context) ([]Product, error) {
	return s.queryProducts(ctx, "SELECT "+productColumns+" FROM products ORDER BY id ASC")
}

func (s *SQLiteStore) GetProductsByCategory(ctx context.Context, category Category) ([]Product, error) {
	return s.queryProducts(ctx, "SELECT "+productColumns+" FROM products WHERE category = ? ORDER BY id ASC", category)
}

func (s *SQLiteStore) queryProducts(ctx context.Context, query string, args ...any) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CountProducts is used by seeding to stay idempotent.
func (s *SQLiteStore) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

// SeedProducts inserts the given catalogue when the products table is empty.
func (s *SQLiteStore) SeedProducts(ctx context.Context, products []Product) (int, error) {
	n, err := s.CountProducts(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Products already present, skipping seed", "count", n)
		return 0, nil
	}

	inserted := 0
	err = s.WithTx(ctx, func(tx *Tx) error {
		for i := range products {
			if err := tx.insertProduct(&products[i]); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Cart reads
const cartLineQuery = `
    SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at,
           p.id, p.name, p.description, p.price, p.category, p.image_url, p.stock
    FROM cart_items c
    JOIN products p ON p.id = c.product_id
`

func scanCartLine(row interface{ Scan(...any) error }, l *CartLine) error {
	var createdAt sql.NullTime
	err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &createdAt,
		&l.Product.ID, &l.Product.Name, &l.Product.Description, &l.Product.Price,
		&l.Product.Category, &l.Product.ImageURL, &l.Product.Stock)
	if err != nil {
		return err
	}
	if createdAt.Valid {
		l.CreatedAt = createdAt.Time
	}
	return nil
}

func (s *SQLiteStore) GetCartLinesByUserID(ctx context.Context, userID int64) ([]CartLine, error) {
	rows, err := s.db.QueryContext(ctx, cartLineQuery+" WHERE c.user_id = ? ORDER BY c.created_at ASC, c.id ASC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	lines := []CartLine{}
	for rows.Next() {
		var l CartLine
		if err := scanCartLine(rows, &l); err != nil {
			return nil, fmt.Errorf("failed to scan cart item row: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *SQLiteStore) GetCartLine(ctx context.Context, cartItemID int64) (*CartLine, error) {
	var l CartLine
	err := scanCartLine(s.db.QueryRowContext(ctx, cartLineQuery+" WHERE c.id = ?", cartItemID), &l)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return &l, nil
}

func now() time.Time {
	return time.Now().UTC()
}
