package store

import "time"

type User struct {
	ID             int64     `json:"id"`
	ExternalUserID string    `json:"external_user_id"`
	PasswordHash   string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt      time.Time `json:"created_at"`
}

// Category groups products in the shop.
type Category string

const (
	CategoryHerbs       Category = "Herbs"
	CategorySupplements Category = "Supplements"
)

// Valid reports whether c is one of the known shop categories.
func (c Category) Valid() bool {
	return c == CategoryHerbs || c == CategorySupplements
}

type Product struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"` // minor currency units
	Category    Category `json:"category"`
	ImageURL    string   `json:"image_url"`
	Stock       int64    `json:"stock"`
}

type CartItem struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int64     `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// CartLine is a cart item joined with the product it reserves.
type CartLine struct {
	CartItem
	Product Product `json:"product"`
}
