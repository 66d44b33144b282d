package core

import "errors"

// Cart errors. All of them abort the surrounding transaction with no side effects.
var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrOutOfStock       = errors.New("product out of stock")
	ErrNotEnoughStock   = errors.New("not enough stock")
	ErrInvalidQuantity  = errors.New("quantity must not be negative")
	ErrInvalidCategory  = errors.New("unknown product category")
)

// Activity session errors.
var (
	ErrSessionExists   = errors.New("session already exists")
	ErrNoActiveSession = errors.New("no active session found")
	// ErrGeneration wraps failures of the text-generation capability, including timeouts
	// and empty output.
	ErrGeneration = errors.New("text generation failed")
)
