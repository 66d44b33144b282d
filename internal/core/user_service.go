package core

import (
	"context"
	"errors"
	"fmt"

	"portal.health/patient-portal/internal/store"
)

var ErrUserExists = errors.New("user already exists")

type UserService struct {
	dbStore *store.SQLiteStore
}

func NewUserService(db *store.SQLiteStore) *UserService {
	return &UserService{dbStore: db}
}

// GetUserByExternalID returns nil without error when the user does not exist.
func (s *UserService) GetUserByExternalID(ctx context.Context, externalUserID string) (*store.User, error) {
	return s.dbStore.GetUserByExternalID(ctx, externalUserID)
}

func (s *UserService) CreateUser(ctx context.Context, externalUserID, passwordHash string) (*store.User, error) {
	existing, err := s.dbStore.GetUserByExternalID(ctx, externalUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrUserExists
	}
	return s.dbStore.CreateUser(ctx, externalUserID, passwordHash)
}
