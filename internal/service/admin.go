package service

import (
	"context"

	"elearning/internal/apperr"
	"elearning/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *AccountService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, storeError(err)
	}
	return users, nil
}

func (s *AccountService) UpdateRole(ctx context.Context, userID string, role models.UserRole) (models.User, error) {
	if userID == "" {
		return models.User{}, apperr.Validation("User id is required")
	}
	if !role.Valid() {
		return models.User{}, apperr.Validation("Unknown role")
	}

	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		return models.User{}, storeError(err)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, storeError(err)
	}
	return s.refreshSnapshot(ctx, user), nil
}
