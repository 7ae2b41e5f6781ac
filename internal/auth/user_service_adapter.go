package auth

import (
	"context"
	"fmt"
	"strings"
)

// UserServiceAdapter exposes account contact details to the subscriptions
// package without it importing auth
type UserServiceAdapter struct {
	repo Repository
}

func NewUserServiceAdapter(repo Repository) *UserServiceAdapter {
	return &UserServiceAdapter{
		repo: repo,
	}
}

// GetContact returns the email and display name of a user
func (usa *UserServiceAdapter) GetContact(ctx context.Context, userID uint) (email, name string, err error) {
	user, err := usa.repo.GetUserByID(ctx, userID)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch user %d: %w", userID, err)
	}

	return user.Email, strings.TrimSpace(user.FirstName + " " + user.LastName), nil
}
