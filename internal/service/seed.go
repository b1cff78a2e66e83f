package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/iliyamo/gym-roster/internal/model"
	"github.com/iliyamo/gym-roster/internal/repository"
	"github.com/iliyamo/gym-roster/internal/utils"
)

// EnsureAdmin creates the administrator account when no user with email
// exists. An existing account is left untouched, whatever its role.
func EnsureAdmin(ctx context.Context, users repository.UserStore, email, password string, cost int, log *slog.Logger) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}
	if _, err := users.GetUserByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}
	if len(password) < utils.MinPasswordLength {
		return model.NewValidationError("admin_password", "must be at least 8 characters")
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	u := &model.User{Name: "Administrator", Email: email, PasswordHash: hash, Role: model.RoleAdmin}
	if err := users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil
		}
		return fmt.Errorf("create admin: %w", err)
	}
	if log != nil {
		log.Info("admin account created", "user_id", u.ID, "email", email)
	}
	return nil
}
