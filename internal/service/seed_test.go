package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/gym-roster/internal/model"
	"github.com/iliyamo/gym-roster/internal/repository"
)

func TestEnsureAdminIsIdempotent(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryUserRepo()

	require.NoError(t, EnsureAdmin(ctx, users, " Admin@Gym.test ", "changeme123", bcrypt.MinCost, nil))
	require.NoError(t, EnsureAdmin(ctx, users, "admin@gym.test", "changeme123", bcrypt.MinCost, nil))

	u, err := users.GetUserByEmail(ctx, "admin@gym.test")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)
	assert.Equal(t, uint64(1), u.ID)
	_, err = users.GetUserByID(ctx, 2)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEnsureAdminSkipsEmptyEmailAndShortPassword(t *testing.T) {
	ctx := context.Background()
	users := repository.NewMemoryUserRepo()
	assert.NoError(t, EnsureAdmin(ctx, users, "", "", bcrypt.MinCost, nil))

	err := EnsureAdmin(ctx, users, "admin@gym.test", "short", bcrypt.MinCost, nil)
	var ve *model.ValidationError
	assert.ErrorAs(t, err, &ve)
}
