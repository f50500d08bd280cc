package test_utils

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/habitweek/pkg/user"
	"github.com/stretchr/testify/require"
)

// CreateTestUser inserts a user row, which daily records and summaries reference, and returns it.
func CreateTestUser(t *testing.T, ctx context.Context, db *pgxpool.Pool, username string) user.User {
	t.Helper()
	u := user.User{
		Uid:         uuid.NewString(),
		Username:    username,
		DisplayName: "Test " + username,
		Settings:    user.Settings{Timezone: "Europe/Warsaw"},
	}
	id, err := user.NewUserRepo(db).CreateUser(ctx, u)
	require.NoError(t, err)
	u.Id = id
	return u
}
