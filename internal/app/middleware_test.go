package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klokku/habitweek/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserContextMiddleware(t *testing.T) {
	userService := user.NewUserService(user.NewStubUserRepository())
	created, err := userService.CreateUser(context.Background(), user.User{Uid: "idp-7", Username: "jane", DisplayName: "Jane"})
	require.NoError(t, err)

	var seen *user.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = nil
		if u, err := user.CurrentUser(r.Context()); err == nil {
			seen = &u
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := userContextMiddleware(userService)(next)

	t.Run("puts the known user in the context", func(t *testing.T) {
		// given
		req := httptest.NewRequest(http.MethodGet, "/api/user/current", nil)
		req.Header.Set("X-User-Id", "idp-7")
		w := httptest.NewRecorder()

		// when
		handler.ServeHTTP(w, req)

		// then
		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, seen)
		assert.Equal(t, created, *seen)
	})

	t.Run("rejects an unknown user", func(t *testing.T) {
		// given
		req := httptest.NewRequest(http.MethodGet, "/api/user/current", nil)
		req.Header.Set("X-User-Id", "someone-else")
		w := httptest.NewRecorder()

		// when
		handler.ServeHTTP(w, req)

		// then
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("passes anonymous requests through", func(t *testing.T) {
		// given
		req := httptest.NewRequest(http.MethodPost, "/api/user", nil)
		w := httptest.NewRecorder()

		// when
		handler.ServeHTTP(w, req)

		// then
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, seen)
	})
}
