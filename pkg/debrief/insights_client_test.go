package debrief

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klokku/habitweek/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insightsConfig(baseUrl string) config.Insights {
	return config.Insights{
		Enabled: true,
		BaseUrl: baseUrl,
		ApiKey:  "test-key",
		Model:   "test-model",
		Timeout: 2 * time.Second,
	}
}

func TestChatCompletionsClient_GenerateInsights(t *testing.T) {
	t.Run("posts the snapshot and returns the first choice", func(t *testing.T) {
		// given
		var received chatRequest
		var authorization string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path)
			authorization = r.Header.Get("Authorization")
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Keep walking."}}]}`))
		}))
		defer server.Close()
		client := NewInsightsClient(insightsConfig(server.URL + "/v1/"))

		// when
		text, err := client.GenerateInsights(context.Background(), `{"week":{}}`)

		// then
		require.NoError(t, err)
		assert.Equal(t, "Keep walking.", text)
		assert.Equal(t, "Bearer test-key", authorization)
		assert.Equal(t, "test-model", received.Model)
		require.Len(t, received.Messages, 2)
		assert.Equal(t, "system", received.Messages[0].Role)
		assert.Equal(t, `{"week":{}}`, received.Messages[1].Content)
	})

	t.Run("returns disabled without calling the service", func(t *testing.T) {
		// given
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
		}))
		defer server.Close()
		cfg := insightsConfig(server.URL)
		cfg.Enabled = false
		client := NewInsightsClient(cfg)

		// when
		_, err := client.GenerateInsights(context.Background(), "{}")

		// then
		assert.ErrorIs(t, err, ErrInsightsDisabled)
		assert.Equal(t, 0, calls)
	})

	t.Run("maps service failures to unavailable", func(t *testing.T) {
		// given
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()
		client := NewInsightsClient(insightsConfig(server.URL))

		// when
		_, err := client.GenerateInsights(context.Background(), "{}")

		// then
		assert.ErrorIs(t, err, ErrInsightsUnavailable)
	})

	t.Run("opens the breaker after consecutive failures", func(t *testing.T) {
		// given
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()
		client := NewInsightsClient(insightsConfig(server.URL))
		for i := 0; i < 3; i++ {
			_, _ = client.GenerateInsights(context.Background(), "{}")
		}

		// when
		_, err := client.GenerateInsights(context.Background(), "{}")

		// then
		assert.ErrorIs(t, err, ErrInsightsUnavailable)
		assert.Equal(t, 3, calls)
	})

	t.Run("requests abandoned by the caller do not open the breaker", func(t *testing.T) {
		// given
		var slow atomic.Bool
		slow.Store(true)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slow.Load() {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Rest more."}}]}`))
		}))
		defer server.Close()
		client := NewInsightsClient(insightsConfig(server.URL))
		for i := 0; i < 3; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			_, err := client.GenerateInsights(ctx, "{}")
			cancel()
			require.ErrorIs(t, err, context.DeadlineExceeded)
			require.NotErrorIs(t, err, ErrInsightsUnavailable)
		}
		slow.Store(false)

		// when
		text, err := client.GenerateInsights(context.Background(), "{}")

		// then
		require.NoError(t, err)
		assert.Equal(t, "Rest more.", text)
	})

	t.Run("returns the error of an already cancelled context", func(t *testing.T) {
		// given
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
		}))
		defer server.Close()
		client := NewInsightsClient(insightsConfig(server.URL))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// when
		_, err := client.GenerateInsights(ctx, "{}")

		// then
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, calls)
	})
}
