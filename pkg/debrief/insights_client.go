package debrief

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/klokku/habitweek/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const systemPrompt = `You are a supportive habit coach. You receive a JSON snapshot of one week of habit tracking:
the weekly aggregate, up to three preceding weeks, daily notes and moods, and the user's own reflection.
Reply with a short plain-text debrief: what went well, what to watch, and one concrete focus for next week.`

// InsightsClient turns a week snapshot into free text. The text is returned as produced.
type InsightsClient interface {
	GenerateInsights(ctx context.Context, snapshot string) (string, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatCompletionsClient calls an OpenAI compatible /chat/completions endpoint behind a circuit breaker.
type ChatCompletionsClient struct {
	cfg        config.Insights
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[string]
}

func NewInsightsClient(cfg config.Insights) *ChatCompletionsClient {
	settings := gobreaker.Settings{
		Name:        "insights",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// A caller giving up says nothing about the health of the endpoint.
		IsSuccessful: func(err error) bool {
			var canceled callerCanceledError
			return err == nil || errors.As(err, &canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Infof("circuit breaker %s changed from %s to %s", name, from, to)
		},
	}
	return &ChatCompletionsClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker[string](settings),
	}
}

func (c *ChatCompletionsClient) GenerateInsights(ctx context.Context, snapshot string) (string, error) {
	if !c.cfg.Enabled {
		return "", ErrInsightsDisabled
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := c.breaker.Execute(func() (string, error) {
		text, err := c.complete(ctx, snapshot)
		if err != nil && ctx.Err() != nil {
			return "", callerCanceledError{err: ctx.Err()}
		}
		return text, err
	})
	var canceled callerCanceledError
	if errors.As(err, &canceled) {
		return "", canceled.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		log.Warnf("insights request rejected: %v", err)
		return "", ErrInsightsUnavailable
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInsightsUnavailable, err)
	}
	return text, nil
}

type callerCanceledError struct {
	err error
}

func (e callerCanceledError) Error() string { return e.err.Error() }

func (e callerCanceledError) Unwrap() error { return e.err }

func (c *ChatCompletionsClient) complete(ctx context.Context, snapshot string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: snapshot},
		},
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimSuffix(c.cfg.BaseUrl, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Errorf("Failed to create request: %v", err)
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.ApiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.ApiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Errorf("Failed to execute insights request: %v", err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("insights API returned non-OK status: %d", resp.StatusCode)
		log.Error(err)
		return "", err
	}

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		log.Errorf("Failed to decode insights response: %v", err)
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", errors.New("insights API returned no choices")
	}
	return response.Choices[0].Message.Content, nil
}
