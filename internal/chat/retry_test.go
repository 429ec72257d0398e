package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()
	if cfg.MaxRetries <= 0 {
		t.Errorf("MaxRetries should be positive, got %d", cfg.MaxRetries)
	}
	if cfg.InitialInterval <= 0 {
		t.Errorf("InitialInterval should be positive, got %v", cfg.InitialInterval)
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		t.Error("MaxInterval should be >= InitialInterval")
	}
}

func TestRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota exceeded", errors.New("quota exceeded for project"), true},
		{"429", errors.New("HTTP 429: Too Many Requests"), true},
		{"503 unavailable", errors.New("503 Service Unavailable"), true},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"timeout", errors.New("request timeout"), true},
		{"case insensitive", errors.New("RATE LIMIT reached"), true},
		{"bad api key", errors.New("invalid API key"), false},
		{"400", errors.New("HTTP 400 Bad Request"), false},
		{"403", errors.New("HTTP 403 Forbidden"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := retryableError(tt.err); got != tt.expected {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestGenerateWithRetry_RecoversFromTransientError(t *testing.T) {
	t.Parallel()

	sc := &script{steps: []scriptStep{
		errStep("HTTP 503 Service Unavailable"),
		textStep("recovered"),
	}}
	a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})
	a.retryConfig = RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}

	resp, err := a.generateWithRetry(context.Background())
	if err != nil {
		t.Fatalf("generateWithRetry() error = %v", err)
	}
	if resp.Text() != "recovered" {
		t.Errorf("generateWithRetry() text = %q, want %q", resp.Text(), "recovered")
	}
	if sc.callCount() != 2 {
		t.Errorf("generate calls = %d, want 2", sc.callCount())
	}
}

func TestGenerateWithRetry_FailsFastOnPermanentError(t *testing.T) {
	t.Parallel()

	sc := &script{steps: []scriptStep{
		errStep("invalid API key"),
		textStep("never reached"),
	}}
	a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})
	a.retryConfig = RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}

	if _, err := a.generateWithRetry(context.Background()); err == nil {
		t.Fatal("generateWithRetry() expected error")
	}
	if sc.callCount() != 1 {
		t.Errorf("generate calls = %d, want 1 (no retry on permanent error)", sc.callCount())
	}
}

func TestGenerateWithRetry_ExhaustsBudget(t *testing.T) {
	t.Parallel()

	sc := &script{steps: []scriptStep{
		errStep("503 unavailable"),
		errStep("503 unavailable"),
		errStep("503 unavailable"),
	}}
	a := newTestAgent(sc, &fakeSource{}, &fakeSource{}, &fakeSource{})
	a.retryConfig = RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}

	if _, err := a.generateWithRetry(context.Background()); err == nil {
		t.Fatal("generateWithRetry() expected error after budget exhaustion")
	}
	if sc.callCount() != 3 {
		t.Errorf("generate calls = %d, want 3 (initial + 2 retries)", sc.callCount())
	}
}
