// Package provider defines the email delivery collaborator: an external
// send(EmailData) -> Result contract. SESProvider binds that contract to
// aws-sdk-go-v2/service/sesv2; MockProvider satisfies it synthetically for
// non-production environments.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EmailData is the rendered send intent handed to a Provider.
type EmailData struct {
	To         string
	Subject    string
	Body       string
	LeadID     string
	SequenceID string
	StepID     string
	TemplateID string
	FromEmail  string
	FromName   string
	ReplyTo    string
	CC         []string
	BCC        []string
}

// Result is what a Provider returns for a completed (or failed) send.
type Result struct {
	Success   bool
	MessageID string
}

// Provider is the email delivery contract: send(EmailData) -> Result, with
// ctx carrying the caller-specified timeout on every outbound call.
type Provider interface {
	Send(ctx context.Context, data EmailData) (Result, error)
}

// RetryConfig bounds a Provider's internal retry behavior: up to Attempts
// tries with linear backoff (BaseDelay * attempt).
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryConfig returns the standard 3-attempt, 200ms-linear-backoff policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, BaseDelay: 200 * time.Millisecond}
}

// withRetry runs send up to cfg.Attempts times with linear backoff,
// returning the first success or the last error.
func withRetry(ctx context.Context, cfg RetryConfig, send func(ctx context.Context) (Result, error)) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		res, err := send(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if attempt == cfg.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(cfg.BaseDelay * time.Duration(attempt)):
		}
	}
	return Result{}, fmt.Errorf("send failed after %d attempts: %w", cfg.Attempts, lastErr)
}

// MockProvider returns a synthetic success for every send, used outside
// production so local and staging runs never touch a real mail provider.
type MockProvider struct{}

// NewMockProvider creates a MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Send always succeeds with a synthetic message id.
func (p *MockProvider) Send(ctx context.Context, data EmailData) (Result, error) {
	return Result{Success: true, MessageID: "mock-" + uuid.NewString()}, nil
}
