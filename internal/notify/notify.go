// Package notify reports successful registrations to an external logging endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// StatusSuccess is the status sent for a completed registration.
const StatusSuccess = "Success"

// Registration is the payload posted after a person is enrolled.
type Registration struct {
	PersonID        string `json:"person_id"`
	PersonName      string `json:"person_name,omitempty"`
	OrganizationID  string `json:"organization_id"`
	Tenant          string `json:"tenant"`
	EmbeddingsSaved int    `json:"embeddings_saved"`
	Status          string `json:"status"`
}

// Notifier delivers registration events.
type Notifier interface {
	Registered(ctx context.Context, reg Registration) error
}

// Nop discards every event. It is used when no endpoint is configured.
type Nop struct{}

// Registered implements Notifier.
func (Nop) Registered(context.Context, Registration) error { return nil }

// HTTPNotifier posts events as JSON.
type HTTPNotifier struct {
	url        string
	client     *http.Client
	maxRetries uint64
	retryBase  time.Duration
	logger     *zap.Logger
}

// New returns an HTTPNotifier for url, or Nop when url is empty.
func New(url string, logger *zap.Logger) Notifier {
	if url == "" {
		return Nop{}
	}
	return NewHTTP(url, 3, 500*time.Millisecond, logger)
}

// NewHTTP creates an HTTPNotifier with explicit retry settings.
func NewHTTP(url string, maxRetries uint64, retryBase time.Duration, logger *zap.Logger) *HTTPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPNotifier{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: maxRetries,
		retryBase:  retryBase,
		logger:     logger,
	}
}

// Registered posts reg, retrying network failures and 5xx responses.
func (n *HTTPNotifier) Registered(ctx context.Context, reg Registration) error {
	if reg.Status == "" {
		reg.Status = StatusSuccess
	}
	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("failed to marshal registration: %w", err)
	}

	backoff := retry.WithMaxRetries(n.maxRetries, retry.NewFibonacci(n.retryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		return n.post(ctx, body)
	})
	if err != nil {
		n.logger.Warn("failed to log registration", zap.String("person_id", reg.PersonID), zap.Error(err))
		return err
	}
	return nil
}

func (n *HTTPNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	err = fmt.Errorf("registration log error (status %d): %s", resp.StatusCode, string(msg))
	if resp.StatusCode >= http.StatusInternalServerError {
		return retry.RetryableError(err)
	}
	return err
}
