package processor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/config"
)

// RetryProcessorClient retries transient failures with the same idempotency
// key, so a retry can never double a financial effect.
type RetryProcessorClient struct {
	inner      application.ProcessorClient
	baseDelay  time.Duration
	maxRetries int
}

func NewRetryProcessorClient(inner application.ProcessorClient, cfg config.RetryConfig) application.ProcessorClient {
	return &RetryProcessorClient{
		inner:      inner,
		baseDelay:  time.Duration(cfg.BaseDelay) * time.Second,
		maxRetries: int(cfg.MaxRetries),
	}
}

// CreateHold with retry logic
func (r *RetryProcessorClient) CreateHold(ctx context.Context, req application.CreateHoldRequest, idempotencyKey string) (*application.CreateHoldResponse, error) {
	return retry(
		r,
		ctx,
		func(ctx context.Context) (*application.CreateHoldResponse, error) {
			return r.inner.CreateHold(ctx, req, idempotencyKey)
		},
	)
}

// Capture with retry logic
func (r *RetryProcessorClient) Capture(ctx context.Context, processorRef string, idempotencyKey string) (*application.CaptureResponse, error) {
	return retry(
		r,
		ctx,
		func(ctx context.Context) (*application.CaptureResponse, error) {
			return r.inner.Capture(ctx, processorRef, idempotencyKey)
		},
	)
}

// Cancel with retry logic
func (r *RetryProcessorClient) Cancel(ctx context.Context, processorRef string, idempotencyKey string) (*application.CancelResponse, error) {
	return retry(
		r,
		ctx,
		func(ctx context.Context) (*application.CancelResponse, error) {
			return r.inner.Cancel(ctx, processorRef, idempotencyKey)
		},
	)
}

func (r *RetryProcessorClient) GetHold(ctx context.Context, processorRef string) (*application.HoldStatusResponse, error) {
	return retry(
		r,
		ctx,
		func(ctx context.Context) (*application.HoldStatusResponse, error) {
			return r.inner.GetHold(ctx, processorRef)
		},
	)
}

// Generic retry helper
func retry[T any](r *RetryProcessorClient, ctx context.Context, operation func(ctx context.Context) (*T, error)) (*T, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := operation(ctx)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		if attempt < r.maxRetries-1 {
			time.Sleep(r.backoff(attempt))
		}
	}

	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

func isRetryable(err error) bool {
	var procErr *application.ProcessorError
	if errors.As(err, &procErr) {
		return procErr.IsRetryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return true
}

// Backoff calculation with exponential delay and jitter
func (r *RetryProcessorClient) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)

	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond

	return base + jitter
}
