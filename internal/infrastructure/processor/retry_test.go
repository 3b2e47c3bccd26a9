package processor_test

import (
	"context"
	"sync"
	"testing"

	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/config"
	"github.com/servilink/payhold/internal/infrastructure/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	mu           sync.Mutex
	captureCalls int
	captureFn    func(call int) (*application.CaptureResponse, error)
}

func (s *stubClient) CreateHold(ctx context.Context, req application.CreateHoldRequest, idempotencyKey string) (*application.CreateHoldResponse, error) {
	return &application.CreateHoldResponse{ProcessorRef: "ph_1", Status: "authorized"}, nil
}

func (s *stubClient) Capture(ctx context.Context, processorRef, idempotencyKey string) (*application.CaptureResponse, error) {
	s.mu.Lock()
	s.captureCalls++
	call := s.captureCalls
	s.mu.Unlock()
	return s.captureFn(call)
}

func (s *stubClient) Cancel(ctx context.Context, processorRef, idempotencyKey string) (*application.CancelResponse, error) {
	return &application.CancelResponse{ProcessorRef: processorRef, Status: "canceled"}, nil
}

func (s *stubClient) GetHold(ctx context.Context, processorRef string) (*application.HoldStatusResponse, error) {
	return &application.HoldStatusResponse{ProcessorRef: processorRef, Status: "authorized"}, nil
}

func newRetryClient(inner *stubClient, maxRetries int32) application.ProcessorClient {
	return processor.NewRetryProcessorClient(inner, config.RetryConfig{
		BaseDelay:  0,
		MaxRetries: maxRetries,
	})
}

func TestRetry_TransientFailureThenSuccess(t *testing.T) {
	inner := &stubClient{
		captureFn: func(call int) (*application.CaptureResponse, error) {
			if call == 1 {
				return nil, &application.ProcessorError{Code: "internal_error", StatusCode: 503}
			}
			return &application.CaptureResponse{ProcessorRef: "ph_1", Status: "captured"}, nil
		},
	}
	client := newRetryClient(inner, 3)

	resp, err := client.Capture(context.Background(), "ph_1", "cap-1")
	require.NoError(t, err)
	assert.Equal(t, "captured", resp.Status)
	assert.Equal(t, 2, inner.captureCalls)
}

func TestRetry_DeclineNotRetried(t *testing.T) {
	inner := &stubClient{
		captureFn: func(call int) (*application.CaptureResponse, error) {
			return nil, &application.ProcessorError{Code: "card_declined", StatusCode: 402}
		},
	}
	client := newRetryClient(inner, 3)

	_, err := client.Capture(context.Background(), "ph_1", "cap-1")
	require.Error(t, err)
	assert.Equal(t, 1, inner.captureCalls)
}

func TestRetry_InvalidStateNotRetried(t *testing.T) {
	inner := &stubClient{
		captureFn: func(call int) (*application.CaptureResponse, error) {
			return nil, &application.ProcessorError{Code: "hold_expired", StatusCode: 409}
		},
	}
	client := newRetryClient(inner, 3)

	_, err := client.Capture(context.Background(), "ph_1", "cap-1")
	require.Error(t, err)
	assert.Equal(t, 1, inner.captureCalls)
}

func TestRetry_ExhaustionKeepsTypedError(t *testing.T) {
	inner := &stubClient{
		captureFn: func(call int) (*application.CaptureResponse, error) {
			return nil, &application.ProcessorError{Code: "internal_error", StatusCode: 503}
		},
	}
	client := newRetryClient(inner, 2)

	_, err := client.Capture(context.Background(), "ph_1", "cap-1")
	require.Error(t, err)
	assert.Equal(t, 2, inner.captureCalls)

	// errors.As still reaches the processor error through the wrap.
	procErr, ok := application.IsProcessorError(err)
	require.True(t, ok)
	assert.Equal(t, "internal_error", procErr.Code)
}

func TestRetry_ContextCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := &stubClient{
		captureFn: func(call int) (*application.CaptureResponse, error) {
			cancel()
			return nil, &application.ProcessorError{Code: "internal_error", StatusCode: 503}
		},
	}
	client := newRetryClient(inner, 5)

	_, err := client.Capture(ctx, "ph_1", "cap-1")
	require.Error(t, err)
	assert.LessOrEqual(t, inner.captureCalls, 2)
}
