package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/domain"
	"github.com/servilink/payhold/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

type mockEngine struct {
	ApplyFn func(ctx context.Context, evt *application.ProcessorEvent) error
	Calls   int
}

func (m *mockEngine) ApplyProcessorEvent(ctx context.Context, evt *application.ProcessorEvent) error {
	m.Calls++
	if m.ApplyFn != nil {
		return m.ApplyFn(ctx, evt)
	}
	return nil
}

type mockEventRepo struct {
	mu       sync.Mutex
	recorded map[string]bool
	outcomes map[string]string

	RecordFn func(ctx context.Context, event *application.ProcessorEvent) error
}

func newMockEventRepo() *mockEventRepo {
	return &mockEventRepo{
		recorded: make(map[string]bool),
		outcomes: make(map[string]string),
	}
}

func (m *mockEventRepo) Record(ctx context.Context, event *application.ProcessorEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordFn != nil {
		return m.RecordFn(ctx, event)
	}
	if m.recorded[event.ID] {
		return application.ErrDuplicateEvent
	}
	m.recorded[event.ID] = true
	return nil
}

func (m *mockEventRepo) MarkProcessed(ctx context.Context, eventID string, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[eventID] = outcome
	return nil
}

func (m *mockEventRepo) Outcome(eventID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[eventID]
}

func newReconciler(engine *mockEngine, events *mockEventRepo) *webhook.Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return webhook.NewReconciler(engine, events, testSecret, logger)
}

func signedEvent(t *testing.T, evt application.ProcessorEvent) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	return body, webhook.Sign(testSecret, body)
}

func testEvent() application.ProcessorEvent {
	return application.ProcessorEvent{
		ID:           "evt_0001",
		Type:         "hold.captured",
		ProcessorRef: "ph_abc",
		OccurredAt:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestSignature_RoundTrip(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	sig := webhook.Sign("secret", body)

	assert.True(t, webhook.VerifySignature("secret", body, sig))
	assert.False(t, webhook.VerifySignature("other", body, sig))
	assert.False(t, webhook.VerifySignature("secret", []byte(`{"id":"evt_2"}`), sig))
	assert.False(t, webhook.VerifySignature("secret", body, "deadbeef"))
}

func TestProcess_AppliesVerifiedEvent(t *testing.T) {
	engine := &mockEngine{}
	events := newMockEventRepo()
	r := newReconciler(engine, events)

	body, sig := signedEvent(t, testEvent())
	require.NoError(t, r.Process(context.Background(), body, sig))

	assert.Equal(t, 1, engine.Calls)
	assert.Equal(t, "applied", events.Outcome("evt_0001"))
}

func TestProcess_RejectsBadSignature(t *testing.T) {
	engine := &mockEngine{}
	events := newMockEventRepo()
	r := newReconciler(engine, events)

	body, _ := signedEvent(t, testEvent())

	err := r.Process(context.Background(), body, "not-the-signature")
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeBadSignature, svcErr.Code)
	assert.Zero(t, engine.Calls)

	err = r.Process(context.Background(), body, "")
	require.Error(t, err)
	assert.Zero(t, engine.Calls)
}

func TestProcess_RejectsMalformedPayload(t *testing.T) {
	engine := &mockEngine{}
	events := newMockEventRepo()
	r := newReconciler(engine, events)

	body := []byte(`{not json`)
	err := r.Process(context.Background(), body, webhook.Sign(testSecret, body))
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeInvalidInput, svcErr.Code)
	assert.Zero(t, engine.Calls)
}

func TestProcess_RejectsIncompleteEvent(t *testing.T) {
	engine := &mockEngine{}
	events := newMockEventRepo()
	r := newReconciler(engine, events)

	evt := testEvent()
	evt.ProcessorRef = ""
	body, sig := signedEvent(t, evt)

	err := r.Process(context.Background(), body, sig)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeInvalidInput, svcErr.Code)
}

func TestProcess_RedeliveryStillReachesEngine(t *testing.T) {
	// A redelivered event may not have been applied the first time; the
	// engine's staleness check decides, not the dedupe insert.
	staleAfterFirst := false
	engine := &mockEngine{
		ApplyFn: func(ctx context.Context, evt *application.ProcessorEvent) error {
			if staleAfterFirst {
				return domain.NewStaleEventError(evt.ID)
			}
			staleAfterFirst = true
			return nil
		},
	}
	events := newMockEventRepo()
	r := newReconciler(engine, events)

	body, sig := signedEvent(t, testEvent())
	require.NoError(t, r.Process(context.Background(), body, sig))
	require.NoError(t, r.Process(context.Background(), body, sig))

	assert.Equal(t, 2, engine.Calls)
	assert.Equal(t, "stale", events.Outcome("evt_0001"))
}

func TestProcess_DiscardsConflictingEvent(t *testing.T) {
	engine := &mockEngine{
		ApplyFn: func(ctx context.Context, evt *application.ProcessorEvent) error {
			return domain.NewAlreadyTerminalError("hold-1", domain.StateCaptured)
		},
	}
	events := newMockEventRepo()
	r := newReconciler(engine, events)

	body, sig := signedEvent(t, testEvent())
	require.NoError(t, r.Process(context.Background(), body, sig))
	assert.Equal(t, "discarded", events.Outcome("evt_0001"))
}

func TestProcess_AcknowledgesOrphanedEvent(t *testing.T) {
	engine := &mockEngine{
		ApplyFn: func(ctx context.Context, evt *application.ProcessorEvent) error {
			return domain.NewHoldNotFoundError(evt.ProcessorRef)
		},
	}
	events := newMockEventRepo()
	r := newReconciler(engine, events)

	body, sig := signedEvent(t, testEvent())
	require.NoError(t, r.Process(context.Background(), body, sig))
	assert.Equal(t, "orphaned", events.Outcome("evt_0001"))
}

func TestProcess_TransientFailureTriggersRedelivery(t *testing.T) {
	engine := &mockEngine{
		ApplyFn: func(ctx context.Context, evt *application.ProcessorEvent) error {
			return application.NewTransientError(errors.New("db down"))
		},
	}
	events := newMockEventRepo()
	r := newReconciler(engine, events)

	body, sig := signedEvent(t, testEvent())
	err := r.Process(context.Background(), body, sig)
	require.Error(t, err)

	// Not marked processed; the processor will redeliver.
	assert.Empty(t, events.Outcome("evt_0001"))
}

func TestProcess_RecordFailureIsInternal(t *testing.T) {
	engine := &mockEngine{}
	events := newMockEventRepo()
	events.RecordFn = func(ctx context.Context, event *application.ProcessorEvent) error {
		return errors.New("insert failed")
	}
	r := newReconciler(engine, events)

	body, sig := signedEvent(t, testEvent())
	err := r.Process(context.Background(), body, sig)
	svcErr, ok := application.IsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, application.ErrCodeInternal, svcErr.Code)
	assert.Zero(t, engine.Calls)
}
