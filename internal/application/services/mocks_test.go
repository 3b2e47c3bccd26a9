package services_test

import (
	"context"
	"sync"
	"time"

	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/domain"
)

// MockHoldRepository is an in-memory HoldRepository with the store's version
// semantics. Individual methods can be overridden through the Fn fields.
type MockHoldRepository struct {
	mu    sync.RWMutex
	holds map[string]*domain.Hold

	CreateFn              func(ctx context.Context, hold *domain.Hold) error
	UpdateFn              func(ctx context.Context, hold *domain.Hold, expectedVersion int64) error
	FindByIDFn            func(ctx context.Context, id string) (*domain.Hold, error)
	FindByProcessorRefFn  func(ctx context.Context, ref string) (*domain.Hold, error)
	FindActiveByOrderIDFn func(ctx context.Context, orderID string) (*domain.Hold, error)

	UpdateCalls int
}

func NewMockHoldRepository() *MockHoldRepository {
	return &MockHoldRepository{holds: make(map[string]*domain.Hold)}
}

func cloneHold(h *domain.Hold) *domain.Hold {
	c := *h
	return &c
}

func (m *MockHoldRepository) Create(ctx context.Context, hold *domain.Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateFn != nil {
		return m.CreateFn(ctx, hold)
	}
	for _, existing := range m.holds {
		if existing.OrderID == hold.OrderID && existing.IsActive() {
			return domain.NewDuplicateActiveHoldError(hold.OrderID)
		}
	}
	m.holds[hold.ID] = cloneHold(hold)
	return nil
}

func (m *MockHoldRepository) Update(ctx context.Context, hold *domain.Hold, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, hold, expectedVersion)
	}
	stored, ok := m.holds[hold.ID]
	if !ok {
		return domain.NewHoldNotFoundError(hold.ID)
	}
	if stored.Version != expectedVersion {
		return domain.NewVersionConflictError(hold.ID)
	}
	hold.Version = expectedVersion + 1
	m.holds[hold.ID] = cloneHold(hold)
	return nil
}

func (m *MockHoldRepository) FindByID(ctx context.Context, id string) (*domain.Hold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindByIDFn != nil {
		return m.FindByIDFn(ctx, id)
	}
	if h, ok := m.holds[id]; ok {
		return cloneHold(h), nil
	}
	return nil, domain.NewHoldNotFoundError(id)
}

func (m *MockHoldRepository) FindByProcessorRef(ctx context.Context, ref string) (*domain.Hold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindByProcessorRefFn != nil {
		return m.FindByProcessorRefFn(ctx, ref)
	}
	for _, h := range m.holds {
		if h.ProcessorRef != nil && *h.ProcessorRef == ref {
			return cloneHold(h), nil
		}
	}
	return nil, domain.NewHoldNotFoundError(ref)
}

func (m *MockHoldRepository) FindActiveByOrderID(ctx context.Context, orderID string) (*domain.Hold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FindActiveByOrderIDFn != nil {
		return m.FindActiveByOrderIDFn(ctx, orderID)
	}
	for _, h := range m.holds {
		if h.OrderID == orderID && h.IsActive() {
			return cloneHold(h), nil
		}
	}
	return nil, domain.NewHoldNotFoundError(orderID)
}

func (m *MockHoldRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Hold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Hold
	for _, h := range m.holds {
		if h.IsActive() && h.IsExpired(now) && len(out) < limit {
			out = append(out, cloneHold(h))
		}
	}
	return out, nil
}

func (m *MockHoldRepository) FindExpiringBefore(ctx context.Context, deadline time.Time, limit int) ([]*domain.Hold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Hold
	for _, h := range m.holds {
		if h.State == domain.StateAuthorized && !h.ExpiresAt.After(deadline) && len(out) < limit {
			out = append(out, cloneHold(h))
		}
	}
	return out, nil
}

// StoredByOrder returns the persisted hold for an order in any state.
func (m *MockHoldRepository) StoredByOrder(orderID string) *domain.Hold {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.holds {
		if h.OrderID == orderID {
			return cloneHold(h)
		}
	}
	return nil
}

// Stored returns the persisted copy of a hold, bypassing any Fn overrides.
func (m *MockHoldRepository) Stored(id string) *domain.Hold {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.holds[id]; ok {
		return cloneHold(h)
	}
	return nil
}

// MockProcessorClient defaults to approving everything. Fn fields override per
// call; call counters track how often the processor was actually hit.
type MockProcessorClient struct {
	mu sync.Mutex

	CreateHoldFn func(ctx context.Context, req application.CreateHoldRequest, idempotencyKey string) (*application.CreateHoldResponse, error)
	CaptureFn    func(ctx context.Context, processorRef, idempotencyKey string) (*application.CaptureResponse, error)
	CancelFn     func(ctx context.Context, processorRef, idempotencyKey string) (*application.CancelResponse, error)
	GetHoldFn    func(ctx context.Context, processorRef string) (*application.HoldStatusResponse, error)

	CreateHoldCalls int
	CaptureCalls    int
	CancelCalls     int
	GetHoldCalls    int
}

func NewMockProcessorClient() *MockProcessorClient {
	return &MockProcessorClient{}
}

func (m *MockProcessorClient) CreateHold(ctx context.Context, req application.CreateHoldRequest, idempotencyKey string) (*application.CreateHoldResponse, error) {
	m.mu.Lock()
	m.CreateHoldCalls++
	fn := m.CreateHoldFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, req, idempotencyKey)
	}
	return &application.CreateHoldResponse{
		ProcessorRef: "ph_" + idempotencyKey,
		Status:       "authorized",
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (m *MockProcessorClient) Capture(ctx context.Context, processorRef, idempotencyKey string) (*application.CaptureResponse, error) {
	m.mu.Lock()
	m.CaptureCalls++
	fn := m.CaptureFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, processorRef, idempotencyKey)
	}
	return &application.CaptureResponse{
		ProcessorRef: processorRef,
		Status:       "captured",
		CapturedAt:   time.Now().UTC(),
	}, nil
}

func (m *MockProcessorClient) Cancel(ctx context.Context, processorRef, idempotencyKey string) (*application.CancelResponse, error) {
	m.mu.Lock()
	m.CancelCalls++
	fn := m.CancelFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, processorRef, idempotencyKey)
	}
	return &application.CancelResponse{
		ProcessorRef: processorRef,
		Status:       "canceled",
		CanceledAt:   time.Now().UTC(),
	}, nil
}

func (m *MockProcessorClient) GetHold(ctx context.Context, processorRef string) (*application.HoldStatusResponse, error) {
	m.mu.Lock()
	m.GetHoldCalls++
	fn := m.GetHoldFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, processorRef)
	}
	return &application.HoldStatusResponse{
		ProcessorRef: processorRef,
		Status:       "authorized",
	}, nil
}

// MockNotifier records every state change it was told about.
type MockNotifier struct {
	mu     sync.Mutex
	states []domain.HoldState
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) HoldStateChanged(ctx context.Context, hold *domain.Hold) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, hold.State)
}

func (m *MockNotifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

func (m *MockNotifier) LastState() domain.HoldState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.states) == 0 {
		return ""
	}
	return m.states[len(m.states)-1]
}

// stubClock is a movable clock for expiry scenarios.
type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock(t time.Time) *stubClock {
	return &stubClock{now: t.UTC()}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
