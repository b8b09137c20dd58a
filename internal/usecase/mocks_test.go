//go:build !integration

package usecase_test

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vendor-payments/internal/domain"
	"vendor-payments/internal/domain/model"
	"vendor-payments/internal/domain/ports/adapter"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &l
}

// MockPendingStore is a small in-memory PendingIntentStore used by unit tests.
type MockPendingStore struct {
	mu       sync.RWMutex
	slots    map[model.Purpose]*model.PendingRecord
	SaveErr  error
	ClearErr error
}

func NewMockPendingStore() *MockPendingStore {
	return &MockPendingStore{slots: make(map[model.Purpose]*model.PendingRecord)}
}

func (m *MockPendingStore) Save(ctx context.Context, purpose model.Purpose, rec *model.PendingRecord) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.slots[purpose] = &cp
	return nil
}

func (m *MockPendingStore) Load(ctx context.Context, purpose model.Purpose) (*model.PendingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.slots[purpose]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MockPendingStore) Clear(ctx context.Context, purpose model.Purpose) error {
	if m.ClearErr != nil {
		return m.ClearErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, purpose)
	return nil
}

// MockGateway lets each call be overridden per test.
type MockGateway struct {
	mu                sync.Mutex
	CreateIntentFunc  func(ctx context.Context, params adapter.CreateIntentParams) (*model.PaymentIntent, error)
	FetchStatusFunc   func(ctx context.Context, intentID string) (model.IntentStatus, error)
	FetchImageFunc    func(ctx context.Context, intentID string) (string, error)
	CreateIntentCalls int
	FetchStatusCalls  int
	FetchImageCalls   int
}

func (m *MockGateway) Name() string { return "mock-gateway" }

func (m *MockGateway) CreateIntent(ctx context.Context, params adapter.CreateIntentParams) (*model.PaymentIntent, error) {
	m.mu.Lock()
	m.CreateIntentCalls++
	fn := m.CreateIntentFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, params)
	}
	return &model.PaymentIntent{
		PaymentID:        "pay-1",
		IntentID:         "intent-1",
		Purpose:          params.Purpose,
		AmountMinorUnits: params.AmountMinorUnits,
		ExpiresAt:        time.Now().Add(5 * time.Minute),
		Metadata:         params.Metadata,
	}, nil
}

func (m *MockGateway) FetchStatus(ctx context.Context, intentID string) (model.IntentStatus, error) {
	m.mu.Lock()
	m.FetchStatusCalls++
	fn := m.FetchStatusFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, intentID)
	}
	return model.IntentStatusPending, nil
}

func (m *MockGateway) FetchCodeImage(ctx context.Context, intentID string) (string, error) {
	m.mu.Lock()
	m.FetchImageCalls++
	fn := m.FetchImageFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, intentID)
	}
	return "https://img.example/" + intentID + ".png", nil
}

// MockFinalizer counts Finalize calls and records the intent ids it saw.
type MockFinalizer struct {
	mu          sync.Mutex
	FinalizeErr error
	Calls       []string
}

func (m *MockFinalizer) Name() string { return "mock-finalizer" }

func (m *MockFinalizer) Finalize(ctx context.Context, intentID string, amountMinorUnits int64, metadata map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, intentID)
	return m.FinalizeErr
}

func (m *MockFinalizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockOutcomeRepo records audit writes in memory.
type MockOutcomeRepo struct {
	mu        sync.Mutex
	Recorded  []*model.OutcomeEvent
	RecordErr error
}

func (m *MockOutcomeRepo) Record(ctx context.Context, ev *model.OutcomeEvent) error {
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ev
	m.Recorded = append(m.Recorded, &cp)
	return nil
}

func (m *MockOutcomeRepo) ListRecent(ctx context.Context, limit int) ([]*model.OutcomeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.OutcomeEvent(nil), m.Recorded...), nil
}

// fakePoll is one started polling loop tracked by fakePoller.
type fakePoll struct {
	intentID  string
	expiresAt time.Time
	onUpdate  func(model.IntentStatus)
	cancelled bool
}

// fakePoller implements usecase.StatusPoller and lets tests deliver terminal
// statuses synchronously instead of waiting on timers.
type fakePoller struct {
	mu    sync.Mutex
	polls []*fakePoll
}

func newFakePoller() *fakePoller { return &fakePoller{} }

func (p *fakePoller) Start(intentID string, expiresAt time.Time, onUpdate func(model.IntentStatus)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	poll := &fakePoll{intentID: intentID, expiresAt: expiresAt, onUpdate: onUpdate}
	p.polls = append(p.polls, poll)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		poll.cancelled = true
	}
}

// Deliver invokes the newest non-cancelled poll for intentID with status, the
// way a real poller reports a terminal fetch.
func (p *fakePoller) Deliver(intentID string, status model.IntentStatus) bool {
	poll := p.find(intentID, false)
	if poll == nil {
		return false
	}
	poll.onUpdate(status)
	return true
}

// DeliverEvenIfCancelled simulates a fetch that was already in flight when the
// poller was cancelled; the coordinator must discard its result.
func (p *fakePoller) DeliverEvenIfCancelled(intentID string, status model.IntentStatus) bool {
	poll := p.find(intentID, true)
	if poll == nil {
		return false
	}
	poll.onUpdate(status)
	return true
}

func (p *fakePoller) find(intentID string, includeCancelled bool) *fakePoll {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.polls) - 1; i >= 0; i-- {
		if p.polls[i].intentID == intentID && (includeCancelled || !p.polls[i].cancelled) {
			return p.polls[i]
		}
	}
	return nil
}

func (p *fakePoller) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, poll := range p.polls {
		if !poll.cancelled {
			n++
		}
	}
	return n
}

func (p *fakePoller) Cancelled(intentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.polls) - 1; i >= 0; i-- {
		if p.polls[i].intentID == intentID {
			return p.polls[i].cancelled
		}
	}
	return false
}
