package cache

import (
	"context"
	"sync"
	"time"

	"card-token-bridge/bridge"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore implements Mailbox in process memory. Used when no Redis is configured.
// Expired entries are evicted by the cache's own janitor until Close is called.
type MemoryStore struct {
	// mu makes MarkPending's check-then-set atomic with respect to completions.
	mu    sync.Mutex
	items *ttlcache.Cache[string, bridge.Delivery]
	stop  sync.Once

	pendingTTL   time.Duration
	completedTTL time.Duration
}

func NewMemoryStore() *MemoryStore {
	items := ttlcache.New[string, bridge.Delivery](
		ttlcache.WithDisableTouchOnHit[string, bridge.Delivery](),
	)
	go items.Start()

	return &MemoryStore{
		items:        items,
		pendingTTL:   PendingExpiry,
		completedTTL: CompletedExpiry,
	}
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close stops the expiry janitor. The store stays readable afterwards; Close is idempotent.
func (m *MemoryStore) Close() {
	m.stop.Do(m.items.Stop)
}

func (m *MemoryStore) MarkPending(_ context.Context, submissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.items.Get(submissionID) != nil {
		return nil
	}
	m.items.Set(submissionID, bridge.Delivery{SubmissionID: submissionID, Status: bridge.StatusPending}, m.pendingTTL)
	return nil
}

func (m *MemoryStore) ReceiveToken(_ context.Context, submissionID, tokenID string) error {
	m.complete(bridge.Delivery{
		SubmissionID: submissionID,
		Status:       bridge.StatusSucceeded,
		TokenID:      tokenID,
	})
	return nil
}

func (m *MemoryStore) ReceiveFailure(_ context.Context, submissionID string, failure bridge.Failure) error {
	m.complete(bridge.Delivery{
		SubmissionID: submissionID,
		Status:       bridge.StatusFailed,
		Error:        &failure,
	})
	return nil
}

func (m *MemoryStore) Fetch(_ context.Context, submissionID string) (bridge.Delivery, error) {
	item := m.items.Get(submissionID)
	if item == nil {
		return bridge.Delivery{}, ErrNotFound
	}
	return item.Value(), nil
}

func (m *MemoryStore) complete(d bridge.Delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items.Set(d.SubmissionID, d, m.completedTTL)
}
