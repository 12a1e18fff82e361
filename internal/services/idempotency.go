package services

import (
	"sync"
	"time"
)

// idempotencyTable is a short-lived in-process lookup from a client
// idempotency key to the order it created. Entries expire after ttl;
// the persisted idempotencyKey on the order record covers replays that
// arrive after a restart.
type idempotencyTable struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]idempotencyEntry
}

type idempotencyEntry struct {
	orderID string
	at      time.Time
}

func newIdempotencyTable(ttl time.Duration) *idempotencyTable {
	return &idempotencyTable{
		ttl:     ttl,
		entries: make(map[string]idempotencyEntry),
	}
}

func (t *idempotencyTable) lookup(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return "", false
	}
	if time.Since(entry.at) > t.ttl {
		delete(t.entries, key)
		return "", false
	}
	return entry.orderID, true
}

func (t *idempotencyTable) remember(key, orderID string) {
	if key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for k, e := range t.entries {
		if now.Sub(e.at) > t.ttl {
			delete(t.entries, k)
		}
	}
	t.entries[key] = idempotencyEntry{orderID: orderID, at: now}
}
