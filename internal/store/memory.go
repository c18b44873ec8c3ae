package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a row-oriented in-memory store. It deliberately mirrors the
// semantics of the external tabular backends: subscribers live in an ordered
// row list that can hold duplicate rows for one chat id, and Upsert is a
// find-then-write with no lock held across the two steps. Used for tests and
// local runs.
type MemoryStore struct {
	mu          sync.Mutex
	subscribers []Subscriber
	audit       []AuditEntry
}

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetSubscriber(ctx context.Context, chatID string) (Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []Subscriber
	for _, sub := range s.subscribers {
		if sub.ChatID == chatID {
			matches = append(matches, sub)
		}
	}
	if len(matches) == 0 {
		return Subscriber{}, ErrNotFound
	}
	return mostRecent(matches), nil
}

func (s *MemoryStore) UpsertSubscriber(ctx context.Context, sub Subscriber) error {
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}

	// Find and write are separate critical sections on purpose: the row
	// stores this mimics cannot hold a lock between their read and their
	// append either, so the duplicate-row race stays reproducible here.
	s.mu.Lock()
	idx := -1
	for i, existing := range s.subscribers {
		if existing.ChatID == sub.ChatID {
			idx = i
		}
	}
	s.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx >= 0 && idx < len(s.subscribers) && s.subscribers[idx].ChatID == sub.ChatID {
		s.subscribers[idx] = sub
		return nil
	}
	s.subscribers = append(s.subscribers, sub)
	return nil
}

func (s *MemoryStore) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return collapse(s.subscribers), nil
}

func (s *MemoryStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

// AuditEntries returns a copy of the audit log in insertion order.
func (s *MemoryStore) AuditEntries() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// RowCount reports raw subscriber rows including duplicates.
func (s *MemoryStore) RowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *MemoryStore) ReconcileSubscribers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.subscribers)
	s.subscribers = collapse(s.subscribers)
	return before - len(s.subscribers), nil
}

// collapse keeps one row per chat id (latest UpdatedAt), preserving the order
// in which keys first appeared.
func collapse(rows []Subscriber) []Subscriber {
	byKey := make(map[string]Subscriber)
	var order []string
	for _, r := range rows {
		existing, ok := byKey[r.ChatID]
		if !ok {
			byKey[r.ChatID] = r
			order = append(order, r.ChatID)
			continue
		}
		byKey[r.ChatID] = mostRecent([]Subscriber{existing, r})
	}
	out := make([]Subscriber, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}
