package store

import (
	"context"
	"errors"
	"time"
)

// State is the subscriber consent lifecycle. The state machine in internal/bot
// owns the transitions; the store only persists whatever it is handed.
type State string

const (
	StateNew             State = "NEW"
	StateAwaitingConsent State = "AWAITING_CONSENT"
	StateSubscribed      State = "SUBSCRIBED"
	StateUnsubscribed    State = "UNSUBSCRIBED"
)

// Subscriber is one consent record keyed by chat id. Records are never
// physically deleted; opting out is the UNSUBSCRIBED state.
type Subscriber struct {
	ChatID         string    `json:"chat_id"`
	DisplayName    string    `json:"display_name"`
	State          State     `json:"state"`
	SubscribedAt   time.Time `json:"subscribed_at"`
	UnsubscribedAt time.Time `json:"unsubscribed_at"`
	// UpdatedAt orders concurrent writes: every upsert is a full-record
	// overwrite stamped here, and reconciliation keeps the latest stamp.
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditEntry is one append-only interaction log row.
type AuditEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	ChatID       string    `json:"chat_id"`
	DisplayName  string    `json:"display_name"`
	InboundText  string    `json:"inbound_text"`
	OutboundText string    `json:"outbound_text"`
}

// Store abstracts persistent storage operations.
//
// Upsert is read-modify-write and NOT atomic on row-oriented backends: two
// concurrent upserts for the same chat id can both miss the existing row and
// both append. ReconcileSubscribers is the repair path; it collapses duplicate
// rows for a key down to the one with the latest UpdatedAt and is safe to run
// repeatedly.
type Store interface {
	Close() error

	GetSubscriber(ctx context.Context, chatID string) (Subscriber, error)
	UpsertSubscriber(ctx context.Context, sub Subscriber) error
	ListSubscribers(ctx context.Context) ([]Subscriber, error)

	AppendAudit(ctx context.Context, entry AuditEntry) error

	// ReconcileSubscribers returns how many duplicate rows were removed.
	ReconcileSubscribers(ctx context.Context) (int, error)
}

var ErrNotFound = errors.New("not found")

// mostRecent picks the row with the latest UpdatedAt; ties keep the earlier row.
func mostRecent(rows []Subscriber) Subscriber {
	best := rows[0]
	for _, r := range rows[1:] {
		if r.UpdatedAt.After(best.UpdatedAt) {
			best = r
		}
	}
	return best
}
