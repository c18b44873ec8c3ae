package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps subscribers behind a real primary key, so concurrent upserts
// cannot produce duplicate rows and ReconcileSubscribers is a no-op.
type PgStore struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, url string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	s := &PgStore{pool: pool}
	if err := s.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgStore) init(ctx context.Context) error {
	stmts := []string{
		`create table if not exists subscribers (
			chat_id text primary key,
			display_name text not null default '',
			state text not null,
			subscribed_at timestamptz,
			unsubscribed_at timestamptz,
			updated_at timestamptz not null default now()
		)`,
		`create table if not exists audit_log (
			id bigint generated always as identity primary key,
			ts timestamptz not null,
			chat_id text not null,
			display_name text not null default '',
			inbound_text text not null default '',
			outbound_text text not null default ''
		)`,
	}
	for _, q := range stmts {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *PgStore) Close() error { s.pool.Close(); return nil }

func (s *PgStore) UpsertSubscriber(ctx context.Context, sub Subscriber) error {
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`insert into subscribers (chat_id, display_name, state, subscribed_at, unsubscribed_at, updated_at)
		 values ($1,$2,$3,$4,$5,$6)
		 on conflict (chat_id) do update set
			display_name=excluded.display_name,
			state=excluded.state,
			subscribed_at=excluded.subscribed_at,
			unsubscribed_at=excluded.unsubscribed_at,
			updated_at=excluded.updated_at`,
		sub.ChatID, sub.DisplayName, string(sub.State),
		nullableTime(sub.SubscribedAt), nullableTime(sub.UnsubscribedAt), sub.UpdatedAt,
	)
	return err
}

func (s *PgStore) GetSubscriber(ctx context.Context, chatID string) (Subscriber, error) {
	var (
		sub            Subscriber
		state          string
		subscribedAt   *time.Time
		unsubscribedAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`select chat_id, display_name, state, subscribed_at, unsubscribed_at, updated_at
		 from subscribers where chat_id=$1`, chatID,
	).Scan(&sub.ChatID, &sub.DisplayName, &state, &subscribedAt, &unsubscribedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subscriber{}, ErrNotFound
	}
	if err != nil {
		return Subscriber{}, err
	}
	sub.State = State(state)
	sub.SubscribedAt = derefTime(subscribedAt)
	sub.UnsubscribedAt = derefTime(unsubscribedAt)
	return sub, nil
}

func (s *PgStore) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.pool.Query(ctx,
		`select chat_id, display_name, state, subscribed_at, unsubscribed_at, updated_at from subscribers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []Subscriber
	for rows.Next() {
		var (
			sub            Subscriber
			state          string
			subscribedAt   *time.Time
			unsubscribedAt *time.Time
		)
		if err := rows.Scan(&sub.ChatID, &sub.DisplayName, &state, &subscribedAt, &unsubscribedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		sub.State = State(state)
		sub.SubscribedAt = derefTime(subscribedAt)
		sub.UnsubscribedAt = derefTime(unsubscribedAt)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PgStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`insert into audit_log (ts, chat_id, display_name, inbound_text, outbound_text)
		 values ($1,$2,$3,$4,$5)`,
		entry.Timestamp, entry.ChatID, entry.DisplayName, entry.InboundText, entry.OutboundText,
	)
	return err
}

// ReconcileSubscribers is a no-op: the primary key already enforces
// at-most-one row per chat id.
func (s *PgStore) ReconcileSubscribers(ctx context.Context) (int, error) {
	return 0, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

var _ Store = (*PgStore)(nil)
