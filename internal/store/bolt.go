package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSubscribers = []byte("subscribers")
	bucketAudit       = []byte("audit")
)

// BoltStore is the local single-file backend. Subscribers are keyed by chat
// id, so duplicates cannot occur and ReconcileSubscribers is a no-op.
type BoltStore struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, e := tx.CreateBucketIfNotExists(bucketSubscribers); e != nil {
			return e
		}
		if _, e := tx.CreateBucketIfNotExists(bucketAudit); e != nil {
			return e
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) UpsertSubscriber(ctx context.Context, sub Subscriber) error {
	if sub.ChatID == "" {
		return fmt.Errorf("chat id required")
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	b, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSubscribers).Put([]byte(sub.ChatID), b)
	})
}

func (s *BoltStore) GetSubscriber(ctx context.Context, chatID string) (Subscriber, error) {
	var sub Subscriber
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSubscribers).Get([]byte(chatID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &sub)
	})
	return sub, err
}

func (s *BoltStore) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	var subs []Subscriber
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSubscribers).ForEach(func(k, v []byte) error {
			var sub Subscriber
			if err := json.Unmarshal(v, &sub); err != nil {
				return err
			}
			subs = append(subs, sub)
			return nil
		})
	})
	return subs, err
}

func (s *BoltStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := []byte(fmt.Sprintf("%d-%s", entry.Timestamp.UnixNano(), entry.ChatID))
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAudit).Put(key, b)
	})
}

func (s *BoltStore) ReconcileSubscribers(ctx context.Context) (int, error) {
	return 0, nil
}

var _ Store = (*BoltStore)(nil)
