package bot

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexYaroshenko/notifybot/internal/metrics"
	"github.com/AlexYaroshenko/notifybot/internal/store"
	"github.com/AlexYaroshenko/notifybot/internal/telegram"
)

// processTimeout bounds one detached continuation. Nobody waits on it; on
// expiry the continuation just ends early with a log line. Every write is a
// full-record overwrite, so an interrupted run leaves no partial state.
const processTimeout = 30 * time.Second

// Dispatcher turns raw webhook payloads into state transitions and side
// effects. It runs strictly after the HTTP acknowledgment: nothing it does —
// parse failures included — can reach the transport response.
type Dispatcher struct {
	store     store.Store
	responder *Responder
	log       zerolog.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

func NewDispatcher(s store.Store, responder *Responder, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     s,
		responder: responder,
		log:       log,
		now:       time.Now,
	}
}

// HandleAsync schedules processing of one raw update and returns immediately.
func (d *Dispatcher) HandleAsync(raw []byte) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Handle(raw)
	}()
}

// Wait blocks until all in-flight continuations finish; used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Handle parses, classifies and processes one update synchronously. Malformed
// payloads are counted and dropped; redelivery of the same bad payload yields
// the same no-op.
func (d *Dispatcher) Handle(raw []byte) {
	var upd telegram.Update
	if err := json.Unmarshal(raw, &upd); err != nil {
		metrics.MalformedUpdates.Inc()
		d.log.Warn().Err(err).Msg("dropping malformed update")
		return
	}

	ev := Classify(&upd)
	metrics.UpdatesReceived.WithLabelValues(string(ev.Kind)).Inc()
	if ev.Kind == EventUnrecognized {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()
	d.process(ctx, ev)
}

func (d *Dispatcher) process(ctx context.Context, ev Event) {
	current, exists, err := d.loadRecord(ctx, ev.ChatID)
	if err != nil {
		// The store is treated as optionally unavailable: proceed as if the
		// record were absent so the user-facing reply still goes out. The
		// upsert below will fail and be logged too.
		metrics.StoreErrors.WithLabelValues("find").Inc()
		d.log.Error().Err(err).Str("chat_id", ev.ChatID).Msg("subscriber lookup failed")
	}

	_, effects := Transition(current, exists, ev, d.now())

	for _, eff := range effects {
		switch eff.Kind {
		case EffectUpsertRecord:
			if err := d.store.UpsertSubscriber(ctx, eff.Record); err != nil {
				metrics.StoreErrors.WithLabelValues("upsert").Inc()
				d.log.Error().Err(err).Str("chat_id", ev.ChatID).Msg("subscriber upsert failed")
			}
		case EffectAppendAudit:
			if err := d.store.AppendAudit(ctx, eff.Audit); err != nil {
				metrics.StoreErrors.WithLabelValues("append_audit").Inc()
				d.log.Error().Err(err).Str("chat_id", ev.ChatID).Msg("audit append failed")
			} else {
				metrics.AuditRows.Inc()
			}
		default:
			d.responder.Deliver(ctx, ev, eff.Kind)
		}
	}
}

func (d *Dispatcher) loadRecord(ctx context.Context, chatID string) (store.Subscriber, bool, error) {
	sub, err := d.store.GetSubscriber(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Subscriber{}, false, nil
	}
	if err != nil {
		return store.Subscriber{}, false, err
	}
	return sub, true, nil
}
