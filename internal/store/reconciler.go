package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexYaroshenko/notifybot/internal/metrics"
)

// Reconciler periodically collapses duplicate subscriber rows. The webhook
// handlers never block on it; it is the eventual-convergence half of the
// non-atomic upsert contract.
type Reconciler struct {
	store    Store
	interval time.Duration
	log      zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewReconciler(s Store, interval time.Duration, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:    s,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reconciler) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(context.Background())
		case <-r.stopCh:
			return
		}
	}
}

// RunOnce performs a single sweep. Safe to call concurrently with live
// traffic: losing rows are removed by latest-UpdatedAt, so a racing upsert is
// either the winner or will be collapsed by the next sweep.
func (r *Reconciler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	removed, err := r.store.ReconcileSubscribers(ctx)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("reconcile").Inc()
		r.log.Error().Err(err).Msg("reconcile sweep failed")
		return
	}
	if removed > 0 {
		metrics.ReconcileRemoved.Add(float64(removed))
		r.log.Info().Int("removed", removed).Msg("collapsed duplicate subscriber rows")
	}
}
