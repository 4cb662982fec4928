package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sweptTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cloudprime_staging_swept_total",
	Help: "Stale staged files removed by the staging janitor",
})

// CleanupService is the staging janitor. Requests release their staged
// file themselves; this only catches what a crash or a killed request left.
type CleanupService struct {
	store    Store
	interval time.Duration
	maxAge   time.Duration
	done     chan struct{}
}

func NewCleanupService(store Store, interval, maxAge time.Duration) *CleanupService {
	return &CleanupService{
		store:    store,
		interval: interval,
		maxAge:   maxAge,
		done:     make(chan struct{}),
	}
}

// Start sweeps once, then every interval until ctx is cancelled.
func (cs *CleanupService) Start(ctx context.Context) {
	log := slog.With("component", "staging-janitor")
	log.Info("staging janitor started", "interval", cs.interval, "max_age", cs.maxAge)

	go func() {
		defer close(cs.done)

		t := time.NewTicker(cs.interval)
		defer t.Stop()

		for {
			if n, err := cs.Sweep(); err != nil {
				log.Error("staging sweep failed", "error", err)
			} else if n > 0 {
				log.Info("removed stale staged files", "removed", n)
			}

			select {
			case <-ctx.Done():
				log.Info("staging janitor stopped")
				return
			case <-t.C:
			}
		}
	}()
}

// Sweep removes staged files older than the configured max age once.
func (cs *CleanupService) Sweep() (int, error) {
	n, err := cs.store.Sweep(cs.maxAge)
	sweptTotal.Add(float64(n))
	return n, err
}

// Wait blocks until the janitor goroutine has exited.
func (cs *CleanupService) Wait() {
	<-cs.done
}
