// Package monitor periodically logs the server's load so operators without
// the ops HTTP surface still see admission pressure and parked buys.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/efreitasn/stockserver/internal/admission"
	"github.com/efreitasn/stockserver/internal/store"
)

// Sample is one observation of the server's load.
type Sample struct {
	At          time.Time
	Active      int
	Max         int
	Peak        int
	Accounts    int
	WaitingBuys int
}

// Reporter samples the admission controller and ledger on a fixed interval.
type Reporter struct {
	interval time.Duration
	ctrl     *admission.Controller
	ledger   *store.LedgerStore
	logger   *slog.Logger

	mu   sync.Mutex
	last Sample
}

// NewReporter creates a Reporter. It does nothing until Start is called.
func NewReporter(interval time.Duration, ctrl *admission.Controller, ledger *store.LedgerStore, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		interval: interval,
		ctrl:     ctrl,
		ledger:   ledger,
		logger:   logger,
	}
}

// Start launches a background goroutine that ticks at the configured
// interval and logs a sample. It stops when ctx is cancelled. A
// non-positive interval disables reporting.
func (r *Reporter) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				r.tick(t)
			}
		}
	}()
}

// tick takes one sample and logs it. Saturation is logged at warn level.
func (r *Reporter) tick(now time.Time) Sample {
	s := Sample{
		At:     now,
		Active: r.ctrl.Active(),
		Max:    r.ctrl.Max(),
		Peak:   r.ctrl.Peak(),
	}
	for _, snap := range r.ledger.List() {
		s.Accounts++
		s.WaitingBuys += snap.Waiting
	}

	r.mu.Lock()
	r.last = s
	r.mu.Unlock()

	level := slog.LevelInfo
	if s.Active >= s.Max {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, "load report",
		slog.Int("active", s.Active),
		slog.Int("max", s.Max),
		slog.Int("peak", s.Peak),
		slog.Int("accounts", s.Accounts),
		slog.Int("waiting_buys", s.WaitingBuys),
	)
	return s
}

// Last returns the most recent sample. The zero Sample means no tick has
// happened yet.
func (r *Reporter) Last() Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
