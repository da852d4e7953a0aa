package stats

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/efreitasn/stockserver/internal/domain"
)

// ErrQueueFull is returned by Async.Record when the event was dropped.
var ErrQueueFull = errors.New("stats: queue full")

// Async hands events to a background goroutine so a slow backend (e.g.
// Redis) never delays the caller. Events that do not fit in the queue are
// dropped and counted.
type Async struct {
	next   Recorder
	logger *slog.Logger
	queue  chan domain.TradeEvent
	done   chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewAsync starts a background recorder feeding next, buffering up to size
// events.
func NewAsync(next Recorder, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:   next,
		logger: logger,
		queue:  make(chan domain.TradeEvent, size),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Record implements service.Recorder. It never blocks.
func (a *Async) Record(_ context.Context, ev domain.TradeEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.queue <- ev:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits until the queued ones are recorded
// or ctx ends.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		if err := a.next.Record(context.Background(), ev); err != nil {
			a.logger.Warn("failed to record transaction",
				slog.String("command", string(ev.Command)),
				slog.String("error", err.Error()),
			)
		}
	}
}
