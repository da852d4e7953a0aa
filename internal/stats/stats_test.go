package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/stockserver/internal/domain"
	"github.com/redis/go-redis/v9"
)

func TestMemoryRecorder_Snapshot(t *testing.T) {
	m := NewMemoryRecorder()
	ctx := context.Background()
	events := []domain.TradeEvent{
		{Command: domain.CommandSell, Outcome: domain.OutcomeOK},
		{Command: domain.CommandCreate, Outcome: domain.OutcomeOK},
		{Command: domain.CommandCreate, Outcome: domain.OutcomeExists},
		{Command: domain.CommandCreate, Outcome: domain.OutcomeOK},
	}
	for _, ev := range events {
		if err := m.Record(ctx, ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	want := []Counter{
		{Command: "create", Outcome: "exists", Count: 1},
		{Command: "create", Outcome: "ok", Count: 2},
		{Command: "sell", Outcome: "ok", Count: 1},
	}
	got := m.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("got %d counters, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if m.Total() != 4 {
		t.Errorf("Total() = %d, want 4", m.Total())
	}
}

func TestMemoryRecorder_Concurrent(t *testing.T) {
	m := NewMemoryRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Record(context.Background(), domain.TradeEvent{Command: domain.CommandBuy, Outcome: domain.OutcomeOK})
		}()
	}
	wg.Wait()
	if m.Total() != 50 {
		t.Fatalf("Total() = %d, want 50", m.Total())
	}
}

type failingRecorder struct{ err error }

func (f failingRecorder) Record(context.Context, domain.TradeEvent) error { return f.err }

func TestMulti_Record(t *testing.T) {
	m := NewMemoryRecorder()
	errA := errors.New("a")
	multi := Multi{m, nil, failingRecorder{errA}}

	err := multi.Record(context.Background(), domain.TradeEvent{Command: domain.CommandStatus, Outcome: domain.OutcomeNotFound})
	if !errors.Is(err, errA) {
		t.Fatalf("got %v, want wrapped %v", err, errA)
	}
	if m.Total() != 1 {
		t.Fatalf("memory recorder missed the event")
	}
}

func TestRedisRecorder_Keys(t *testing.T) {
	r := NewRedisRecorder(nil, WithPrefix(":ledger:stats:"))
	at := time.Date(2024, 3, 9, 14, 7, 59, 0, time.UTC)

	if got := r.totalKey(); got != "ledger:stats:total" {
		t.Errorf("totalKey() = %q", got)
	}
	if got := r.bucketKey(at); got != "ledger:stats:minute:202403091407" {
		t.Errorf("bucketKey() = %q", got)
	}
	if got := r.field(domain.TradeEvent{Command: domain.CommandBuy, Outcome: domain.OutcomeCancelled}); got != "buy:cancelled" {
		t.Errorf("field() = %q", got)
	}
	if got := r.field(domain.TradeEvent{Outcome: domain.OutcomeInvalid}); got != "unknown:invalid" {
		t.Errorf("field() = %q", got)
	}
}

func TestRedisRecorder_NilClient(t *testing.T) {
	var r *RedisRecorder
	if err := r.Record(context.Background(), domain.TradeEvent{}); err != nil {
		t.Fatalf("nil recorder: %v", err)
	}
	if err := NewRedisRecorder(nil).Record(context.Background(), domain.TradeEvent{}); err != nil {
		t.Fatalf("nil client: %v", err)
	}
}

func TestRedisRecorder_Unreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	r := NewRedisRecorder(rdb, WithTimeout(200*time.Millisecond), WithBucketTTL(time.Minute))
	if err := r.Record(context.Background(), domain.TradeEvent{Command: domain.CommandSell, Outcome: domain.OutcomeOK}); err == nil {
		t.Fatal("expected error from unreachable redis")
	}
}
