package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/stockserver/internal/domain"
	"github.com/efreitasn/stockserver/internal/store"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []domain.TradeEvent
	err    error
}

func (r *captureRecorder) Record(_ context.Context, ev domain.TradeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *captureRecorder) Publish(ev domain.TradeEvent) {
	_ = r.Record(context.Background(), ev)
}

func (r *captureRecorder) snapshot() []domain.TradeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TradeEvent(nil), r.events...)
}

func newTestTradeService() (*TradeService, *store.LedgerStore) {
	ledger := store.NewLedgerStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTradeService(ledger, nil, nil, logger), ledger
}

func process(t *testing.T, svc *TradeService, cmd domain.Command, name string, qty uint64) string {
	t.Helper()
	res := svc.Process(context.Background(), Transaction{Command: cmd, Name: name, Quantity: qty})
	if res.Err != nil {
		t.Fatalf("%s %s %d: unexpected error: %v", cmd, name, qty, res.Err)
	}
	return res.Text
}

func TestProcess_Scenario(t *testing.T) {
	svc, _ := newTestTradeService()

	steps := []struct {
		cmd  domain.Command
		name string
		qty  uint64
		want string
	}{
		{domain.CommandCreate, "ibm", 100, "Stock ibm created with balance = 100"},
		{domain.CommandCreate, "ibm", 50, "Stock ibm already exists"},
		{domain.CommandSell, "ibm", 25, "Stock ibm's balance updated"},
		{domain.CommandStatus, "ibm", 0, "Balance for stock ibm = 125"},
		{domain.CommandBuy, "ibm", 25, "Stock ibm's balance updated"},
		{domain.CommandStatus, "ibm", 0, "Balance for stock ibm = 100"},
		{domain.CommandStatus, "msft", 0, "Stock not found"},
		{domain.CommandBuy, "msft", 1, "Stock not found"},
		{domain.CommandSell, "msft", 1, "Stock not found"},
		{"transfer", "ibm", 1, "Invalid request"},
		{"", "", 0, "Invalid request"},
		{domain.CommandReset, "", 0, "Stocks reset"},
		{domain.CommandStatus, "ibm", 0, "Stock not found"},
	}
	for _, st := range steps {
		if got := process(t, svc, st.cmd, st.name, st.qty); got != st.want {
			t.Errorf("%s %s %d = %q, want %q", st.cmd, st.name, st.qty, got, st.want)
		}
	}
}

func TestProcess_CreateZeroBalance(t *testing.T) {
	svc, ledger := newTestTradeService()
	if got := process(t, svc, domain.CommandCreate, "zero", 0); got != "Stock zero created with balance = 0" {
		t.Fatalf("got %q", got)
	}
	a, err := ledger.Get("zero")
	if err != nil || a.Balance() != 0 {
		t.Fatalf("expected zero-balance account, got %v / %v", a, err)
	}
}

func TestProcess_BuyBlocksUntilSupply(t *testing.T) {
	svc, ledger := newTestTradeService()
	process(t, svc, domain.CommandCreate, "ibm", 125)

	done := make(chan Result, 1)
	go func() {
		done <- svc.Process(context.Background(), Transaction{Command: domain.CommandBuy, Name: "ibm", Quantity: 200})
	}()

	acct, _ := ledger.Get("ibm")
	deadline := time.Now().Add(2 * time.Second)
	for acct.Waiting() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("buy never parked")
		}
		time.Sleep(time.Millisecond)
	}

	process(t, svc, domain.CommandSell, "ibm", 100)

	select {
	case res := <-done:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if res.Text != "Stock ibm's balance updated" {
			t.Fatalf("got %q", res.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("buy did not complete after supply arrived")
	}

	if got := process(t, svc, domain.CommandStatus, "ibm", 0); got != "Balance for stock ibm = 25" {
		t.Fatalf("got %q", got)
	}
}

func TestProcess_BuyCancelled(t *testing.T) {
	svc, _ := newTestTradeService()
	process(t, svc, domain.CommandCreate, "ibm", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := svc.Process(ctx, Transaction{Command: domain.CommandBuy, Name: "ibm", Quantity: 10})
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("got err %v, want DeadlineExceeded", res.Err)
	}
	if res.Text != "" {
		t.Fatalf("expected no text for abandoned buy, got %q", res.Text)
	}
	if res.Outcome != domain.OutcomeCancelled {
		t.Fatalf("Outcome = %q, want cancelled", res.Outcome)
	}
}

func TestProcess_EmitsEvents(t *testing.T) {
	ledger := store.NewLedgerStore()
	rec := &captureRecorder{err: errors.New("boom")}
	pub := &captureRecorder{}
	svc := NewTradeService(ledger, rec, pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	process(t, svc, domain.CommandCreate, "ibm", 10)
	process(t, svc, domain.CommandCreate, "ibm", 10)
	process(t, svc, domain.CommandStatus, "nope", 0)

	// Recorder errors are logged, not surfaced.
	got := rec.snapshot()
	if len(got) != 3 {
		t.Fatalf("recorded %d events, want 3", len(got))
	}
	wantOutcomes := []domain.Outcome{domain.OutcomeOK, domain.OutcomeExists, domain.OutcomeNotFound}
	for i, ev := range got {
		if ev.Outcome != wantOutcomes[i] {
			t.Errorf("event %d outcome = %q, want %q", i, ev.Outcome, wantOutcomes[i])
		}
		if !ev.At.Equal(fixed) {
			t.Errorf("event %d At = %v, want %v", i, ev.At, fixed)
		}
	}
	if ev := got[0]; ev.Command != domain.CommandCreate || ev.Name != "ibm" || ev.Quantity != 10 {
		t.Errorf("unexpected first event: %+v", ev)
	}
	if len(pub.snapshot()) != 3 {
		t.Fatalf("published %d events, want 3", len(pub.snapshot()))
	}
}

func TestProcess_ConcurrentSells(t *testing.T) {
	svc, ledger := newTestTradeService()
	process(t, svc, domain.CommandCreate, "ibm", 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Process(context.Background(), Transaction{Command: domain.CommandSell, Name: "ibm", Quantity: 3})
		}()
	}
	wg.Wait()

	a, _ := ledger.Get("ibm")
	if a.Balance() != 300 {
		t.Fatalf("balance = %d, want 300", a.Balance())
	}
}

func TestErrorResult(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		text    string
		outcome domain.Outcome
	}{
		{"not found", domain.ErrAccountNotFound, "Stock not found", domain.OutcomeNotFound},
		{"wrapped not found", fmt.Errorf("get ibm: %w", domain.ErrAccountNotFound), "Stock not found", domain.OutcomeNotFound},
		{"invalid request", domain.ErrInvalidRequest, "Invalid request", domain.OutcomeInvalid},
		{"unexpected", errors.New("boom"), "Invalid request", domain.OutcomeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := errorResult(tt.err)
			if res.Text != tt.text || res.Outcome != tt.outcome || res.Err != nil {
				t.Errorf("errorResult(%v) = %+v", tt.err, res)
			}
		})
	}
}
