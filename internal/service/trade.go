package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/stockserver/internal/domain"
	"github.com/efreitasn/stockserver/internal/store"
)

// Response texts. Clients match on these verbatim.
const (
	msgInvalidRequest = "Invalid request"
	msgNotFound       = "Stock not found"
	msgReset          = "Stocks reset"
)

// Recorder receives one event per processed transaction, e.g. for counters.
type Recorder interface {
	Record(ctx context.Context, ev domain.TradeEvent) error
}

// Publisher fans processed transactions out to live subscribers.
type Publisher interface {
	Publish(ev domain.TradeEvent)
}

// Transaction is a decoded client request.
type Transaction struct {
	Command  domain.Command
	Name     string
	Quantity uint64
}

// Result is the outcome of a transaction. Business failures (duplicate
// create, unknown stock, unknown command) are reported in Text with a nil
// Err. Err is only set when the transaction was abandoned, in which case
// Text is empty and nothing should be sent back.
type Result struct {
	Text    string
	Outcome domain.Outcome
	Err     error
}

// TradeService applies transactions to the ledger.
type TradeService struct {
	ledger    *store.LedgerStore
	recorder  Recorder
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewTradeService creates a TradeService. recorder and publisher may be nil.
func NewTradeService(ledger *store.LedgerStore, recorder Recorder, publisher Publisher, logger *slog.Logger) *TradeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeService{
		ledger:    ledger,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Process dispatches tx and returns the text to send back. A buy that
// cannot be satisfied yet blocks until enough stock is sold or ctx is
// cancelled.
func (s *TradeService) Process(ctx context.Context, tx Transaction) Result {
	res := s.dispatch(ctx, tx)
	s.emit(ctx, tx, res)
	return res
}

func (s *TradeService) dispatch(ctx context.Context, tx Transaction) Result {
	switch tx.Command {
	case domain.CommandReset:
		n := s.ledger.Reset()
		s.logger.Info("ledger reset", slog.Int("dropped", n))
		return Result{Text: msgReset, Outcome: domain.OutcomeOK}
	case domain.CommandCreate:
		return s.create(tx.Name, tx.Quantity)
	case domain.CommandBuy, domain.CommandSell, domain.CommandStatus:
	default:
		return errorResult(domain.ErrInvalidRequest)
	}

	account, err := s.ledger.Get(tx.Name)
	if err != nil {
		return errorResult(err)
	}

	switch tx.Command {
	case domain.CommandSell:
		account.Deposit(tx.Quantity)
	case domain.CommandBuy:
		if err := account.Withdraw(ctx, tx.Quantity); err != nil {
			return Result{Outcome: domain.OutcomeCancelled, Err: fmt.Errorf("buy %s: %w", tx.Name, err)}
		}
	case domain.CommandStatus:
		return Result{
			Text:    fmt.Sprintf("Balance for stock %s = %d", account.Name, account.Balance()),
			Outcome: domain.OutcomeOK,
		}
	}
	return Result{
		Text:    fmt.Sprintf("Stock %s's balance updated", account.Name),
		Outcome: domain.OutcomeOK,
	}
}

func (s *TradeService) create(name string, balance uint64) Result {
	if _, err := s.ledger.Create(name, balance); err != nil {
		if errors.Is(err, domain.ErrAccountAlreadyExists) {
			return Result{
				Text:    fmt.Sprintf("Stock %s already exists", name),
				Outcome: domain.OutcomeExists,
			}
		}
		return errorResult(err)
	}
	return Result{
		Text:    fmt.Sprintf("Stock %s created with balance = %d", name, balance),
		Outcome: domain.OutcomeOK,
	}
}

// errorResult maps ledger errors to response text.
func errorResult(err error) Result {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return Result{Text: msgNotFound, Outcome: domain.OutcomeNotFound}
	case errors.Is(err, domain.ErrInvalidRequest):
		return Result{Text: msgInvalidRequest, Outcome: domain.OutcomeInvalid}
	default:
		// The wire format has no error status; anything unexpected is
		// reported the same way as a bad request.
		return Result{Text: msgInvalidRequest, Outcome: domain.OutcomeInvalid}
	}
}

func (s *TradeService) emit(ctx context.Context, tx Transaction, res Result) {
	if s.recorder == nil && s.publisher == nil {
		return
	}
	ev := domain.TradeEvent{
		Command:  tx.Command,
		Name:     tx.Name,
		Quantity: tx.Quantity,
		Outcome:  res.Outcome,
		Result:   res.Text,
		At:       s.now(),
	}
	if s.recorder != nil {
		// The request context may already be cancelled for abandoned buys;
		// counters still need the event.
		if err := s.recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
			s.logger.Warn("failed to record transaction",
				slog.String("command", string(tx.Command)),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
}
