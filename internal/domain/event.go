package domain

import "time"

// Outcome classifies how a transaction ended.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeExists    Outcome = "exists"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeCancelled Outcome = "cancelled"
)

// TradeEvent describes one processed transaction.
type TradeEvent struct {
	Command  Command
	Name     string
	Quantity uint64
	Outcome  Outcome
	Result   string
	At       time.Time
}
