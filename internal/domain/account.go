package domain

import (
	"context"
	"sync"
)

// Account is a named ledger entry holding a non-negative quantity of a stock.
// The balance is only touched while holding the account's own lock, and
// withdrawals that exceed it park on the account's condition variable until
// a deposit makes them satisfiable.
type Account struct {
	Name string

	mu      sync.Mutex
	cond    *sync.Cond
	balance uint64
	waiting int // withdrawals parked on cond
}

// NewAccount creates an account with the given opening balance.
func NewAccount(name string, balance uint64) *Account {
	a := &Account{
		Name:    name,
		balance: balance,
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Balance returns the current balance.
func (a *Account) Balance() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Waiting returns the number of withdrawals currently blocked on this account.
func (a *Account) Waiting() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.waiting
}

// Deposit adds qty to the balance and wakes parked withdrawals so they can
// re-check whether they are now satisfiable.
func (a *Account) Deposit(qty uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.balance += qty
	// Every waiter re-evaluates its own predicate. Waking a single one could
	// pick a large withdrawal that goes back to sleep while a smaller one that
	// fits stays parked.
	a.cond.Broadcast()
}

// Withdraw subtracts qty from the balance, blocking until the balance is at
// least qty. It waits indefinitely unless ctx is cancelled, in which case it
// returns ctx.Err() and leaves the balance untouched.
func (a *Account) Withdraw(ctx context.Context, qty uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.balance >= qty {
		a.balance -= qty
		return nil
	}

	// Cancellation has to go through the lock, otherwise the broadcast could
	// land between the ctx check and cond.Wait and be lost.
	stop := context.AfterFunc(ctx, func() {
		a.mu.Lock()
		a.cond.Broadcast()
		a.mu.Unlock()
	})
	defer stop()

	a.waiting++
	defer func() { a.waiting-- }()

	for a.balance < qty {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.cond.Wait()
	}
	a.balance -= qty
	return nil
}
