package store

import (
	"sync"

	"github.com/efreitasn/stockserver/internal/domain"
	"github.com/google/btree"
)

// Snapshot is a point-in-time view of one account.
type Snapshot struct {
	Name    string
	Balance uint64
	Waiting int
}

// LedgerStore is a thread-safe in-memory store of accounts keyed by name.
// The key set (create, reset) is guarded by the store lock; balances are
// guarded by each account's own lock, so operations on different accounts
// never contend here beyond a short read lock.
type LedgerStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	names    *btree.BTreeG[string] // ordered index for listing
}

// NewLedgerStore creates an empty LedgerStore.
func NewLedgerStore() *LedgerStore {
	const degree = 16
	return &LedgerStore{
		accounts: make(map[string]*domain.Account),
		names:    btree.NewG[string](degree, func(a, b string) bool { return a < b }),
	}
}

// Create adds an account with the given opening balance. It returns
// domain.ErrAccountAlreadyExists, leaving the existing account untouched,
// if the name is taken.
func (s *LedgerStore) Create(name string, balance uint64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[name]; exists {
		return nil, domain.ErrAccountAlreadyExists
	}
	a := domain.NewAccount(name, balance)
	s.accounts[name] = a
	s.names.ReplaceOrInsert(name)
	return a, nil
}

// Get retrieves an account by name. It returns
// domain.ErrAccountNotFound if the account does not exist.
func (s *LedgerStore) Get(name string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[name]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

// Reset drops every account and returns how many were removed. Accounts
// already handed out stay usable by their holders but are no longer
// reachable through the store.
func (s *LedgerStore) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.accounts)
	s.accounts = make(map[string]*domain.Account)
	s.names.Clear(false)
	return n
}

// Len returns the number of accounts.
func (s *LedgerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

// List returns a snapshot of every account ordered by name.
func (s *LedgerStore) List() []Snapshot {
	s.mu.RLock()
	accounts := make([]*domain.Account, 0, len(s.accounts))
	s.names.Ascend(func(name string) bool {
		accounts = append(accounts, s.accounts[name])
		return true
	})
	s.mu.RUnlock()

	// Balances are read outside the store lock so a busy account cannot
	// hold up listing of the others for longer than its own critical section.
	result := make([]Snapshot, len(accounts))
	for i, a := range accounts {
		result[i] = Snapshot{
			Name:    a.Name,
			Balance: a.Balance(),
			Waiting: a.Waiting(),
		}
	}
	return result
}
