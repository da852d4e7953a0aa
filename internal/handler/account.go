package handler

import (
	"errors"
	"net/http"

	"github.com/efreitasn/stockserver/internal/domain"
	"github.com/efreitasn/stockserver/internal/store"
	"github.com/go-chi/chi/v5"
)

// AccountHandler exposes read-only views of the ledger.
type AccountHandler struct {
	ledger *store.LedgerStore
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(ledger *store.LedgerStore) *AccountHandler {
	return &AccountHandler{ledger: ledger}
}

// accountResponse is one account in the JSON responses.
type accountResponse struct {
	Name    string `json:"name"`
	Balance uint64 `json:"balance"`
	Waiting int    `json:"waiting_buys"`
}

// accountListResponse is the JSON response for GET /accounts.
type accountListResponse struct {
	Accounts []accountResponse `json:"accounts"`
	Total    int               `json:"total"`
}

// List handles GET /accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	snaps := h.ledger.List()
	accounts := make([]accountResponse, len(snaps))
	for i, s := range snaps {
		accounts[i] = accountResponse{Name: s.Name, Balance: s.Balance, Waiting: s.Waiting}
	}
	WriteJSON(w, http.StatusOK, accountListResponse{
		Accounts: accounts,
		Total:    len(accounts),
	})
}

// Get handles GET /accounts/{name}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	account, err := h.ledger.Get(name)
	if err != nil {
		mapAccountError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, accountResponse{
		Name:    account.Name,
		Balance: account.Balance(),
		Waiting: account.Waiting(),
	})
}

// mapAccountError maps domain errors to HTTP responses for account endpoints.
func mapAccountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		WriteError(w, http.StatusNotFound, "account_not_found", "Stock not found")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
