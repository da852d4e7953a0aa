package domain

import "errors"

// Sentinel errors for ledger operations.
// The service layer turns these into response text; none of them is a
// transport failure.
var (
	ErrAccountAlreadyExists = errors.New("account_already_exists")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrInvalidRequest       = errors.New("invalid_request")
)
