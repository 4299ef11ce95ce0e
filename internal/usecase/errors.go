package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrAccountExists         = errors.New("account already exists")
	ErrPaymentRejected       = errors.New("payment rejected")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
