package services

import (
	"errors"
)

var (
	// ErrLastBudget refuses deleting the only budget of a user.
	ErrLastBudget = errors.New("cannot delete the only budget")
	// ErrCancelled is returned when the user declines a confirmation.
	ErrCancelled = errors.New("cancelled by user")
	// ErrConnectivity marks failures of the store connection that end the session.
	ErrConnectivity = errors.New("connection to the document store lost")
	// ErrNoActiveBudget is returned before a budget has been selected and loaded.
	ErrNoActiveBudget = errors.New("no active budget")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session closed")

	ErrUnknownBudget        = errors.New("unknown budget")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrCategoryNotFound     = errors.New("category not found")
	ErrArchiveNotFound      = errors.New("archive not found")
	ErrPaymentMethodMissing = errors.New("payment method not found")
	ErrSubcategoryMissing   = errors.New("subcategory not found")
	ErrDuplicate            = errors.New("already exists")
	ErrTypeInUse            = errors.New("category type is in use")
	ErrLastType             = errors.New("a budget needs at least one category type")
)
