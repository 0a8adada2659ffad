package database

import (
	"context"
	"errors"

	"github.com/koustreak/tablegate/internal/errs"
)

// --- constructor helpers used inside this package ---

// errQuery wraps cause as a query failure unless a driver already
// classified it.
func errQuery(msg string, cause error) error {
	var classified *errs.Error
	if errors.As(cause, &classified) {
		return cause
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, cause)
}

func errInvalidInput(msg string) *errs.Error {
	return errs.New(errs.ErrKindInvalidInput, msg)
}

// ContextError maps context cancellation and deadline errors to
// errs.ErrKindTimeout. It returns nil for anything else so drivers can fall
// through to their own classification.
func ContextError(err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return nil
}
