package services

import "context"

// Confirmer asks the user to approve a destructive operation.
type Confirmer interface {
	Confirm(ctx context.Context, title, message string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, title, message string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, title, message string) (bool, error) {
	return f(ctx, title, message)
}

// AlwaysConfirm approves everything.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string, string) (bool, error) { return true, nil })

type confirmKey struct{}

// WithConfirmation records the caller's answer in ctx for ContextConfirmer.
func WithConfirmation(ctx context.Context, confirmed bool) context.Context {
	return context.WithValue(ctx, confirmKey{}, confirmed)
}

// ContextConfirmer answers with the value stored by WithConfirmation, so a
// request can confirm up front. Missing answers count as declined.
type ContextConfirmer struct{}

func (ContextConfirmer) Confirm(ctx context.Context, _, _ string) (bool, error) {
	ok, _ := ctx.Value(confirmKey{}).(bool)
	return ok, nil
}
