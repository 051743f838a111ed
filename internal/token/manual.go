package token

import "context"

// ManualEntry is the last-resort acquisition channel: something that asks the
// user to paste a token. Prompt blocks until the user answers, the context
// expires, or the user declines (ErrUserCancelled). It must be safe to call
// from a background goroutine.
type ManualEntry interface {
	Prompt(ctx context.Context) (string, error)
}

// PromptFunc adapts a plain function to ManualEntry.
type PromptFunc func(ctx context.Context) (string, error)

func (f PromptFunc) Prompt(ctx context.Context) (string, error) {
	return f(ctx)
}
