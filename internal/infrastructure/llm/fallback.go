// Package llm holds provider-agnostic pieces of the generation stack.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// InitFunc prepares a model for use and reports whether it is available.
type InitFunc func(ctx context.Context, model string) error

type ModelAttempt struct {
	Model string
	Err   error
}

// FallbackError lists every model that was tried and why it failed.
type FallbackError struct {
	Attempts []ModelAttempt
}

func (e *FallbackError) Error() string {
	if len(e.Attempts) == 0 {
		return "no generation models configured"
	}
	var b strings.Builder
	b.WriteString("all generation models failed to initialize:")
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, " %s: %v;", a.Model, a.Err)
	}
	return strings.TrimSuffix(b.String(), ";")
}

func (e *FallbackError) Unwrap() []error {
	out := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, a.Err)
	}
	return out
}

// SelectModel walks models in order and returns the first one whose init
// succeeds. Models after the selected one are never touched.
func SelectModel(ctx context.Context, models []string, init InitFunc) (string, error) {
	attempts := make([]ModelAttempt, 0, len(models))
	for _, model := range models {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := init(ctx, model)
		if err == nil {
			return model, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		attempts = append(attempts, ModelAttempt{Model: model, Err: err})
	}
	return "", &FallbackError{Attempts: attempts}
}
