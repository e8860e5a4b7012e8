package model

import (
	"context"
	"fmt"
)

// Action is one Discord-side step of a moderation case. The result
// expectation is captured at construction time by NewAction, so a
// batched call that "succeeds" with a value of the wrong shape is
// rejected instead of silently accepted.
type Action struct {
	// Verb names the step for logs and error messages, e.g. "ban".
	Verb string

	run   func(ctx context.Context) (any, error)
	check func(v any) error
}

// NewAction wraps a typed gateway call into an Action. The type
// parameter records what a successful call must return; Execute
// enforces it.
func NewAction[T any](verb string, run func(ctx context.Context) (T, error)) Action {
	return Action{
		Verb: verb,
		run: func(ctx context.Context) (any, error) {
			return run(ctx)
		},
		check: func(v any) error {
			if _, ok := v.(T); !ok {
				var want T
				return fmt.Errorf("action %q returned %T, want %T", verb, v, want)
			}
			return nil
		},
	}
}

// Execute runs the action and validates the result against the
// expectation baked in by NewAction. Errors from the call itself are
// returned untouched so the retry layer can classify them.
func (a Action) Execute(ctx context.Context) (any, error) {
	v, err := a.run(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.check(v); err != nil {
		return nil, err
	}
	return v, nil
}

// HandleResult guards a value obtained from a gathered/batched
// execution: error values are re-raised, and successful values must
// satisfy the action's expectation.
func (a Action) HandleResult(v any) (any, error) {
	if err, ok := v.(error); ok {
		return nil, err
	}
	if err := a.check(v); err != nil {
		return nil, err
	}
	return v, nil
}
