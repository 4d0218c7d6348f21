// internal/browser/strategy.go
package browser

import (
	"context"
	"fmt"
	"strings"
)

// Strategy is one way of achieving a UI step. Strategies for the same step are
// tried in order until one succeeds.
type Strategy struct {
	Name string
	Run  func(ctx context.Context) error
}

// StrategyFailure records why a single strategy did not succeed.
type StrategyFailure struct {
	Name string
	Err  error
}

// ExhaustedError is returned by FirstSuccess when no strategy succeeded.
type ExhaustedError struct {
	Step     string
	Failures []StrategyFailure
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Name, f.Err))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: no strategies configured", e.Step)
	}
	return fmt.Sprintf("%s: all strategies failed (%s)", e.Step, strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// FirstSuccess runs strategies in order and returns the name of the first one
// that succeeds. Context cancellation stops the chain early and is reported as
// a failure of the strategy that was about to run.
func FirstSuccess(ctx context.Context, step string, strategies ...Strategy) (string, error) {
	exhausted := &ExhaustedError{Step: step}
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			exhausted.Failures = append(exhausted.Failures, StrategyFailure{Name: s.Name, Err: err})
			return "", exhausted
		}
		err := s.Run(ctx)
		if err == nil {
			return s.Name, nil
		}
		exhausted.Failures = append(exhausted.Failures, StrategyFailure{Name: s.Name, Err: err})
	}
	return "", exhausted
}
