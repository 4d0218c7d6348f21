// internal/browser/cleanup.go
package browser

import (
	"fmt"

	"go.uber.org/zap"
)

// CleanupStep is one independent, fallible teardown action.
type CleanupStep struct {
	Name string
	Fn   func() error
}

// Step is shorthand for building a CleanupStep.
func Step(name string, fn func() error) CleanupStep {
	return CleanupStep{Name: name, Fn: fn}
}

// AttemptAll runs every step in order. A failing or panicking step is logged at
// warn level and does not stop the remaining steps. It returns the number of
// steps that failed.
func AttemptAll(logger *zap.Logger, steps ...CleanupStep) int {
	failed := 0
	for _, step := range steps {
		if err := runStep(step); err != nil {
			failed++
			logger.Warn("Cleanup step failed; continuing.", zap.String("step", step.Name), zap.Error(err))
		}
	}
	return failed
}

func runStep(step CleanupStep) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if step.Fn == nil {
		return nil
	}
	return step.Fn()
}
