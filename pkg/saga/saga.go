package saga

import (
	"context"
	"errors"
	"fmt"
)

// Step represents a single step in a saga with an execute and compensate function.
// An Optional step never aborts the saga: its failure is handed to the saga's
// OnOptionalFailure hook and execution continues.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
	Optional   bool
}

// Saga orchestrates a series of steps with automatic compensation on failure.
type Saga struct {
	name       string
	steps      []Step
	onOptional func(ctx context.Context, step string, err error)
}

// New creates a new saga with the given name.
func New(name string) *Saga {
	return &Saga{name: name}
}

// AddStep adds a step to the saga.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// OnOptionalFailure registers the hook that receives failures of optional steps.
func (s *Saga) OnOptionalFailure(fn func(ctx context.Context, step string, err error)) *Saga {
	s.onOptional = fn
	return s
}

// Execute runs all saga steps sequentially.
// If a required step fails, it compensates all previously completed steps in reverse order.
// Returns the index of the failed step and the error, or -1 and nil on success.
func (s *Saga) Execute(ctx context.Context) (failedStep int, err error) {
	completed := make([]int, 0, len(s.steps))

	for i, step := range s.steps {
		if err := step.Execute(ctx); err != nil {
			if step.Optional {
				if s.onOptional != nil {
					s.onOptional(ctx, step.Name, err)
				}
				continue
			}
			compErr := s.compensate(ctx, completed)
			if compErr != nil {
				return i, fmt.Errorf("saga %s: step %q failed (%w), compensation also failed: %v", s.name, step.Name, err, compErr)
			}
			return i, fmt.Errorf("saga %s: step %q failed: %w", s.name, step.Name, err)
		}
		completed = append(completed, i)
	}

	return -1, nil
}

func (s *Saga) compensate(ctx context.Context, completedIndexes []int) error {
	var errs []error
	for i := len(completedIndexes) - 1; i >= 0; i-- {
		step := s.steps[completedIndexes[i]]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate step %q: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
