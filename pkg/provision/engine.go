// Package provision drives cloud resources through a fixed, ordered
// probe → create-if-absent → configure sequence. Ordering is an explicit
// list, never an inferred dependency graph: later steps may assume earlier
// resources are ready only because the list says so.
package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/stackpilot/stackpilot/pkg/errdefs"
	"github.com/stackpilot/stackpilot/pkg/logging"
	"github.com/stackpilot/stackpilot/pkg/probe"
)

// Step is one resource in the provisioning plan.
type Step struct {
	// Descriptor identifies the resource for probes and diagnostics
	Descriptor probe.Descriptor

	// Critical steps abort the run on failure; non-critical steps log a
	// warning and continue
	Critical bool

	// Probe is the read-only describe call. Nil means the step has no
	// meaningful existence check and goes straight to Configure.
	Probe func(ctx context.Context) error

	// Create runs when the probe reports NotFound. "Already exists" from
	// the platform is treated as success (a concurrent run got there first).
	Create func(ctx context.Context) error

	// Configure runs after Create (or after an Exists skip) to re-assert
	// settings that must hold on every run, such as IAM bindings.
	Configure func(ctx context.Context) error
}

// Action records what the engine did for a step.
type Action string

const (
	ActionCreated    Action = "created"
	ActionSkipped    Action = "skipped"
	ActionConfigured Action = "configured"
	ActionWarned     Action = "warned"
)

// warnOnlyError marks a condition the run surfaces without aborting, even on
// a critical step. The resource stays as found; converging it is a manual
// operation.
type warnOnlyError struct{ err error }

func (w *warnOnlyError) Error() string { return w.err.Error() }
func (w *warnOnlyError) Unwrap() error { return w.err }

// WarnOnly wraps err so the engine records the step as warned and continues.
func WarnOnly(err error) error { return &warnOnlyError{err: err} }

// StepResult is the per-step outcome, used by callers to verify
// idempotence (a second run should contain no ActionCreated entries).
type StepResult struct {
	Descriptor probe.Descriptor
	Action     Action
	Err        error
}

// Apply runs the plan sequentially. Execution is single-threaded and
// synchronous; the first fatal error stops the run, leaving whatever
// succeeded in place for an idempotent re-run to converge on.
func Apply(ctx context.Context, steps []Step) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))

	for _, step := range steps {
		result, err := applyStep(ctx, step)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

func applyStep(ctx context.Context, step Step) (StepResult, error) {
	result := StepResult{Descriptor: step.Descriptor, Action: ActionSkipped}

	created := false
	if step.Probe != nil {
		state, err := probe.Check(ctx, step.Descriptor, step.Probe)
		if err != nil {
			// Unauthorized is terminal regardless of criticality: creating
			// under an ambiguous permission state is worse than stopping.
			if errdefs.IsInsufficientPermissions(err) {
				result.Err = err
				return result, err
			}
			return stepFailed(step, result, fmt.Errorf("probe failed: %w", err))
		}

		switch state {
		case probe.Exists:
			logging.Info("resource exists, skipping creation", "resource", step.Descriptor.String())
		case probe.NotFound:
			if step.Create != nil {
				logging.Info("creating resource", "resource", step.Descriptor.String())
				if err := step.Create(ctx); err != nil {
					if probe.IsAlreadyExists(err) {
						// A concurrent run won the probe-then-create race;
						// the platform's idempotency makes this a success.
						logging.Info("resource created concurrently", "resource", step.Descriptor.String())
					} else {
						return stepFailed(step, result, err)
					}
				} else {
					created = true
					result.Action = ActionCreated
				}
			}
		}
	}

	if step.Configure != nil {
		if err := step.Configure(ctx); err != nil {
			return stepFailed(step, result, fmt.Errorf("configure failed: %w", err))
		}
		if !created {
			result.Action = ActionConfigured
		}
	}

	return result, nil
}

func stepFailed(step Step, result StepResult, err error) (StepResult, error) {
	var warn *warnOnlyError
	if errors.As(err, &warn) {
		logging.Warn("step requires manual intervention, continuing",
			"resource", step.Descriptor.String(), "error", warn.err.Error())
		result.Action = ActionWarned
		result.Err = warn.err
		return result, nil
	}

	if !step.Critical {
		logging.Warn("non-critical step failed, continuing",
			"resource", step.Descriptor.String(), "error", err.Error())
		result.Action = ActionWarned
		result.Err = err
		return result, nil
	}

	failure := &errdefs.ProvisioningFailedError{
		Resource: step.Descriptor.String(),
		Err:      err,
	}
	result.Err = failure
	return result, failure
}

// Mutations counts the steps that changed platform state. A re-run against
// an unchanged config must report zero.
func Mutations(results []StepResult) int {
	n := 0
	for _, r := range results {
		if r.Action == ActionCreated {
			n++
		}
	}
	return n
}
