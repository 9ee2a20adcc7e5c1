package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ditto-display/ditto/internal/platform/logging"
)

// Stage names a step of an Operation.
type Stage string

const (
	StageValidate Stage = "validate"
	StageFetch    Stage = "fetch"
	StageVerify   Stage = "verify"
	StageApply    Stage = "apply"
)

// StageError records which step of an operation failed.
type StageError struct {
	Operation string
	Stage     Stage
	Err       error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Operation, e.Stage, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage an operation failed at.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}

	return "", false
}

// Operation reads remote state, checks it and only then writes it, so a
// failed or implausible read never reaches local state. F is what Fetch
// returns and O is the result of Apply.
type Operation[I, F, O any] struct {
	Name string

	// Validate checks preconditions before anything is read.
	Validate func(ctx context.Context, input I) error

	// Fetch reads the remote state.
	Fetch func(ctx context.Context, input I) (F, error)

	// Verify rejects fetched state that must not be applied.
	Verify func(ctx context.Context, input I, fetched F) error

	// Apply persists the verified state.
	Apply func(ctx context.Context, input I, fetched F) (O, error)
}

// Run executes op. Every stage is optional except Fetch and Apply.
func Run[I, F, O any](ctx context.Context, logger *slog.Logger, op Operation[I, F, O], input I) (O, error) {
	var zero O

	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	logger = logger.With(slog.String("operation", op.Name))
	start := time.Now()

	fail := func(stage Stage, err error) (O, error) {
		logger.WarnContext(ctx, "operation failed",
			slog.String("stage", string(stage)),
			slog.Any("error", err),
		)

		return zero, &StageError{Operation: op.Name, Stage: stage, Err: err}
	}

	if op.Validate != nil {
		if err := op.Validate(ctx, input); err != nil {
			return fail(StageValidate, err)
		}
	}

	fetched, err := op.Fetch(ctx, input)
	if err != nil {
		return fail(StageFetch, err)
	}

	logger.DebugContext(ctx, "fetched", slog.Duration("elapsed", time.Since(start)))

	if op.Verify != nil {
		if err := op.Verify(ctx, input, fetched); err != nil {
			return fail(StageVerify, err)
		}
	}

	// Nothing has been written yet; a cancelled operation stops here.
	if err := ctx.Err(); err != nil {
		return fail(StageApply, err)
	}

	out, err := op.Apply(ctx, input, fetched)
	if err != nil {
		return fail(StageApply, err)
	}

	logger.DebugContext(ctx, "operation completed", slog.Duration("duration", time.Since(start)))

	return out, nil
}
