package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Parallel2 runs a and b concurrently under a shared context that is
// cancelled as soon as either fails. Results are only returned when both
// succeed.
//
// The status page uses it to read catalog counts while health checks run.
func Parallel2[A, B any](
	ctx context.Context,
	a func(context.Context) (A, error),
	b func(context.Context) (B, error),
) (A, B, error) {
	var (
		ra A
		rb B
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(collect(gctx, a, &ra))
	g.Go(collect(gctx, b, &rb))

	if err := g.Wait(); err != nil {
		var (
			za A
			zb B
		)

		return za, zb, fmt.Errorf("parallel: %w", err)
	}

	return ra, rb, nil
}

// collect adapts fn to errgroup.Go, storing its result in dst.
func collect[T any](ctx context.Context, fn func(context.Context) (T, error), dst *T) func() error {
	return func() error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}

		*dst = v

		return nil
	}
}
