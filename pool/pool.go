// Package pool runs a per-file analysis over many input files with a
// bounded number of goroutines.
package pool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map calls fn on every input with at most threads calls in flight and
// returns the results in input order. The first error cancels the
// context handed to the remaining calls and is returned.
func Map[T any](ctx context.Context, inputs []string, threads int, fn func(ctx context.Context, input string) (T, error)) ([]T, error) {
	if threads < 1 {
		threads = 1
	}
	out := make([]T, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := fn(ctx, in)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
