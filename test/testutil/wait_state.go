package testutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/livequery/types"
)

// StateWaiter is anything whose lifecycle state can be awaited: *livequery.Query
// and *livequery.Backed[T] both qualify.
type StateWaiter interface {
	Wait(ctx context.Context, pred func(types.State) bool) (types.State, error)
}

// HasStatus returns a predicate matching states in status.
func HasStatus(status types.Status) func(types.State) bool {
	return func(s types.State) bool { return s.Status == status }
}

// WaitAllStatus waits until every waiter reaches status.
//
// The first waiter to time out cancels the others and its error is returned.
//
// Parameters:
//   - ctx: Parent context
//   - waiters: Queries or backed values to wait on
//   - status: Target status
//   - timeout: Upper bound for the whole wait
//
// Returns:
//   - error: nil if all waiters reached status, the first failure otherwise
//
// Example:
//
//	err := testutil.WaitAllStatus(ctx, []testutil.StateWaiter{q1, q2}, types.StatusSuccess, 5*time.Second)
//	require.NoError(t, err)
func WaitAllStatus(ctx context.Context, waiters []StateWaiter, status types.Status, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range waiters {
		g.Go(func() error {
			if _, err := w.Wait(gctx, HasStatus(status)); err != nil {
				return fmt.Errorf("waiter[%d] did not reach %s: %w", i, status, err)
			}

			return nil
		})
	}

	return g.Wait()
}

// WaitAnyStatus waits until at least one waiter reaches status.
//
// Returns:
//   - int: Index of the first waiter to reach status (-1 if none did)
//   - error: nil on success, the joined failures otherwise
func WaitAnyStatus(ctx context.Context, waiters []StateWaiter, status types.Status, timeout time.Duration) (int, error) {
	if len(waiters) == 0 {
		return -1, errors.New("no waiters provided")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		index int
		err   error
	}
	results := make(chan result, len(waiters))
	for i, w := range waiters {
		go func() {
			_, err := w.Wait(ctx, HasStatus(status))
			results <- result{index: i, err: err}
		}()
	}

	errs := make([]error, 0, len(waiters))
	for range waiters {
		r := <-results
		if r.err == nil {
			return r.index, nil
		}
		errs = append(errs, fmt.Errorf("waiter[%d]: %w", r.index, r.err))
	}

	return -1, fmt.Errorf("no waiter reached %s: %w", status, errors.Join(errs...))
}

// WaitStatusSequence waits for w to pass through statuses in order.
//
// Each step is bounded by timeout.
func WaitStatusSequence(ctx context.Context, w StateWaiter, statuses []types.Status, timeout time.Duration) error {
	for i, status := range statuses {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err := w.Wait(stepCtx, HasStatus(status))
		cancel()
		if err != nil {
			return fmt.Errorf("step[%d] %s: %w", i, status, err)
		}
	}

	return nil
}
