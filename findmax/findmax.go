// Package findmax finds the largest key of an array, sequentially or on a
// barrier-synchronized worker team.
package findmax

import (
	"context"
	"errors"
	"fmt"

	"github.com/ingla/pram/team"
	"golang.org/x/exp/constraints"
)

// ErrEmpty is returned when the maximum of an empty array is requested
var ErrEmpty = errors.New("empty key array")

// Sequential scans keys once and returns the largest value.
func Sequential[K constraints.Unsigned](keys []K) (K, error) {
	if len(keys) == 0 {
		return 0, ErrEmpty
	}
	m := keys[0]
	for _, k := range keys[1:] {
		if k > m {
			m = k
		}
	}
	return m, nil
}

// Parallel finds the maximum with teamSize workers. Each worker reduces its
// own partition into a slot, and after a barrier every worker reads all slots.
func Parallel[K constraints.Unsigned](ctx context.Context, keys []K, teamSize int) (K, error) {
	if teamSize < 1 {
		return 0, fmt.Errorf("%w: team size %d", team.ErrConfiguration, teamSize)
	}
	if len(keys) == 0 {
		return 0, ErrEmpty
	}

	slots := make([]K, teamSize)
	results := make([]K, teamSize)
	err := team.Run(ctx, len(keys), teamSize, func(w *team.Worker) error {
		m, err := Reduce(w, keys, slots)
		if err != nil {
			return err
		}
		results[w.ID] = m
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("parallel max: %w", err)
	}

	// Every worker computed the same value; worker 0 speaks for the team.
	return results[0], nil
}

// Reduce is the in-team max phase. It must be called by every worker of the
// team with the same keys and a slots slice of length w.Size. Slots are
// written once before the barrier and only read after it.
func Reduce[K constraints.Unsigned](w *team.Worker, keys []K, slots []K) (K, error) {
	if len(slots) != w.Size {
		return 0, fmt.Errorf("%w: %d max slots for %d workers", team.ErrInvariant, len(slots), w.Size)
	}

	// Zero is the identity for unsigned keys, so empty partitions are harmless.
	var local K
	for _, k := range keys[w.Range.Start:w.Range.Stop] {
		if k > local {
			local = k
		}
	}
	slots[w.ID] = local

	if err := w.Await(); err != nil {
		return 0, err
	}

	m := local
	for _, v := range slots {
		if v > m {
			m = v
		}
	}
	return m, nil
}
