// Package radix implements a least-significant-digit radix sort of unsigned
// keys on a barrier-synchronized worker team.
//
// Every pass partitions the keys across the team, builds per-worker digit
// histograms, turns them into one prefix-sum table cooperatively and scatters
// stably into a second buffer. Passes alternate between the key array and a
// scratch buffer; with an odd number of passes the result is copied back.
package radix

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ingla/pram/findmax"
	"github.com/ingla/pram/pools"
	"github.com/ingla/pram/team"
	"golang.org/x/exp/constraints"
)

// Key is the type of sortable keys.
type Key interface {
	constraints.Unsigned
}

// Options configures SortContext.
type Options struct {
	// NumDigits is the number of passes, 1 to 4.
	NumDigits int
	// TeamSize is the number of workers, at least 1.
	TeamSize int
	// Observer, if set, receives a snapshot of every pass.
	Observer Observer
}

// ErrTooManyKeys rejects inputs whose positions do not fit the 32-bit
// counters of the count table.
var ErrTooManyKeys = fmt.Errorf("more than %d keys", math.MaxInt32)

func (o Options) validate(n int) error {
	if o.NumDigits < 1 || o.NumDigits > MaxDigits {
		return fmt.Errorf("%w: %w, got %d", team.ErrConfiguration, ErrDigitCount, o.NumDigits)
	}
	if o.TeamSize < 1 {
		return fmt.Errorf("%w: team size %d, must be at least 1", team.ErrConfiguration, o.TeamSize)
	}
	if n > math.MaxInt32 {
		return fmt.Errorf("%w: %w, got %d", team.ErrConfiguration, ErrTooManyKeys, n)
	}
	return nil
}

// Sort sorts keys ascending in place with numDigits passes and teamSize
// workers.
func Sort[K Key](keys []K, numDigits, teamSize int) error {
	return SortContext(context.Background(), keys, Options{NumDigits: numDigits, TeamSize: teamSize})
}

// SortContext sorts keys ascending in place. The sort is stable. On error the
// contents of keys are unspecified, but still a permutation of the input
// unless the error wraps team.ErrBarrier.
//
// One team runs the whole sort: the max reduction, then every digit pass.
func SortContext[K Key](ctx context.Context, keys []K, opts Options) error {
	if err := opts.validate(len(keys)); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	slots := make([]K, opts.TeamSize)
	return sortPasses(ctx, keys, func(w *team.Worker) ([]Chunk, error) {
		maxKey, err := findmax.Reduce(w, keys, slots)
		if err != nil {
			return nil, fmt.Errorf("finding max key: %w", err)
		}
		// Every worker agreed on maxKey and derives the same plan from it.
		return PlanDigits(BitWidth(uint64(maxKey)), opts.NumDigits)
	}, opts)
}

// planFunc is the first phase of the team. Every worker calls it and gets the
// same digit plan.
type planFunc func(w *team.Worker) ([]Chunk, error)

func sortPasses[K Key](ctx context.Context, keys []K, plan planFunc, opts Options) error {
	size := opts.TeamSize
	scratch := make([]K, len(keys))

	// Set by worker 0 between the plan and the first pass.
	var (
		backing []int32
		snaps   []*PassSnapshot
	)

	err := team.Run(ctx, len(keys), size, func(w *team.Worker) error {
		chunks, err := plan(w)
		if err != nil {
			// A bad plan is the same on every worker, so worker 0 reports it.
			if w.ID == 0 || errors.Is(err, team.ErrBarrier) {
				return err
			}
			return nil
		}

		if w.ID == 0 {
			backing = pools.Pools.GetCounts((size + 1) * maxRadix(chunks))
			if opts.Observer != nil {
				snaps = make([]*PassSnapshot, len(chunks))
				for i, c := range chunks {
					snaps[i] = newSnapshot(i, c, size)
				}
			}
		}
		if err := w.Await(); err != nil {
			return err
		}

		for i, c := range chunks {
			src, dst := keys, scratch
			if i%2 == 1 {
				src, dst = scratch, keys
			}
			t, err := newCountTable(backing, size, c.Radix())
			if err != nil {
				return err
			}
			var snap *PassSnapshot
			if snaps != nil {
				snap = snaps[i]
			}
			if err := pass(w, t, src, dst, c, snap, opts.Observer); err != nil {
				return fmt.Errorf("pass %d (%s): %w", i, c, err)
			}
		}

		// The last pass wrote scratch. Its closing barrier makes the whole
		// buffer visible, so each worker copies back its own partition.
		if len(chunks)%2 == 1 {
			r := w.Range
			copy(keys[r.Start:r.Stop], scratch[r.Start:r.Stop])
		}
		return nil
	})
	if backing != nil {
		pools.Pools.ReturnCounts(backing)
	}
	if err != nil {
		return fmt.Errorf("radix sort: %w", err)
	}
	return nil
}
