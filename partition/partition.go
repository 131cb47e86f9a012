package partition

import (
	"errors"
	"fmt"
)

// ErrInvalidParts is returned when a plan is requested for a non-positive
// number of parts or a negative length.
var ErrInvalidParts = errors.New("invalid partition request")

// Range is the contiguous index span [Start, Stop) owned by one worker.
type Range struct {
	Worker int
	Start  int
	Stop   int
}

// Len returns the number of indices in the range
func (r Range) Len() int {
	return r.Stop - r.Start
}

// Empty reports whether the range holds no indices
func (r Range) Empty() bool {
	return r.Stop <= r.Start
}

// Plan splits [0, n) into parts contiguous ranges. Every range gets n/parts
// indices and the last one also absorbs the n%parts remainder, so when
// parts > n all but the last range are empty.
func Plan(n, parts int) ([]Range, error) {
	if parts <= 0 {
		return nil, fmt.Errorf("%w: %d parts", ErrInvalidParts, parts)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidParts, n)
	}

	ranges := make([]Range, parts)
	size := n / parts
	start := 0
	for i := 0; i < parts-1; i++ {
		ranges[i] = Range{Worker: i, Start: start, Stop: start + size}
		start += size
	}
	ranges[parts-1] = Range{Worker: parts - 1, Start: start, Stop: n}

	return ranges, nil
}

// At returns the range of a single worker without building the whole plan.
// It produces exactly the same bounds as Plan.
func At(n, parts, worker int) (Range, error) {
	if parts <= 0 || n < 0 {
		return Range{}, fmt.Errorf("%w: %d parts over length %d", ErrInvalidParts, parts, n)
	}
	if worker < 0 || worker >= parts {
		return Range{}, fmt.Errorf("%w: worker %d of %d", ErrInvalidParts, worker, parts)
	}

	size := n / parts
	r := Range{Worker: worker, Start: worker * size, Stop: (worker + 1) * size}
	if worker == parts-1 {
		r.Stop = n
	}
	return r, nil
}

// Verify checks that ranges tile [0, n) exactly: ordered by worker, no gaps,
// no overlaps.
func Verify(ranges []Range, n int) error {
	next := 0
	for i, r := range ranges {
		if r.Worker != i {
			return fmt.Errorf("range %d carries worker id %d", i, r.Worker)
		}
		if r.Start != next {
			return fmt.Errorf("range %d starts at %d, expected %d", i, r.Start, next)
		}
		if r.Stop < r.Start {
			return fmt.Errorf("range %d is inverted: [%d, %d)", i, r.Start, r.Stop)
		}
		next = r.Stop
	}
	if next != n {
		return fmt.Errorf("ranges cover [0, %d), expected [0, %d)", next, n)
	}
	return nil
}
