package radix

import (
	"fmt"
	"math"

	"github.com/ingla/pram/findmax"
	"github.com/ingla/pram/team"
)

// Sequential sorts keys in place on the calling goroutine with the same digit
// plan and buffer parity as Sort.
func Sequential[K Key](keys []K, numDigits int) error {
	if numDigits < 1 || numDigits > MaxDigits {
		return fmt.Errorf("%w: %w, got %d", team.ErrConfiguration, ErrDigitCount, numDigits)
	}
	if len(keys) > math.MaxInt32 {
		return fmt.Errorf("%w: %w, got %d", team.ErrConfiguration, ErrTooManyKeys, len(keys))
	}
	if len(keys) <= 1 {
		return nil
	}

	maxKey, err := findmax.Sequential(keys)
	if err != nil {
		return err
	}
	chunks, err := PlanDigits(BitWidth(uint64(maxKey)), numDigits)
	if err != nil {
		return err
	}

	// Allocate scratch and counts once for all passes
	scratch := make([]K, len(keys))
	counts := make([]int32, maxRadix(chunks))

	src, dst := keys, scratch
	for _, c := range chunks {
		sequentialPass(src, dst, counts[:c.Radix()], c)
		src, dst = dst, src
	}
	if len(chunks)%2 == 1 {
		copy(keys, scratch)
	}
	return nil
}

// sequentialPass performs one pass of counting sort on the chunk c.
func sequentialPass[K Key](src, dst []K, counts []int32, c Chunk) {
	clear(counts)
	for _, k := range src {
		counts[c.Digit(uint64(k))]++
	}

	// Convert counts to prefix sums (starting positions)
	var total int32
	for i, n := range counts {
		counts[i] = total
		total += n
	}

	// Place elements in sorted order
	for _, k := range src {
		d := c.Digit(uint64(k))
		dst[counts[d]] = k
		counts[d]++
	}
}
