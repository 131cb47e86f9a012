package radix

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/ingla/pram/team"
)

// MaxDigitBits bounds the width of a single digit chunk. A chunk of w bits
// needs a count table with 2^w columns per worker row.
const MaxDigitBits = 24

// MaxDigits is the largest supported number of digit passes.
const MaxDigits = 4

var (
	ErrDigitCount   = errors.New("number of digits must be between 1 and 4")
	ErrDigitTooWide = fmt.Errorf("digit chunk wider than %d bits", MaxDigitBits)
)

// Chunk is one digit of the sort: Width bits starting at bit Shift.
type Chunk struct {
	Width uint
	Shift uint
}

// Radix is the number of distinct values of the chunk.
func (c Chunk) Radix() int {
	return 1 << c.Width
}

// Mask selects the chunk bits after shifting.
func (c Chunk) Mask() uint64 {
	return uint64(1)<<c.Width - 1
}

// Digit extracts the chunk value of key.
func (c Chunk) Digit(key uint64) int {
	return int((key >> c.Shift) & c.Mask())
}

func (c Chunk) String() string {
	return fmt.Sprintf("bits [%d,%d)", c.Shift, c.Shift+c.Width)
}

// BitWidth is the smallest b with max < 2^b. Zero still needs one bit.
func BitWidth(max uint64) uint {
	if max == 0 {
		return 1
	}
	return uint(bits.Len64(max))
}

// PlanDigits splits width bits into numDigits chunks of width/numDigits bits,
// least significant first. The last chunk takes the remainder. Chunks may be
// zero bits wide when width < numDigits.
func PlanDigits(width uint, numDigits int) ([]Chunk, error) {
	if numDigits < 1 || numDigits > MaxDigits {
		return nil, fmt.Errorf("%w: %w, got %d", team.ErrConfiguration, ErrDigitCount, numDigits)
	}

	base := width / uint(numDigits)
	chunks := make([]Chunk, numDigits)
	var shift uint
	for i := range chunks {
		w := base
		if i == numDigits-1 {
			w = width - shift
		}
		chunks[i] = Chunk{Width: w, Shift: shift}
		shift += w
	}

	if err := verifyPlan(chunks, width); err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.Width > MaxDigitBits {
			return nil, fmt.Errorf("%w: %w: %d-bit key width in %d digits gives a %d-bit chunk",
				team.ErrConfiguration, ErrDigitTooWide, width, numDigits, c.Width)
		}
	}
	return chunks, nil
}

func verifyPlan(chunks []Chunk, width uint) error {
	var next uint
	for i, c := range chunks {
		if c.Shift != next {
			return fmt.Errorf("%w: chunk %d starts at bit %d, expected %d", team.ErrInvariant, i, c.Shift, next)
		}
		next += c.Width
	}
	if next != width {
		return fmt.Errorf("%w: chunks cover %d bits of %d", team.ErrInvariant, next, width)
	}
	return nil
}

// maxRadix is the widest count table row any chunk of the plan needs.
func maxRadix(chunks []Chunk) int {
	r := 1
	for _, c := range chunks {
		if c.Radix() > r {
			r = c.Radix()
		}
	}
	return r
}
