// Package matmul multiplies square row-major matrices, sequentially or with
// a worker team that splits the result into horizontal strips.
package matmul

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/ingla/pram/team"
)

// Matrix is an N x N matrix stored row-major.
type Matrix struct {
	N    int
	Data []float64
}

// New returns a zero N x N matrix.
func New(n int) Matrix {
	return Matrix{N: n, Data: make([]float64, n*n)}
}

// Random returns an N x N matrix with seeded entries in [0, 1).
func Random(n int, seed int64) Matrix {
	rng := rand.New(rand.NewSource(seed))
	m := New(n)
	for i := range m.Data {
		m.Data[i] = rng.Float64()
	}
	return m
}

// At returns the element in row i, column j.
func (m Matrix) At(i, j int) float64 {
	return m.Data[i*m.N+j]
}

func (m Matrix) row(i int) []float64 {
	return m.Data[i*m.N : (i+1)*m.N]
}

func (m Matrix) validate() error {
	if m.N < 0 || len(m.Data) != m.N*m.N {
		return fmt.Errorf("%w: %d elements for a %dx%d matrix", team.ErrConfiguration, len(m.Data), m.N, m.N)
	}
	return nil
}

func check(a, b Matrix) error {
	if err := a.validate(); err != nil {
		return err
	}
	if err := b.validate(); err != nil {
		return err
	}
	if a.N != b.N {
		return fmt.Errorf("%w: cannot multiply %dx%d by %dx%d", team.ErrConfiguration, a.N, a.N, b.N, b.N)
	}
	return nil
}

// Sequential computes a*b on the calling goroutine.
func Sequential(a, b Matrix) (Matrix, error) {
	if err := check(a, b); err != nil {
		return Matrix{}, err
	}
	c := New(a.N)
	multiplyRows(a, b, c, 0, a.N)
	return c, nil
}

// Parallel computes a*b with each worker filling its own rows of the result.
// No barrier is needed since workers share nothing they write.
func Parallel(ctx context.Context, a, b Matrix, teamSize int) (Matrix, error) {
	if err := check(a, b); err != nil {
		return Matrix{}, err
	}
	c := New(a.N)
	err := team.Run(ctx, a.N, teamSize, func(w *team.Worker) error {
		multiplyRows(a, b, c, w.Range.Start, w.Range.Stop)
		return nil
	})
	if err != nil {
		return Matrix{}, fmt.Errorf("parallel multiply: %w", err)
	}
	return c, nil
}

// ParallelTransposed transposes b into a copy first, so every result element
// is a dot product of two contiguous rows.
func ParallelTransposed(ctx context.Context, a, b Matrix, teamSize int) (Matrix, error) {
	if err := check(a, b); err != nil {
		return Matrix{}, err
	}
	bt := New(b.N)
	transposeRows(b, bt, 0, b.N)

	c := New(a.N)
	err := team.Run(ctx, a.N, teamSize, func(w *team.Worker) error {
		multiplyRowsTransposed(a, bt, c, w.Range.Start, w.Range.Stop)
		return nil
	})
	if err != nil {
		return Matrix{}, fmt.Errorf("parallel transposed multiply: %w", err)
	}
	return c, nil
}

// ParallelTransposed2 lets the team transpose b as well: each worker moves its
// own rows of b into columns of the copy, waits for the others, then
// multiplies.
func ParallelTransposed2(ctx context.Context, a, b Matrix, teamSize int) (Matrix, error) {
	if err := check(a, b); err != nil {
		return Matrix{}, err
	}
	bt := New(b.N)
	c := New(a.N)
	err := team.Run(ctx, a.N, teamSize, func(w *team.Worker) error {
		transposeRows(b, bt, w.Range.Start, w.Range.Stop)
		if err := w.Await(); err != nil {
			return err
		}
		multiplyRowsTransposed(a, bt, c, w.Range.Start, w.Range.Stop)
		return nil
	})
	if err != nil {
		return Matrix{}, fmt.Errorf("parallel transposed multiply: %w", err)
	}
	return c, nil
}

func multiplyRows(a, b, c Matrix, start, stop int) {
	n := a.N
	for i := start; i < stop; i++ {
		ci := c.row(i)
		ai := a.row(i)
		// i-k-j order streams rows of b.
		for k := 0; k < n; k++ {
			aik := ai[k]
			bk := b.row(k)
			for j := range ci {
				ci[j] += aik * bk[j]
			}
		}
	}
}

func multiplyRowsTransposed(a, bt, c Matrix, start, stop int) {
	for i := start; i < stop; i++ {
		ai := a.row(i)
		ci := c.row(i)
		for j := range ci {
			bj := bt.row(j)
			var sum float64
			for k, v := range ai {
				sum += v * bj[k]
			}
			ci[j] = sum
		}
	}
}

// transposeRows writes rows [start, stop) of m as columns of t.
func transposeRows(m, t Matrix, start, stop int) {
	n := m.N
	for i := start; i < stop; i++ {
		for j, v := range m.row(i) {
			t.Data[j*n+i] = v
		}
	}
}
