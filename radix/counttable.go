package radix

import (
	"fmt"

	"github.com/ingla/pram/team"
)

// countTable is the shared (workers+1) × radix table of one digit pass,
// stored flat. Row r < workers belongs to worker r; row workers holds the
// column totals.
//
// Counters are 32 bits wide; SortContext rejects inputs longer than
// math.MaxInt32.
//
// The table goes through three states inside a pass:
//
//	counts:   row r holds the local histogram of worker r
//	prefixed: row r holds, per digit, the number of keys with that digit in
//	          workers before r; the totals row holds the global histogram
//	offsets:  row r holds the first destination index of every digit for r
type countTable struct {
	workers int
	radix   int
	cells   []int32
}

// newCountTable views the first (workers+1)*radix cells of backing.
func newCountTable(backing []int32, workers, radix int) (countTable, error) {
	need := (workers + 1) * radix
	if need > len(backing) {
		return countTable{}, fmt.Errorf("%w: count table needs %d cells, have %d", team.ErrInvariant, need, len(backing))
	}
	return countTable{workers: workers, radix: radix, cells: backing[:need]}, nil
}

func (t countTable) row(r int) []int32 {
	return t.cells[r*t.radix : (r+1)*t.radix]
}

func (t countTable) totals() []int32 {
	return t.row(t.workers)
}

// count zeroes the worker's row and fills it with the digit histogram of its
// partition of src. Worker 0 also clears the totals row.
func count[K Key](t countTable, w *team.Worker, src []K, c Chunk) {
	row := t.row(w.ID)
	clear(row)
	if w.ID == 0 {
		clear(t.totals())
	}
	for _, k := range src[w.Range.Start:w.Range.Stop] {
		row[c.Digit(uint64(k))]++
	}
}

// prefixColumns turns the columns owned by w into exclusive prefix sums down
// the worker rows and stores each column total in the totals row.
func prefixColumns(t countTable, w *team.Worker) {
	cols := w.Columns(t.radix)
	for col := cols.Start; col < cols.Stop; col++ {
		var sum int32
		for r := 0; r < t.workers; r++ {
			i := r*t.radix + col
			v := t.cells[i]
			t.cells[i] = sum
			sum += v
		}
		t.cells[t.workers*t.radix+col] = sum
	}
}

// offsets rewrites the worker's prefixed row into scatter offsets:
// offset[v] = sum of totals[u] for u < v, plus row[v].
func offsets(t countTable, w *team.Worker) []int32 {
	row := t.row(w.ID)
	var base int32
	for v, total := range t.totals() {
		row[v] += base
		base += total
	}
	return row
}
