package radix

import (
	"github.com/ingla/pram/partition"
	"github.com/ingla/pram/team"
)

// PassSnapshot is a read-only copy of one pass's count table, taken after the
// team agreed on the column totals.
type PassSnapshot struct {
	Pass       int
	Chunk      Chunk
	Partitions []partition.Range
	// Histograms[w] is the local digit histogram of worker w.
	Histograms [][]int
	// Totals is the global digit histogram of the pass.
	Totals []int
}

// Observer is called by worker 0 once per pass while the other workers
// scatter. Snapshots are copies and may be kept.
type Observer func(PassSnapshot)

func newSnapshot(pass int, c Chunk, workers int) *PassSnapshot {
	return &PassSnapshot{
		Pass:       pass,
		Chunk:      c,
		Partitions: make([]partition.Range, workers),
		Histograms: make([][]int, workers),
	}
}

// widen copies a table row out into plain ints.
func widen(row []int32) []int {
	out := make([]int, len(row))
	for i, v := range row {
		out[i] = int(v)
	}
	return out
}

// pass runs one stable counting-sort pass of the worker's partition from src
// into dst. Every worker of the team calls it with the same arguments except
// w. It awaits the barrier three times.
func pass[K Key](w *team.Worker, t countTable, src, dst []K, c Chunk, snap *PassSnapshot, observe Observer) error {
	count(t, w, src, c)
	if snap != nil {
		snap.Partitions[w.ID] = w.Range
		snap.Histograms[w.ID] = widen(t.row(w.ID))
	}
	if err := w.Await(); err != nil {
		return err
	}

	prefixColumns(t, w)
	if err := w.Await(); err != nil {
		return err
	}

	// The totals row is read-only from here until the end of the pass.
	if snap != nil && w.ID == 0 {
		snap.Totals = widen(t.totals())
		observe(*snap)
	}

	next := offsets(t, w)
	for _, k := range src[w.Range.Start:w.Range.Stop] {
		d := c.Digit(uint64(k))
		dst[next[d]] = k
		next[d]++
	}

	// dst is complete and the table may be reused.
	return w.Await()
}
