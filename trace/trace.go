// Package trace records the pass snapshots of a radix sort so that another
// goroutine (the inspector, the plot writer) can read them while the sort
// is still running.
package trace

import (
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/ingla/pram/radix"
)

// Recorder stores one snapshot per pass. Observe is safe to pass as a
// radix.Observer.
type Recorder struct {
	passes *haxmap.Map[int, radix.PassSnapshot]
	count  atomic.Int32
	notify chan int
}

// NewRecorder creates a recorder sized for a sort with numDigits passes.
// If notify is true, Updates delivers the index of every recorded pass.
func NewRecorder(numDigits int, notify bool) *Recorder {
	r := &Recorder{
		passes: haxmap.New[int, radix.PassSnapshot](uintptr(max(numDigits, 1))),
	}
	if notify {
		r.notify = make(chan int, max(numDigits, 1))
	}
	return r
}

// Observe records a snapshot. Re-recording a pass replaces it.
func (r *Recorder) Observe(s radix.PassSnapshot) {
	if _, exists := r.passes.Get(s.Pass); !exists {
		r.count.Add(1)
	}
	r.passes.Set(s.Pass, s)
	if r.notify != nil {
		select {
		case r.notify <- s.Pass:
		default:
		}
	}
}

// Updates returns the pass notification channel, or nil if the recorder was
// created without one.
func (r *Recorder) Updates() <-chan int {
	return r.notify
}

// Pass returns the snapshot of pass i if it was recorded.
func (r *Recorder) Pass(i int) (radix.PassSnapshot, bool) {
	return r.passes.Get(i)
}

// Len is the number of recorded passes.
func (r *Recorder) Len() int {
	return int(r.count.Load())
}

// Snapshots returns the recorded passes in pass order, stopping at the first
// pass not recorded yet.
func (r *Recorder) Snapshots() []radix.PassSnapshot {
	n := r.Len()
	out := make([]radix.PassSnapshot, 0, n)
	for i := 0; i < n; i++ {
		s, ok := r.passes.Get(i)
		if !ok {
			break
		}
		out = append(out, s)
	}
	return out
}

// Reset forgets all recorded passes.
func (r *Recorder) Reset() {
	var keys []int
	r.passes.ForEach(func(k int, _ radix.PassSnapshot) bool {
		keys = append(keys, k)
		return true
	})
	r.passes.Del(keys...)
	r.count.Store(0)
}
