package team

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/ingla/pram/barrier"
	"github.com/ingla/pram/partition"
)

// Worker is the handle a unit of work gets for one Run. ID is stable in
// [0, Size) for the whole call and Range is the partition of [0, n) the
// worker owns.
type Worker struct {
	ID    int
	Size  int
	Range partition.Range

	bar *barrier.Barrier
}

// Await blocks until every worker of the team has called Await the same
// number of times. It is the only point where a worker suspends.
func (w *Worker) Await() error {
	if err := w.bar.Await(); err != nil {
		return fmt.Errorf("%w: %w", ErrBarrier, err)
	}
	return nil
}

// Columns returns the share of a column space of width count owned by this
// worker, planned the same way as the array partitions.
func (w *Worker) Columns(count int) partition.Range {
	r, err := partition.At(count, w.Size, w.ID)
	if err != nil {
		return partition.Range{Worker: w.ID}
	}
	return r
}

// DefaultSize is the team size used when callers ask for 0 workers
func DefaultSize() int {
	return runtime.NumCPU()
}

// Run starts exactly size workers over the partitions of [0, n) and blocks
// until all of them return. Every worker must call Await the same number of
// times. A worker that fails, panics or is cancelled through ctx breaks the
// barrier so nobody waits forever, and Run reports a *Failure.
func Run(ctx context.Context, n, size int, work func(w *Worker) error) error {
	if size < 1 {
		return fmt.Errorf("%w: team size %d, must be at least 1", ErrConfiguration, size)
	}
	ranges, err := partition.Plan(n, size)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := partition.Verify(ranges, n); err != nil {
		return fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bar := barrier.New(size)
	errs := make([]error, size)

	stop := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			bar.Break(ctx.Err())
		case <-stop:
		}
	}()

	var wg sync.WaitGroup
	wg.Add(size)
	for i := 0; i < size; i++ {
		w := &Worker{ID: i, Size: size, Range: ranges[i], bar: bar}
		go func() {
			defer wg.Done()
			errs[w.ID] = runWorker(w, work)
		}()
	}
	wg.Wait()

	close(stop)
	<-watcherDone

	return collect(ctx, size, errs, bar.Broken())
}

// runWorker runs one unit of work and converts a panic into an error. Any
// failure that is not itself caused by the broken barrier breaks it.
func runWorker(w *Worker, work func(w *Worker) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil && !errors.Is(err, ErrBarrier) {
			w.bar.Break(&WorkerError{Worker: w.ID, Err: err})
		}
	}()
	return work(w)
}

func collect(ctx context.Context, size int, errs []error, broken bool) error {
	var f *Failure
	for id, err := range errs {
		if err == nil {
			continue
		}
		if f == nil {
			f = &Failure{Size: size, Broken: broken}
		}
		// Workers released by a broken barrier are victims, not causes.
		if errors.Is(err, ErrBarrier) {
			continue
		}
		f.Causes = append(f.Causes, &WorkerError{Worker: id, Err: err})
	}
	if f == nil {
		return nil
	}
	if len(f.Causes) == 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", f, ctxErr)
		}
	}
	return f
}
