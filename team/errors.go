package team

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds shared by every algorithm that runs on a team. Match them with
// errors.Is.
var (
	// ErrConfiguration marks invalid call parameters. Calls fail with it
	// before any worker is started.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrBarrier marks a call aborted because a worker could not reach the
	// barrier. Shared state is invalid afterwards and no partial result is kept.
	ErrBarrier = errors.New("barrier failure")

	// ErrInvariant marks a violated internal invariant (bad tiling, bad digit
	// plan). It always indicates a bug.
	ErrInvariant = errors.New("invariant violation")
)

// WorkerError is the failure of a single worker.
type WorkerError struct {
	Worker int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d: %v", e.Worker, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// Failure aggregates everything that went wrong in one Run. Causes holds the
// workers that failed on their own; Broken is set when the failure broke the
// barrier and released the others with an error.
type Failure struct {
	Size   int
	Causes []*WorkerError
	Broken bool
}

func (f *Failure) Error() string {
	var sb strings.Builder
	if f.Broken {
		sb.WriteString("barrier failure: ")
	}
	fmt.Fprintf(&sb, "%d of %d workers failed", len(f.Causes), f.Size)
	for _, c := range f.Causes {
		sb.WriteString("; ")
		sb.WriteString(c.Error())
	}
	return sb.String()
}

// Unwrap exposes the root causes (and ErrBarrier when the barrier broke) to
// errors.Is and errors.As.
func (f *Failure) Unwrap() []error {
	errs := make([]error, 0, len(f.Causes)+1)
	if f.Broken {
		errs = append(errs, ErrBarrier)
	}
	for _, c := range f.Causes {
		errs = append(errs, c)
	}
	return errs
}
