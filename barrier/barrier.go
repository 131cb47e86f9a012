package barrier

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBroken is returned by Await once the barrier has been broken.
var ErrBroken = errors.New("barrier broken")

// generation is one trip of the barrier. done is closed on release or break.
type generation struct {
	done   chan struct{}
	broken bool
}

// Barrier is a reusable cyclic barrier for a fixed number of parties.
// Every party must call Await before any of them returns from it; the
// barrier then resets for the next round.
type Barrier struct {
	mu      sync.Mutex
	parties int
	waiting int
	gen     *generation
	cause   error
}

// New creates a barrier for parties goroutines. parties < 1 is treated as 1.
func New(parties int) *Barrier {
	if parties < 1 {
		parties = 1
	}
	return &Barrier{
		parties: parties,
		gen:     &generation{done: make(chan struct{})},
	}
}

// Parties returns the number of goroutines that must arrive per round
func (b *Barrier) Parties() int {
	return b.parties
}

// Await blocks until all parties of the current round have arrived.
// Writes made before Await are visible to every party after it returns nil.
func (b *Barrier) Await() error {
	b.mu.Lock()
	if b.gen.broken {
		err := b.brokenErr()
		b.mu.Unlock()
		return err
	}

	g := b.gen
	b.waiting++
	if b.waiting == b.parties {
		// Last arrival trips the barrier and opens the next round.
		b.waiting = 0
		b.gen = &generation{done: make(chan struct{})}
		close(g.done)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	<-g.done

	if g.broken {
		b.mu.Lock()
		err := b.brokenErr()
		b.mu.Unlock()
		return err
	}
	return nil
}

// Break poisons the barrier. Goroutines blocked in Await and all later
// callers get an error wrapping ErrBroken. Only the first cause is kept.
func (b *Barrier) Break(cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.gen.broken {
		return
	}
	b.cause = cause
	b.gen.broken = true
	b.waiting = 0
	close(b.gen.done)
}

// Broken reports whether Break has been called
func (b *Barrier) Broken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen.broken
}

// brokenErr must be called with mu held.
func (b *Barrier) brokenErr() error {
	if b.cause == nil {
		return ErrBroken
	}
	return fmt.Errorf("%w: %w", ErrBroken, b.cause)
}
