package esera

import (
	"sync"
	"time"
)

// backoffFactor is the growth factor between consecutive reconnect delays.
const backoffFactor = 2

// Backoff produces exponentially growing reconnect delays with a ceiling.
//
// Next returns the delay to wait before the upcoming attempt and doubles
// the delay for the one after; Reset goes back to the initial delay and
// is called on every successful connect.
type Backoff struct {
	mu      sync.Mutex
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff returns a Backoff starting at initial and capped at max.
// A max below initial is raised to initial.
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max, current: initial}
}

// Next returns the current delay and advances to the next one.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.current
	next := b.current * backoffFactor
	if next > b.max || next <= 0 {
		next = b.max
	}
	b.current = next
	return d
}

// Reset restores the initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.current = b.initial
	b.mu.Unlock()
}
