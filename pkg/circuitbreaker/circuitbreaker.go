// Package circuitbreaker stops calls to a failing dependency for a cool-down
// period instead of paying its timeout on every call.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the position of the breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down ends.
	StateOpen
	// StateHalfOpen lets a single probe call through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the dependency while the breaker is
// open or a probe is already in flight.
var ErrOpen = errors.New("circuit breaker is open")

// Settings configure a Breaker. Zero values take the defaults noted below.
type Settings struct {
	Name string

	// Threshold is the number of consecutive failures that opens the breaker (5).
	Threshold int

	// Cooldown is how long the breaker stays open before a probe (30s).
	Cooldown time.Duration

	// Probes is the number of successful probes that close it again (1).
	Probes int

	// IsFailure decides which errors count. Nil counts every error.
	IsFailure func(error) bool

	// OnStateChange is called under the breaker lock; it must not call back
	// into the breaker.
	OnStateChange func(name string, from, to State)
}

// Stats are cumulative counters since creation or the last Reset.
type Stats struct {
	Calls    int
	Failures int
	Rejected int
}

// Breaker is a consecutive-failure circuit breaker. It is safe for
// concurrent use.
type Breaker struct {
	settings Settings
	now      func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
	stats     Stats
}

// New creates a closed Breaker.
func New(s Settings) *Breaker {
	if s.Threshold <= 0 {
		s.Threshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Probes <= 0 {
		s.Probes = 1
	}
	return &Breaker{settings: s, now: time.Now}
}

// NotificationBreaker returns the breaker guarding notification delivery.
func NotificationBreaker(onStateChange func(name string, from, to State)) *Breaker {
	return New(Settings{
		Name:          "notifications",
		Threshold:     3,
		Cooldown:      30 * time.Second,
		Probes:        1,
		OnStateChange: onStateChange,
	})
}

// Execute calls fn unless the breaker rejects the call. A failure caused by
// the caller's own cancellation is not counted against the dependency.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}

	b.stats.Calls++
	if err != nil && (b.settings.IsFailure == nil || b.settings.IsFailure(err)) {
		b.stats.Failures++
		b.recordFailure()
	} else {
		b.recordSuccess()
	}
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.transition(StateHalfOpen)
	}

	switch b.state {
	case StateClosed:
		return false, nil
	case StateHalfOpen:
		if !b.probing {
			b.probing = true
			return true, nil
		}
	}
	b.stats.Rejected++
	return false, ErrOpen
}

func (b *Breaker) recordFailure() {
	b.successes = 0
	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.open()
	case b.state == StateClosed && b.failures >= b.settings.Threshold:
		b.open()
	}
}

func (b *Breaker) recordSuccess() {
	b.failures = 0
	if b.state != StateHalfOpen {
		return
	}
	b.successes++
	if b.successes >= b.settings.Probes {
		b.transition(StateClosed)
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures, b.successes = 0, 0
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.settings.Name, from, to)
	}
}

// State returns the current state. An open breaker whose cool-down has
// passed still reports open until the next call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a copy of the counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Reset closes the breaker and clears all counters without notifying.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures, b.successes = 0, 0
	b.probing = false
	b.stats = Stats{}
}

// Name returns the configured name.
func (b *Breaker) Name() string {
	return b.settings.Name
}
