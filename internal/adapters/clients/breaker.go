package clients

import (
	"errors"
	"sync"
	"time"

	"github.com/ditto-display/ditto/internal/platform/config"
)

// ErrCircuitOpen means the breaker rejected a call without sending it.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is a breaker position.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down has passed.
	StateOpen
	// StateHalfOpen lets a few probe calls through.
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

// Breaker stops calling an upstream after MaxFailures consecutive
// failures. After Timeout it admits up to HalfOpenLimit probes; that many
// successes close it again and any failure reopens it.
type Breaker struct {
	cfg config.CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	streak   int // failures while closed, successes while half-open
	probes   int
	openedAt time.Time
	notify   func(from, to State)
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg config.CircuitBreakerConfig) *Breaker {
	cfg.MaxFailures = max(cfg.MaxFailures, 1)
	cfg.HalfOpenLimit = max(cfg.HalfOpenLimit, 1)

	return &Breaker{cfg: cfg, now: time.Now}
}

// OnStateChange registers fn to run, on its own goroutine, after each
// transition.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.notify = fn
}

// Acquire returns ErrCircuitOpen when the call must not be made. Every
// successful Acquire must be matched by Success or Failure.
func (b *Breaker) Acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Timeout {
			return ErrCircuitOpen
		}

		b.moveTo(StateHalfOpen)
		b.probes = 1

	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenLimit {
			return ErrCircuitOpen
		}

		b.probes++
	}

	return nil
}

// Success records a call that reached the upstream.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.streak = 0
	case StateHalfOpen:
		b.probes--
		b.streak++

		if b.streak >= b.cfg.HalfOpenLimit {
			b.moveTo(StateClosed)
		}
	}
}

// Failure records a call that did not.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.streak++

		if b.streak >= b.cfg.MaxFailures {
			b.open()
		}
	case StateHalfOpen:
		b.probes--
		b.open()
	case StateOpen:
		b.openedAt = b.now()
	}
}

// State reports the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.moveTo(StateOpen)
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(to State) {
	if b.state == to {
		return
	}

	from := b.state
	b.state = to
	b.streak = 0

	if to != StateHalfOpen {
		b.probes = 0
	}

	if b.notify != nil {
		go b.notify(from, to)
	}
}
