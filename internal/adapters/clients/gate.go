package clients

import (
	"context"
	"sync"
	"time"
)

// RateGate holds every caller sharing it while an upstream rate limit is in
// force. One caller seeing a 429 pauses all of them.
type RateGate struct {
	mu      sync.Mutex
	until   time.Time
	onPause func(time.Duration)
	now     func() time.Time
}

// NewRateGate returns an open gate.
func NewRateGate() *RateGate {
	return &RateGate{now: time.Now}
}

// OnPause registers fn to be called with the duration of every pause.
func (g *RateGate) OnPause(fn func(time.Duration)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.onPause = fn
}

// Pause closes the gate for d. Overlapping pauses extend to the latest
// deadline and never shorten an existing one.
func (g *RateGate) Pause(d time.Duration) {
	if d <= 0 {
		return
	}

	g.mu.Lock()

	if until := g.now().Add(d); until.After(g.until) {
		g.until = until
	}

	fn := g.onPause

	g.mu.Unlock()

	if fn != nil {
		fn(d)
	}
}

// Remaining reports how long the gate stays closed.
func (g *RateGate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	return max(g.until.Sub(g.now()), 0)
}

// Wait blocks until the gate is open or ctx is done.
func (g *RateGate) Wait(ctx context.Context) error {
	for {
		d := g.Remaining()
		if d <= 0 {
			return ctx.Err()
		}

		timer := time.NewTimer(d)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
