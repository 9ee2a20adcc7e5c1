package app

import (
	"sync"
	"time"
)

// Connection is one served image request.
type Connection struct {
	Client           string    `json:"client"`
	Timestamp        time.Time `json:"timestamp"`
	Method           string    `json:"method"`
	Path             string    `json:"path"`
	QuoteID          string    `json:"quote_id,omitempty"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
}

// ConnectionLog keeps the most recent connections in a fixed ring.
type ConnectionLog struct {
	mu    sync.Mutex
	ring  []Connection
	next  int
	count int
}

// NewConnectionLog keeps the last size connections; size < 1 keeps one.
func NewConnectionLog(size int) *ConnectionLog {
	return &ConnectionLog{ring: make([]Connection, max(size, 1))}
}

// Add records c, evicting the oldest entry when full.
func (l *ConnectionLog) Add(c Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = c
	l.next = (l.next + 1) % len(l.ring)
	l.count = min(l.count+1, len(l.ring))
}

// Recent returns the retained connections, newest first.
func (l *ConnectionLog) Recent() []Connection {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Connection, 0, l.count)
	for i := 1; i <= l.count; i++ {
		out = append(out, l.ring[(l.next-i+len(l.ring))%len(l.ring)])
	}

	return out
}

// Cap is the ring size.
func (l *ConnectionLog) Cap() int {
	return len(l.ring)
}
