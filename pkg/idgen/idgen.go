// Package idgen generates the identifiers and monotonic sequence numbers
// used across orders, trades, and order book diffs.
package idgen

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// NewID returns a random UUID string, used for order, trade, and session ids.
func NewID() string {
	return uuid.NewString()
}

// Sequencer hands out strictly increasing, gapless sequence numbers for a
// single stream. The matching engine owns two per market, one for trades and
// one for order book deltas, matching §3's "sequence is gapless within a
// market" and §4.3's "each event advances a per-market sequence_number".
type Sequencer struct {
	next atomic.Int64
}

// NewSequencer creates a Sequencer starting at start+1 for its first Next().
// Pass the last persisted sequence number when recovering from a cold start.
func NewSequencer(start int64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next sequence number, starting at 1 for a fresh Sequencer.
func (s *Sequencer) Next() int64 {
	return s.next.Add(1)
}

// Peek returns the last sequence number handed out without consuming one.
func (s *Sequencer) Peek() int64 {
	return s.next.Load()
}
