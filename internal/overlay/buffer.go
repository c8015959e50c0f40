// Package overlay maintains the translated lines currently shown on stream
// and renders them to display sinks such as an OBS text source file or a
// browser overlay.
package overlay

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDuplicateSequence is returned by [Buffer.Insert] when a line with the
// same sequence number is already buffered. Sequence numbers are unique
// upstream, so a duplicate insert means a pipeline defect rather than
// ordinary churn.
var ErrDuplicateSequence = errors.New("overlay: duplicate sequence")

// Line is a single translated caption held for display.
type Line struct {
	// Sequence is the submission order of the utterance this line came from.
	Sequence uint64

	// Text is the caption text as it should appear on screen.
	Text string

	// InsertedAt records when the line entered the buffer.
	InsertedAt time.Time

	// ExpiresAt is the moment the line stops being shown. A line counts as
	// expired once the current time is at or past ExpiresAt.
	ExpiresAt time.Time
}

// Buffer holds the most recent translated lines, bounded by a line count and
// by a per-line time to live. When full, the oldest line gives way to the
// newest; independent of that, every line disappears on its own once its TTL
// runs out.
//
// All methods are safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	lines    []Line
	capacity int
	ttl      time.Duration
}

// NewBuffer creates a buffer holding at most capacity lines, each visible
// for ttl after insertion. Both limits must be positive.
func NewBuffer(capacity int, ttl time.Duration) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("overlay: capacity must be positive, got %d", capacity)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("overlay: ttl must be positive, got %s", ttl)
	}
	return &Buffer{
		lines:    make([]Line, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
	}, nil
}

// Insert appends a line stamped now that expires at now plus the buffer TTL.
// Expired lines are dropped first; if the buffer is still at capacity after
// that, the oldest line is evicted to make room.
//
// Inserting a sequence that is already buffered returns
// [ErrDuplicateSequence] and leaves the buffer unchanged.
func (b *Buffer) Insert(now time.Time, seq uint64, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, l := range b.lines {
		if l.Sequence == seq {
			return fmt.Errorf("%w: %d", ErrDuplicateSequence, seq)
		}
	}

	b.dropExpired(now)
	if len(b.lines) == b.capacity {
		b.compact(1)
	}

	b.lines = append(b.lines, Line{
		Sequence:   seq,
		Text:       text,
		InsertedAt: now,
		ExpiresAt:  now.Add(b.ttl),
	})
	return nil
}

// Sweep removes every line whose TTL has run out as of now and reports how
// many were removed.
func (b *Buffer) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropExpired(now)
}

// Snapshot returns the lines that should be on screen at now, oldest first.
// Lines that expired but have not been swept yet are filtered out, so the
// result never shows stale captions between sweeps.
func (b *Buffer) Snapshot(now time.Time) []Line {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Line, 0, len(b.lines))
	for _, l := range b.lines {
		if now.Before(l.ExpiresAt) {
			out = append(out, l)
		}
	}
	return out
}

// Len returns the number of lines currently stored, including any that
// expired since the last sweep.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// Lines returns a copy of all stored lines in insertion order.
// Intended for testing and debugging.
func (b *Buffer) Lines() []Line {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Line, len(b.lines))
	copy(out, b.lines)
	return out
}

// dropExpired removes lines whose TTL has run out and reports how many were
// dropped. Lines are appended in time order with a uniform TTL, so expired
// lines always form a prefix. Must be called with b.mu held.
func (b *Buffer) dropExpired(now time.Time) int {
	n := 0
	for n < len(b.lines) && !now.Before(b.lines[n].ExpiresAt) {
		n++
	}
	b.compact(n)
	return n
}

// compact removes the first n lines, copying survivors to a fresh backing
// array so removed lines do not pin memory. Must be called with b.mu held.
func (b *Buffer) compact(n int) {
	if n <= 0 {
		return
	}
	keep := b.lines[n:]
	fresh := make([]Line, len(keep), b.capacity)
	copy(fresh, keep)
	b.lines = fresh
}
