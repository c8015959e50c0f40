package dispatch

import (
	"log/slog"
	"sync"

	"github.com/overcast-online/lingograph/pkg/types"
)

// barrier is the sequencing stage between the worker pool and the outcome
// stream. Workers finish in whatever order the upstream service answers, but
// captions must leave in the order they were spoken: the barrier holds early
// finishers until every earlier-accepted sequence has been released.
//
// Sequences enter via expect in submission order and leave via next in that
// same order once their outcome arrived via complete.
type barrier struct {
	mu   sync.Mutex
	cond *sync.Cond

	// order lists accepted, not-yet-released sequences in submission order.
	order []uint64

	// accepted tracks which sequences are currently registered.
	accepted map[uint64]struct{}

	// ready holds finished outcomes waiting for their turn.
	ready map[uint64]types.TranslationOutcome

	sealed bool
}

func newBarrier() *barrier {
	b := &barrier{
		accepted: make(map[uint64]struct{}),
		ready:    make(map[uint64]types.TranslationOutcome),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// expect registers seq as the next accepted submission. The caller serializes
// expect calls, which fixes the release order.
func (b *barrier) expect(seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = append(b.order, seq)
	b.accepted[seq] = struct{}{}
}

// retract undoes the most recent expect. It is only valid while no work for
// seq has been started, i.e. when the enqueue that followed expect failed.
func (b *barrier) retract(seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.order); n > 0 && b.order[n-1] == seq {
		b.order = b.order[:n-1]
		delete(b.accepted, seq)
	}
}

// complete stores the finished outcome for its sequence and wakes the
// releaser when the head of the line became ready. A completion for an
// unknown or already-completed sequence is a pipeline defect: it is logged
// and dropped so it cannot scramble the release order.
func (b *barrier) complete(o types.TranslationOutcome) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.accepted[o.Sequence]; !ok {
		slog.Error("dropping outcome for unregistered sequence", "sequence", o.Sequence)
		return false
	}
	if _, dup := b.ready[o.Sequence]; dup {
		slog.Error("dropping duplicate outcome", "sequence", o.Sequence)
		return false
	}

	b.ready[o.Sequence] = o
	if len(b.order) > 0 && b.order[0] == o.Sequence {
		b.cond.Broadcast()
	}
	return true
}

// next blocks until the oldest accepted sequence has its outcome and returns
// it. It returns ok=false once the barrier is sealed and drained.
func (b *barrier) next() (types.TranslationOutcome, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if len(b.order) > 0 {
			if o, ok := b.ready[b.order[0]]; ok {
				seq := b.order[0]
				b.order = b.order[1:]
				delete(b.ready, seq)
				delete(b.accepted, seq)
				return o, true
			}
		} else if b.sealed {
			return types.TranslationOutcome{}, false
		}
		b.cond.Wait()
	}
}

// seal marks the end of input. Every accepted sequence must already have
// completed; next drains the remainder and then reports exhaustion.
func (b *barrier) seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
	b.cond.Broadcast()
}

// pending returns the number of accepted sequences not yet released.
func (b *barrier) pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}
