// Package feed supplies recognized utterances to the pipeline.
//
// A [Source] hides where finalized speech text comes from: a line-oriented
// pipe from an external speech-to-text process, or a scripted replay used in
// demos and tests. Sources assign the strictly increasing sequence numbers
// the dispatcher's ordering guarantees rest on.
package feed

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/overcast-online/lingograph/pkg/types"
)

// utteranceChanBuf is the buffer depth of a source's utterance channel.
const utteranceChanBuf = 32

// Source produces a stream of utterances with strictly increasing sequence
// numbers starting at 1.
type Source interface {
	// Run reads the underlying input and emits utterances on the returned
	// channel until the input ends or ctx is cancelled. The channel is
	// closed when the stream ends; the caller must drain it.
	Run(ctx context.Context) (<-chan types.Utterance, error)
}

// LineSource turns a line-oriented reader into an utterance stream. Each
// non-blank line becomes one utterance, stamped at read time. This is the
// production path: an external speech-to-text process writes one finalized
// phrase per line to our stdin.
type LineSource struct {
	r   io.Reader
	now func() time.Time
}

// LineOption is a functional option for configuring a [LineSource].
type LineOption func(*LineSource)

// WithLineClock overrides the capture timestamp source. Intended for tests.
func WithLineClock(now func() time.Time) LineOption {
	return func(s *LineSource) {
		s.now = now
	}
}

// Lines returns a [LineSource] reading from r.
func Lines(r io.Reader, opts ...LineOption) *LineSource {
	s := &LineSource{r: r, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run implements [Source]. Reading stops at EOF, on a read error, or when
// ctx is cancelled; the channel is closed in all cases.
func (s *LineSource) Run(ctx context.Context) (<-chan types.Utterance, error) {
	out := make(chan types.Utterance, utteranceChanBuf)

	go func() {
		defer close(out)
		scanner := bufio.NewScanner(s.r)
		var seq uint64
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			seq++
			u := types.Utterance{
				Sequence:   seq,
				Text:       text,
				CapturedAt: s.now(),
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// ScriptSource replays a fixed list of phrases on a timer, one utterance per
// interval. Useful for demos without a speech-to-text process attached and
// for exercising the display pipeline in tests.
type ScriptSource struct {
	entries  []string
	interval time.Duration
	now      func() time.Time
}

// Script returns a [ScriptSource] that emits one entry every interval.
// Blank entries are skipped.
func Script(entries []string, interval time.Duration) *ScriptSource {
	return &ScriptSource{entries: entries, interval: interval, now: time.Now}
}

// Run implements [Source]. The first entry is emitted immediately, the rest
// follow one interval apart.
func (s *ScriptSource) Run(ctx context.Context) (<-chan types.Utterance, error) {
	out := make(chan types.Utterance, utteranceChanBuf)

	go func() {
		defer close(out)
		var seq uint64
		for i, entry := range s.entries {
			if i > 0 && s.interval > 0 {
				select {
				case <-time.After(s.interval):
				case <-ctx.Done():
					return
				}
			}
			text := strings.TrimSpace(entry)
			if text == "" {
				continue
			}
			seq++
			u := types.Utterance{
				Sequence:   seq,
				Text:       text,
				CapturedAt: s.now(),
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Compile-time interface assertions.
var (
	_ Source = (*LineSource)(nil)
	_ Source = (*ScriptSource)(nil)
)
