package overlay

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"
)

// recordSink is a Sink that remembers every frame written to it.
type recordSink struct {
	mu     sync.Mutex
	frames []string
}

func (s *recordSink) Write(_ context.Context, frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordSink) Close() error { return nil }

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.frames))
	copy(out, s.frames)
	return out
}

// waitForFrame polls until the sink's newest frame equals want.
func (s *recordSink) waitForFrame(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		n := len(s.frames)
		var last string
		if n > 0 {
			last = s.frames[n-1]
		}
		s.mu.Unlock()
		if n > 0 && last == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for frame %q, got %v", want, s.all())
}

// newTestRenderer builds a started renderer over a fresh buffer and sink.
func newTestRenderer(t *testing.T, cfg RendererConfig) (*Renderer, *recordSink) {
	t.Helper()

	sink := &recordSink{}
	if cfg.Buffer == nil {
		buf, err := NewBuffer(3, 10*time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cfg.Buffer = buf
	}
	cfg.Sink = sink
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 10 * time.Millisecond
	}

	r, err := NewRenderer(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r.Start(ctx)
	t.Cleanup(r.Stop)

	return r, sink
}

// TestNewRenderer_Validation checks required configuration.
func TestNewRenderer_Validation(t *testing.T) {
	buf, err := NewBuffer(3, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewRenderer(RendererConfig{Sink: &recordSink{}}); err == nil {
		t.Error("expected error without buffer")
	}
	if _, err := NewRenderer(RendererConfig{Buffer: buf}); err == nil {
		t.Error("expected error without sink")
	}
}

// TestRenderer_ShowRepaintsImmediately checks the kick path: a new line must
// reach the sink without waiting for a sweep tick.
func TestRenderer_ShowRepaintsImmediately(t *testing.T) {
	r, sink := newTestRenderer(t, RendererConfig{SweepInterval: time.Hour})

	if err := r.Show(1, "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sink.waitForFrame(t, "hello")
}

// TestRenderer_JoinsLinesWithSeparator checks multi-line frames.
func TestRenderer_JoinsLinesWithSeparator(t *testing.T) {
	r, sink := newTestRenderer(t, RendererConfig{})

	r.Show(1, "first")
	sink.waitForFrame(t, "first")
	r.Show(2, "second")
	sink.waitForFrame(t, "first\nsecond")
}

// TestRenderer_CustomSeparator checks the configurable line separator.
func TestRenderer_CustomSeparator(t *testing.T) {
	r, sink := newTestRenderer(t, RendererConfig{Separator: " | "})

	r.Show(1, "a")
	sink.waitForFrame(t, "a")
	r.Show(2, "b")
	sink.waitForFrame(t, "a | b")
}

// TestRenderer_UnchangedFrameIsNotRewritten checks change-only writes: sweep
// ticks without visible changes must not touch the sink.
func TestRenderer_UnchangedFrameIsNotRewritten(t *testing.T) {
	r, sink := newTestRenderer(t, RendererConfig{SweepInterval: 5 * time.Millisecond})

	r.Show(1, "steady")
	sink.waitForFrame(t, "steady")

	writes := sink.count()
	time.Sleep(100 * time.Millisecond)
	if got := sink.count(); got != writes {
		t.Errorf("expected no further writes for an unchanged frame, got %d new", got-writes)
	}
}

// TestRenderer_ExpiredLineDisappears checks that the sweep loop blanks lines
// whose TTL ran out.
func TestRenderer_ExpiredLineDisappears(t *testing.T) {
	buf, err := NewBuffer(3, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, sink := newTestRenderer(t, RendererConfig{Buffer: buf, SweepInterval: 10 * time.Millisecond})

	r.Show(1, "fleeting")
	sink.waitForFrame(t, "fleeting")
	sink.waitForFrame(t, "")
}

// TestRenderer_TimestampPrefix checks the frozen insertion-time prefix.
func TestRenderer_TimestampPrefix(t *testing.T) {
	r, sink := newTestRenderer(t, RendererConfig{Timestamps: true})

	if err := r.Show(1, "stamped"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] stamped$`)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frames := sink.all()
		if len(frames) > 0 && want.MatchString(frames[len(frames)-1]) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for timestamped frame, got %v", sink.all())
}

// TestRenderer_ClearOnStart checks the initial blank frame.
func TestRenderer_ClearOnStart(t *testing.T) {
	_, sink := newTestRenderer(t, RendererConfig{ClearOnStart: true})

	sink.waitForFrame(t, "")
}

// TestRenderer_StopBlanksDisplay checks that shutdown does not leave stale
// captions on stream.
func TestRenderer_StopBlanksDisplay(t *testing.T) {
	r, sink := newTestRenderer(t, RendererConfig{})

	r.Show(1, "leftover")
	sink.waitForFrame(t, "leftover")

	r.Stop()
	sink.waitForFrame(t, "")
}

// TestRenderer_DuplicateSequence surfaces the buffer defect through Show.
func TestRenderer_DuplicateSequence(t *testing.T) {
	r, sink := newTestRenderer(t, RendererConfig{})

	if err := r.Show(1, "once"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sink.waitForFrame(t, "once")

	err := r.Show(1, "again")
	if !errors.Is(err, ErrDuplicateSequence) {
		t.Fatalf("expected ErrDuplicateSequence, got %v", err)
	}
}
