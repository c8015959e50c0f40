package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/overcast-online/lingograph/internal/observe"
)

const (
	// defaultSweepInterval is the default period between expiry sweeps.
	defaultSweepInterval = 500 * time.Millisecond

	// defaultTimestampFormat renders insertion times like [20:15:04].
	defaultTimestampFormat = "[15:04:05]"

	// defaultSeparator joins buffered lines into one frame.
	defaultSeparator = "\n"
)

// Renderer drives the display: it holds the line buffer, sweeps expired
// lines on a fixed interval, and pushes the joined frame to a [Sink]
// whenever the visible content changes. New lines repaint immediately
// instead of waiting for the next sweep tick.
//
// All methods are safe for concurrent use.
type Renderer struct {
	buffer     *Buffer
	sink       Sink
	interval   time.Duration
	timestamps bool
	tsFormat   string
	separator  string
	clearStart bool
	metrics    *observe.Metrics

	kick     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// lastFrame and rendered are only touched by the render loop goroutine.
	lastFrame string
	rendered  bool
}

// RendererConfig configures a [Renderer].
type RendererConfig struct {
	// Buffer holds the lines to display. Required.
	Buffer *Buffer

	// Sink receives rendered frames. Required.
	Sink Sink

	// SweepInterval is how often expired lines are swept and the frame is
	// refreshed. Defaults to 500ms if zero.
	SweepInterval time.Duration

	// Timestamps prefixes each line with its insertion time.
	Timestamps bool

	// TimestampFormat is the time layout for the prefix. Defaults to
	// "[15:04:05]" if empty.
	TimestampFormat string

	// Separator joins lines into a frame. Defaults to "\n" if empty.
	Separator string

	// ClearOnStart writes an empty frame as soon as the renderer starts, so
	// leftovers from a previous run never flash on stream.
	ClearOnStart bool

	// Metrics records render activity. Optional.
	Metrics *observe.Metrics
}

// NewRenderer creates a new [Renderer] with the given configuration.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	if cfg.Buffer == nil {
		return nil, errors.New("overlay: renderer requires a buffer")
	}
	if cfg.Sink == nil {
		return nil, errors.New("overlay: renderer requires a sink")
	}

	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	tsFormat := cfg.TimestampFormat
	if tsFormat == "" {
		tsFormat = defaultTimestampFormat
	}
	separator := cfg.Separator
	if separator == "" {
		separator = defaultSeparator
	}

	return &Renderer{
		buffer:     cfg.Buffer,
		sink:       cfg.Sink,
		interval:   interval,
		timestamps: cfg.Timestamps,
		tsFormat:   tsFormat,
		separator:  separator,
		clearStart: cfg.ClearOnStart,
		metrics:    cfg.Metrics,
		kick:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}, nil
}

// Start begins the render loop in a background goroutine. The goroutine runs
// until [Renderer.Stop] is called or ctx is cancelled.
func (r *Renderer) Start(ctx context.Context) {
	go r.loop(ctx)
}

// Stop halts the render loop. Safe to call multiple times.
func (r *Renderer) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

// Show buffers a new caption line and triggers an immediate repaint. The
// timestamp prefix, when enabled, is frozen at insertion time like the rest
// of the line.
//
// Returns [ErrDuplicateSequence] when seq is already on screen.
func (r *Renderer) Show(seq uint64, text string) error {
	now := time.Now()
	if r.timestamps {
		text = now.Format(r.tsFormat) + " " + text
	}
	if err := r.buffer.Insert(now, seq, text); err != nil {
		return fmt.Errorf("overlay: show line %d: %w", seq, err)
	}

	select {
	case r.kick <- struct{}{}:
	default:
		// A repaint is already pending.
	}
	return nil
}

// loop runs the periodic sweep-and-render ticker.
func (r *Renderer) loop(ctx context.Context) {
	defer r.finalClear()

	if r.clearStart {
		r.writeFrame(ctx, "")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-r.kick:
			r.render(ctx)
		case <-ticker.C:
			swept := r.buffer.Sweep(time.Now())
			r.metrics.RecordOverlayExpirations(ctx, swept)
			r.render(ctx)
		}
	}
}

// render pushes the current frame to the sink if it differs from the last
// one written. Must only be called from the loop goroutine.
func (r *Renderer) render(ctx context.Context) {
	lines := r.buffer.Snapshot(time.Now())
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}
	frame := strings.Join(texts, r.separator)

	if r.rendered && frame == r.lastFrame {
		return
	}
	r.writeFrame(ctx, frame)
	r.metrics.RecordOverlayLines(ctx, len(lines))
}

// writeFrame writes frame to the sink and updates the change tracking.
// A failed write is logged and retried naturally on the next tick because
// lastFrame is only advanced on success.
func (r *Renderer) writeFrame(ctx context.Context, frame string) {
	if err := r.sink.Write(ctx, frame); err != nil {
		slog.Warn("overlay render failed", "error", err)
		return
	}
	r.lastFrame = frame
	r.rendered = true
	r.metrics.RecordRenderWrite(ctx)
}

// finalClear blanks the display when the loop exits, so the last captions do
// not linger on stream after shutdown. Skipped if the renderer never wrote.
func (r *Renderer) finalClear() {
	if !r.rendered || r.lastFrame == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.sink.Write(ctx, ""); err != nil {
		slog.Warn("overlay clear on stop failed", "error", err)
	}
}
