// Package voicelog durably records the original-language utterances of a
// session, independent of translation outcome or display timing.
//
// The [Writer] keeps human-readable daily text files; the [Archive] mirrors
// the stream into PostgreSQL for querying across sessions. Both implement
// [Recorder], and a [MultiRecorder] fans one stream out to several.
package voicelog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/overcast-online/lingograph/pkg/types"
)

// Recorder receives each utterance exactly once, fire-and-forget from the
// pipeline's point of view: a recording failure never blocks translation.
type Recorder interface {
	// Record persists one utterance.
	Record(ctx context.Context, u types.Utterance) error

	// Close flushes and releases resources.
	Close() error
}

const (
	// fileNameFormat produces names like voice_log_2025-06-01.txt.
	fileNameFormat = "voice_log_2006-01-02.txt"

	dayFormat       = "2006-01-02"
	lineTimeFormat  = "15:04:05"
	stampTimeFormat = "2006-01-02 15:04:05"
)

// ErrWriterClosed is returned by Record after the writer has been closed.
var ErrWriterClosed = errors.New("voicelog: writer closed")

// Stats describes the state of the current log file.
type Stats struct {
	// Path is the file currently being written, empty before the first line.
	Path string

	// Lines is the number of utterances written to the current file.
	Lines int

	// Bytes is the size of everything written to the current file,
	// including header and footer text.
	Bytes int64
}

// Writer appends utterances to a per-day text file under a directory. Each
// file carries a session header, one "[HH:MM:SS] LANG: text" line per
// utterance, and a closing footer with the line count. A session running
// past midnight closes the old file and continues in the next day's file.
//
// All methods are safe for concurrent use.
type Writer struct {
	dir  string
	lang string
	now  func() time.Time

	mu     sync.Mutex
	f      *os.File
	day    string
	path   string
	lines  int
	bytes  int64
	closed bool
}

// WriterOption is a functional option for configuring a [Writer].
type WriterOption func(*Writer)

// WithClock overrides the writer's time source. Intended for tests.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter creates a [Writer] that stores daily logs under dir, labelling
// each line with lang (e.g., "FR"). The directory is created if needed; the
// first file is opened lazily on the first Record.
func NewWriter(dir, lang string, opts ...WriterOption) (*Writer, error) {
	if dir == "" {
		return nil, errors.New("voicelog: directory must not be empty")
	}
	if lang == "" {
		return nil, errors.New("voicelog: language label must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("voicelog: create directory: %w", err)
	}
	w := &Writer{dir: dir, lang: lang, now: time.Now}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Record implements [Recorder] by appending one timestamped line, rolling
// over to a new file when the date has changed since the last write.
func (w *Writer) Record(_ context.Context, u types.Utterance) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	now := w.now()
	if err := w.ensureFile(now); err != nil {
		return err
	}

	line := fmt.Sprintf("[%s] %s: %s\n", now.Format(lineTimeFormat), w.lang, u.Text)
	if err := w.write(line); err != nil {
		return err
	}
	w.lines++
	return nil
}

// Close writes the footer of the current file and closes it. Safe to call
// multiple times.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeFile()
}

// Stats returns a snapshot of the current file's state.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{Path: w.path, Lines: w.lines, Bytes: w.bytes}
}

// ensureFile opens the log file for now's date, closing the previous day's
// file first when the session crossed midnight. Must be called with w.mu
// held.
func (w *Writer) ensureFile(now time.Time) error {
	day := now.Format(dayFormat)
	if w.f != nil && w.day == day {
		return nil
	}
	if w.f != nil {
		if err := w.closeFile(); err != nil {
			return err
		}
	}

	path := filepath.Join(w.dir, now.Format(fileNameFormat))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("voicelog: open %s: %w", path, err)
	}
	w.f = f
	w.day = day
	w.path = path
	w.lines = 0
	w.bytes = 0

	header := fmt.Sprintf("==== Voice log — session started %s ====\n", now.Format(stampTimeFormat))
	return w.write(header)
}

// closeFile writes the footer and closes the current file. Must be called
// with w.mu held. A nil file is a no-op, so closing a writer that never
// recorded succeeds.
func (w *Writer) closeFile() error {
	if w.f == nil {
		return nil
	}
	footer := fmt.Sprintf("==== Session closed %s — %d lines ====\n", w.now().Format(stampTimeFormat), w.lines)
	writeErr := w.write(footer)
	closeErr := w.f.Close()
	w.f = nil
	w.day = ""
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("voicelog: close %s: %w", w.path, closeErr)
	}
	return nil
}

// write appends s to the open file and tracks the byte count. Must be
// called with w.mu held and w.f non-nil.
func (w *Writer) write(s string) error {
	n, err := w.f.WriteString(s)
	w.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("voicelog: write %s: %w", w.path, err)
	}
	return nil
}

// MultiRecorder fans each utterance out to a group of recorders, so the
// daily file and the database archive can run side by side.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder returns a recorder forwarding to all given recorders.
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

// Record implements [Recorder]. All recorders are attempted even when one
// fails; the errors are joined.
func (m *MultiRecorder) Record(ctx context.Context, u types.Utterance) error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.Record(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements [Recorder] by closing every recorder and joining the
// errors.
func (m *MultiRecorder) Close() error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Compile-time interface assertions.
var (
	_ Recorder = (*Writer)(nil)
	_ Recorder = (*MultiRecorder)(nil)
)
