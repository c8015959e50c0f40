package overlay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrSinkClosed is returned by Write after a sink has been closed.
var ErrSinkClosed = errors.New("overlay: sink closed")

// Sink receives rendered caption frames. A frame is the complete text that
// should be visible, so every Write replaces whatever was shown before.
type Sink interface {
	// Write replaces the displayed content with frame. An empty frame
	// blanks the display.
	Write(ctx context.Context, frame string) error

	// Close releases any resources held by the sink.
	Close() error
}

// FileSink writes each frame to a single text file. OBS text sources in
// "read from file" mode poll such a file, which is the classic zero-plugin
// way to put captions on stream.
type FileSink struct {
	path string
}

// NewFileSink returns a sink writing to path, creating the parent directory
// if it does not exist yet.
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, errors.New("overlay: file sink path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("overlay: create sink directory: %w", err)
		}
	}
	return &FileSink{path: path}, nil
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string { return s.path }

// Write implements Sink by truncating the file to the new frame.
func (s *FileSink) Write(_ context.Context, frame string) error {
	if err := os.WriteFile(s.path, []byte(frame), 0o644); err != nil {
		return fmt.Errorf("overlay: write %s: %w", s.path, err)
	}
	return nil
}

// Close implements Sink. The file is left in place with its last frame; the
// renderer blanks it on shutdown before sinks are closed.
func (s *FileSink) Close() error { return nil }

// MultiSink fans every frame out to a group of sinks, so a file overlay and
// a browser overlay can run side by side.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink returns a sink that forwards to all given sinks in order.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Write implements Sink. All sinks are attempted even when one fails; the
// errors are joined.
func (s *MultiSink) Write(ctx context.Context, frame string) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink by closing every sink and joining the errors.
func (s *MultiSink) Close() error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Compile-time interface assertions.
var (
	_ Sink = (*FileSink)(nil)
	_ Sink = (*MultiSink)(nil)
)
