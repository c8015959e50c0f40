// Package translate defines the Translator interface for machine-translation
// backends.
//
// A translator wraps a remote translation service (e.g., Azure Translator, an
// OpenAI chat model, or any LLM reachable through any-llm-go) behind a uniform
// single-call interface: one source string in, one translated string out. The
// dispatcher owns all concurrency, timeout, and retry policy — implementations
// perform exactly one upstream call per Translate invocation and report
// failures through the transient/permanent error classification below so the
// dispatcher can decide whether a retry is worthwhile.
//
// Implementations must be safe for concurrent use; the dispatcher issues
// several Translate calls in parallel against a single Translator value.
package translate

import (
	"context"
	"errors"
)

// Request describes a single translation call.
type Request struct {
	// Text is the source-language text. The dispatcher never submits empty text.
	Text string

	// From is the source language code (e.g., "fr", "fr-FR").
	From string

	// To is the target language code (e.g., "en").
	To string
}

// Result is the provider's answer to a [Request].
type Result struct {
	// Text is the translated text.
	Text string
}

// Translator is the abstraction over any translation backend.
type Translator interface {
	// Name identifies the backend in logs and metric attributes (e.g.,
	// "azure", "openai/gpt-4o-mini").
	Name() string

	// Translate performs one translation call. It must respect ctx — the
	// dispatcher applies a per-attempt deadline — and must classify its
	// errors with [Transient] or [Permanent] where the distinction is known.
	Translate(ctx context.Context, req Request) (Result, error)
}

// classifiedError carries the retry classification alongside the cause.
type classifiedError struct {
	err       error
	transient bool
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Transient marks err as retryable: timeouts, rate limits, transport
// failures, 5xx responses. Returns nil when err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, transient: true}
}

// Permanent marks err as non-retryable: authentication failures, malformed
// requests, unsupported language pairs. Returns nil when err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, transient: false}
}

// IsPermanent reports whether err was marked with [Permanent] anywhere in its
// chain. Context cancellation also counts as permanent: a cancelled run is
// never worth retrying.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var ce *classifiedError
	if errors.As(err, &ce) {
		return !ce.transient
	}
	return false
}

// IsTransient reports whether a retry of err might succeed. Unclassified
// errors are treated as transient — the dispatcher's retry budget is bounded,
// so optimism is cheap — with the exception of context cancellation.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !IsPermanent(err)
}
