// Package types defines the shared types used across all Lingograph packages.
//
// These types form the lingua franca between the utterance feed, the
// dispatcher, translation providers, and the overlay. They are intentionally
// minimal — each package defines its own domain types, but the data that
// crosses package boundaries lives here to avoid circular imports.
package types

import "time"

// Utterance is one finalized segment of recognized speech entering the
// pipeline. Sequence numbers are assigned by the feed in capture order and
// are strictly increasing for the lifetime of a session.
type Utterance struct {
	// Sequence is the monotonically increasing capture-order identifier.
	// The dispatcher releases results in exactly this order.
	Sequence uint64

	// Text is the recognized source-language text.
	Text string

	// CapturedAt marks when the speech segment was finalized upstream.
	CapturedAt time.Time
}

// OutcomeStatus classifies how a translation attempt concluded.
type OutcomeStatus int

const (
	// StatusTranslated means the provider returned a translation within the
	// retry budget.
	StatusTranslated OutcomeStatus = iota

	// StatusFailed means translation failed terminally and the configured
	// fallback mode substituted an error marker for the text.
	StatusFailed

	// StatusFallbackOriginal means translation failed terminally and the
	// source text was passed through unchanged.
	StatusFallbackOriginal

	// StatusFallbackPlaceholder means translation failed terminally and a
	// placeholder marker was substituted for the text.
	StatusFallbackPlaceholder
)

// String returns the snake_case label used in logs and metric attributes.
func (s OutcomeStatus) String() string {
	switch s {
	case StatusTranslated:
		return "translated"
	case StatusFailed:
		return "failed"
	case StatusFallbackOriginal:
		return "fallback_original"
	case StatusFallbackPlaceholder:
		return "fallback_placeholder"
	default:
		return "unknown"
	}
}

// Fallback reports whether the status is one of the substitute outcomes
// produced when the provider could not deliver a translation.
func (s OutcomeStatus) Fallback() bool {
	return s == StatusFailed || s == StatusFallbackOriginal || s == StatusFallbackPlaceholder
}

// TranslationOutcome is the terminal result for exactly one [Utterance].
// Every accepted utterance produces exactly one outcome — successful or not —
// and outcomes leave the dispatcher in submission order.
type TranslationOutcome struct {
	// Sequence matches the originating utterance.
	Sequence uint64

	// SourceText is the utterance text that was submitted for translation.
	SourceText string

	// Text is the display text: the translation on success, or the
	// fallback-substituted text otherwise. Never empty for a non-empty source.
	Text string

	// Status classifies the result.
	Status OutcomeStatus

	// Attempts is the number of provider calls made (1 on first-try success,
	// up to max_retries+1 when retries were spent).
	Attempts int

	// Err holds the terminal failure cause for fallback outcomes. Nil when
	// Status is StatusTranslated.
	Err error

	// CompletedAt marks when the outcome became final.
	CompletedAt time.Time
}
