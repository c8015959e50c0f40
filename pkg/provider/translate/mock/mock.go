// Package mock provides a test double for the translate package interfaces.
//
// Use Translator to script per-text results and failure sequences and to
// inspect what the dispatcher actually sent upstream. Without any scripting
// it echoes the source text tagged with the target language, which also makes
// it a usable zero-credentials provider for local demos.
//
// Example:
//
//	tr := &mock.Translator{
//	    Results: map[string]string{"hello": "hallo"},
//	    Errs:    []error{translate.Transient(errors.New("flaky"))},
//	}
//	res, err := tr.Translate(ctx, translate.Request{Text: "hello", To: "de"})
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/overcast-online/lingograph/pkg/provider/translate"
)

// TranslateCall records a single invocation of Translator.Translate.
type TranslateCall struct {
	// Ctx is the context passed to Translate.
	Ctx context.Context
	// Req is the request passed to Translate.
	Req translate.Request
}

// Translator is a mock implementation of translate.Translator.
type Translator struct {
	mu sync.Mutex

	// NameValue is returned by Name. Defaults to "mock" when empty.
	NameValue string

	// TranslateFunc, if non-nil, overrides all scripted behaviour below.
	TranslateFunc func(ctx context.Context, req translate.Request) (translate.Result, error)

	// Errs is a queue of errors: each Translate call pops and returns one
	// until the queue is empty. Shape them with translate.Transient and
	// translate.Permanent to drive retry behaviour.
	Errs []error

	// ErrFor maps source text to an error always returned for that text.
	ErrFor map[string]error

	// Results maps source text to the translation returned for it. Texts
	// without an entry get "[<to>] <text>".
	Results map[string]string

	// Delay, if positive, is how long each call blocks before answering.
	// The call returns ctx.Err() early if the context ends first.
	Delay time.Duration

	// TranslateCalls records every call to Translate in order.
	TranslateCalls []TranslateCall
}

// Name returns NameValue or "mock".
func (m *Translator) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock"
}

// Translate records the call and answers from the scripted fields.
func (m *Translator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	m.mu.Lock()
	m.TranslateCalls = append(m.TranslateCalls, TranslateCall{Ctx: ctx, Req: req})
	fn := m.TranslateFunc
	delay := m.Delay
	var popped error
	if fn == nil && len(m.Errs) > 0 {
		popped = m.Errs[0]
		m.Errs = m.Errs[1:]
	}
	var forText error
	if fn == nil && popped == nil {
		forText = m.ErrFor[req.Text]
	}
	result, scripted := m.Results[req.Text]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return translate.Result{}, ctx.Err()
		}
	}

	if popped != nil {
		return translate.Result{}, popped
	}
	if forText != nil {
		return translate.Result{}, forText
	}
	if scripted {
		return translate.Result{Text: result}, nil
	}
	return translate.Result{Text: fmt.Sprintf("[%s] %s", req.To, req.Text)}, nil
}

// CallCount returns the number of Translate calls. Thread-safe.
func (m *Translator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.TranslateCalls)
}

// Reset clears all recorded calls and the error queue. Thread-safe.
func (m *Translator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranslateCalls = nil
	m.Errs = nil
}

// Ensure Translator implements translate.Translator at compile time.
var _ translate.Translator = (*Translator)(nil)
