// Package anyllm provides a Translator backed by github.com/mozilla-ai/any-llm-go,
// a unified multi-provider interface that supports OpenAI, Anthropic, Gemini,
// Ollama, DeepSeek, Mistral, Groq, and more. It is the way to run captions off
// a local model without changing the rest of the pipeline.
//
// Usage:
//
//	p, err := anyllm.New("ollama", "llama3.2", anyllmlib.WithBaseURL("http://localhost:11434"))
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/overcast-online/lingograph/pkg/provider/translate"
)

// Compile-time interface assertion.
var _ translate.Translator = (*Provider)(nil)

// systemPrompt keeps the model in bare translation-engine mode. Local models
// love to editorialize, so the prompt is blunt about output discipline.
const systemPrompt = "You are a translation engine. Translate the user's message from %s to %s. " +
	"Reply with the translation only. Do not add quotes, commentary or explanations."

// Provider implements translate.Translator by wrapping any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	vendor  string
	model   string
}

// New creates a translator backed by the given LLM vendor.
//
// vendor is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o-mini", "llama3.2").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the backend falls
// back to its usual environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY,
// and so on).
func New(vendor string, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if vendor == "" {
		return nil, fmt.Errorf("anyllm: vendor must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(vendor, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", vendor, err)
	}

	return &Provider{backend: backend, vendor: strings.ToLower(vendor), model: model}, nil
}

// createBackend creates the underlying any-llm-go provider for the given vendor name.
func createBackend(vendor string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(vendor) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported vendor %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", vendor)
	}
}

// Name implements translate.Translator.
func (p *Provider) Name() string { return p.vendor + "/" + p.model }

// Translate implements translate.Translator.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return translate.Result{}, fmt.Errorf("anyllm: completion: %w", err)
		}
		// any-llm-go flattens HTTP failures into plain errors, so transport
		// and server trouble cannot be told apart here. Retrying is bounded
		// upstream, which makes treating them all as transient safe.
		return translate.Result{}, translate.Transient(fmt.Errorf("anyllm: completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return translate.Result{}, translate.Permanent(fmt.Errorf("anyllm: empty choices in response"))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if text == "" {
		return translate.Result{}, translate.Permanent(fmt.Errorf("anyllm: empty completion content"))
	}
	return translate.Result{Text: text}, nil
}

// buildParams assembles the completion request for one utterance.
func (p *Provider) buildParams(req translate.Request) anyllmlib.CompletionParams {
	from := req.From
	if from == "" {
		from = "the source language"
	}

	params := anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: fmt.Sprintf(systemPrompt, from, req.To)},
			{Role: anyllmlib.RoleUser, Content: req.Text},
		},
	}

	// Captions should be reproducible, so sampling is pinned down.
	temp := 0.0
	params.Temperature = &temp

	return params
}
