// Package openai provides a Translator backed by an OpenAI chat model.
//
// Each Translate call is a single non-streaming chat completion with a fixed
// translation system prompt and temperature 0, so repeated calls for the same
// utterance stay deterministic enough for captions.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/overcast-online/lingograph/pkg/provider/translate"
)

// Compile-time interface assertion.
var _ translate.Translator = (*Provider)(nil)

// systemPrompt instructs the model to behave as a bare translation engine.
// The reply must contain nothing but the translated text because it is
// rendered verbatim on the stream overlay.
const systemPrompt = "You are a translation engine. Translate the user's message from %s to %s. " +
	"Reply with the translation only. Do not add quotes, commentary or explanations."

// Provider implements translate.Translator using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Useful for
// OpenAI-compatible gateways and test servers.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs an OpenAI-backed translator for the given model.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	// Retries are owned by the dispatcher, so the SDK must not add its own.
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Name implements translate.Translator.
func (p *Provider) Name() string { return "openai/" + p.model }

// Translate implements translate.Translator.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(fmt.Sprintf(systemPrompt, languageLabel(req.From), languageLabel(req.To))),
			oai.UserMessage(req.Text),
		},
		Temperature: param.NewOpt(0.0),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return translate.Result{}, classify(fmt.Errorf("openai: chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return translate.Result{}, translate.Permanent(fmt.Errorf("openai: empty choices in response"))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return translate.Result{}, translate.Permanent(fmt.Errorf("openai: empty completion content"))
	}
	return translate.Result{Text: text}, nil
}

// classify maps an OpenAI SDK error to the transient/permanent taxonomy.
// API errors carry an HTTP status; anything without one is a transport
// failure and worth a retry.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusRequestTimeout,
			apierr.StatusCode == http.StatusTooManyRequests,
			apierr.StatusCode >= 500:
			return translate.Transient(err)
		default:
			return translate.Permanent(err)
		}
	}
	return translate.Transient(err)
}

// languageLabel falls back to a generic label when the language code is
// empty, which keeps the system prompt well-formed in auto-detect setups.
func languageLabel(code string) string {
	if code == "" {
		return "the source language"
	}
	return code
}
