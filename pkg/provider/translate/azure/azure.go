// Package azure provides a Translator backed by the Azure AI Translator v3
// REST API (the "Text Translation" resource).
//
// Each Translate call issues one POST to {endpoint}/translate with the
// subscription key and region headers and a single-element JSON body, and
// returns the first translation of the first result. A fresh client trace ID
// is attached to every request so failed calls can be correlated with the
// Azure service logs.
//
// Typical usage:
//
//	p, err := azure.New(os.Getenv("AZURE_TRANSLATOR_KEY"),
//	    azure.WithRegion("westeurope"),
//	    azure.WithTimeout(10*time.Second),
//	)
//	res, err := p.Translate(ctx, translate.Request{Text: "bonjour", From: "fr", To: "en"})
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/overcast-online/lingograph/pkg/provider/translate"
)

// Compile-time interface assertion.
var _ translate.Translator = (*Provider)(nil)

const (
	defaultEndpoint = "https://api.cognitive.microsofttranslator.com"
	defaultTimeout  = 10 * time.Second

	translatePath = "/translate"
	apiVersion    = "3.0"
)

// Option is a functional option for configuring an Azure Provider.
type Option func(*Provider)

// WithEndpoint overrides the default global Translator endpoint. Use this for
// sovereign-cloud deployments or a test server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithRegion sets the Ocp-Apim-Subscription-Region header. Required for
// regional Translator resources; global resources leave it empty.
func WithRegion(region string) Option {
	return func(p *Provider) {
		p.region = region
	}
}

// WithTimeout sets the HTTP client timeout. This is a transport-level safety
// net; the per-attempt deadline is driven by the caller's context. Defaults
// to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements translate.Translator against the Azure Translator v3
// API. It is safe for concurrent use; Translate calls may run in parallel.
type Provider struct {
	endpoint   string
	apiKey     string
	region     string
	httpClient *http.Client
}

// New creates an Azure Provider using the given subscription key.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("azure: apiKey must not be empty")
	}
	p := &Provider{
		endpoint: defaultEndpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements translate.Translator.
func (p *Provider) Name() string { return "azure" }

// translateRequest is one element of the JSON array body sent to /translate.
type translateRequest struct {
	Text string `json:"text"`
}

// translateResponse mirrors the JSON array returned by /translate.
type translateResponse []struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// errorResponse is the Azure error envelope returned on non-200 status codes.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Translate implements translate.Translator. HTTP 408/429/5xx and transport
// failures are classified transient; authentication and request-shape errors
// are permanent.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	body, err := json.Marshal([]translateRequest{{Text: req.Text}})
	if err != nil {
		return translate.Result{}, translate.Permanent(fmt.Errorf("azure: marshal request: %w", err))
	}

	params := url.Values{}
	params.Set("api-version", apiVersion)
	if req.From != "" {
		params.Set("from", req.From)
	}
	params.Set("to", req.To)

	reqURL := p.endpoint + translatePath + "?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return translate.Result{}, translate.Permanent(fmt.Errorf("azure: create request: %w", err))
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)
	if p.region != "" {
		httpReq.Header.Set("Ocp-Apim-Subscription-Region", p.region)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-ClientTraceId", uuid.NewString())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			// Preserve cancellation/deadline semantics for the dispatcher.
			return translate.Result{}, fmt.Errorf("azure: POST %s: %w", translatePath, ctx.Err())
		}
		return translate.Result{}, translate.Transient(fmt.Errorf("azure: POST %s: %w", translatePath, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return translate.Result{}, p.statusError(resp)
	}

	var decoded translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return translate.Result{}, translate.Permanent(fmt.Errorf("azure: decode response: %w", err))
	}
	if len(decoded) == 0 || len(decoded[0].Translations) == 0 {
		return translate.Result{}, translate.Permanent(errors.New("azure: response contains no translations"))
	}

	return translate.Result{Text: decoded[0].Translations[0].Text}, nil
}

// statusError maps a non-200 response to a classified error, including the
// service's own error message when the body carries the standard envelope.
func (p *Provider) statusError(resp *http.Response) error {
	var envelope errorResponse
	detail := ""
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Message != "" {
		detail = fmt.Sprintf(" (code %d: %s)", envelope.Error.Code, envelope.Error.Message)
	}

	err := fmt.Errorf("azure: POST %s returned status %d%s", translatePath, resp.StatusCode, detail)

	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return translate.Transient(err)
	default:
		return translate.Permanent(err)
	}
}
