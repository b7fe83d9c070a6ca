// Package llm talks to OpenAI-compatible chat completions and Anthropic
// messages endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oukeidos/subflow/internal/apperrors"
	"github.com/oukeidos/subflow/internal/endpoint"
	"github.com/oukeidos/subflow/internal/httpclient"
	"github.com/oukeidos/subflow/internal/logger"
	"github.com/oukeidos/subflow/internal/version"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxTokens is sent as max_tokens on Anthropic requests.
	DefaultMaxTokens = 8192
	anthropicVersion = "2023-06-01"
)

// ErrNoChoices is returned when a completion carries no text.
var ErrNoChoices = errors.New("no response from model")

// Header is an extra request header sent with every call.
type Header struct {
	Name  string `toml:"name"`
	Value string `toml:"value"`
}

type Config struct {
	Endpoint          string
	APIKey            string
	Model             string
	Format            endpoint.Format
	Headers           []Header
	MaxTokens         int
	RequestsPerSecond float64
	// Timeout bounds one whole request. Zero uses the shared client.
	Timeout time.Duration
}

type Client struct {
	target     endpoint.Target
	apiKey     string
	model      string
	headers    []Header
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

// WithHTTPClient replaces the transport used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit paces requests to rps per second. Zero or less disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient validates cfg and binds it to one dialect. Nothing is sent.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	target, err := endpoint.Resolve(cfg.Endpoint, cfg.Format)
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, apperrors.New(apperrors.KindConfig, "LLM model is not configured.", errors.New("model is empty"))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	c := &Client{
		target:     target,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      model,
		headers:    cfg.Headers,
		maxTokens:  maxTokens,
		httpClient: httpclient.GetDefaultClient(),
	}
	if cfg.Timeout > 0 {
		c.httpClient = httpclient.NewClient(cfg.Timeout)
	}
	WithRateLimit(cfg.RequestsPerSecond)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Format returns the resolved dialect.
func (c *Client) Format() endpoint.Format { return c.target.Format }

// URL returns the normalized request URL.
func (c *Client) URL() string { return c.target.URL }

// GetModelID returns the configured model identifier.
func (c *Client) GetModelID() string { return c.model }

// Translate sends one non-streaming request and returns the raw completion text.
func (c *Client) Translate(ctx context.Context, systemPrompt, content string) (string, error) {
	req, err := c.newRequest(ctx, systemPrompt, content, false)
	if err != nil {
		return "", err
	}
	body, resp, err := httpclient.DoAndRead(c.httpClient, req)
	if err != nil {
		if resp != nil {
			return "", apperrors.New(apperrors.KindDecode, "Failed to read translation response.", err)
		}
		return "", requestError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyStatus(resp.StatusCode, resp.Status, string(body))
	}

	text, err := c.completionText(body)
	if err != nil {
		return "", err
	}
	logger.Debug("LLM response", "status", resp.Status, "format", c.target.Format, "model", c.model, "chars", len(text))
	return text, nil
}

// Stream sends the same request with streaming enabled and returns the
// event-stream body. The caller closes it.
func (c *Client) Stream(ctx context.Context, systemPrompt, content string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, systemPrompt, content, true)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, requestError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, classifyStatus(resp.StatusCode, resp.Status, httpclient.ErrorBody(resp.Body))
	}
	logger.Debug("LLM stream opened", "status", resp.Status, "format", c.target.Format, "model", c.model)
	return resp.Body, nil
}

// ListModels queries the sibling /models URL of the configured endpoint.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.ModelsURL(c.target.URL), nil)
	if err != nil {
		return nil, apperrors.New(apperrors.KindConfig, "Invalid models URL.", err)
	}
	c.setHeaders(req)
	body, resp, err := httpclient.DoAndRead(c.httpClient, req)
	if err != nil {
		if resp != nil {
			return nil, apperrors.New(apperrors.KindDecode, "Failed to read models response.", err)
		}
		return nil, requestError(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, resp.Status, string(body))
	}
	var result modelsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperrors.New(apperrors.KindDecode, "Models response format was invalid.", fmt.Errorf("failed to decode models: %w", err))
	}
	return result.Data, nil
}

func (c *Client) newRequest(ctx context.Context, systemPrompt, content string, stream bool) (*http.Request, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(c.requestBody(systemPrompt, content, stream))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.New(apperrors.KindConfig, "Invalid LLM endpoint URL.", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)
	return req, nil
}

func (c *Client) requestBody(systemPrompt, content string, stream bool) any {
	if c.target.Format == endpoint.FormatAnthropic {
		req := anthropicRequest{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			Stream:    stream,
		}
		if content == "" {
			req.Messages = []chatMessage{{Role: "user", Content: systemPrompt}}
		} else {
			req.System = systemPrompt
			req.Messages = []chatMessage{{Role: "user", Content: content}}
		}
		return req
	}
	message := systemPrompt
	if content != "" {
		message = systemPrompt + "\n\n" + content
	}
	return openAIRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: message}},
		Stream:   stream,
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", version.UserAgent())
	switch c.target.Format {
	case endpoint.FormatAnthropic:
		if c.apiKey != "" {
			req.Header.Set("X-Api-Key", c.apiKey)
		}
		req.Header.Set("anthropic-version", anthropicVersion)
	default:
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
	}
	for _, h := range c.headers {
		name := strings.TrimSpace(h.Name)
		if name == "" {
			continue
		}
		req.Header.Add(name, h.Value)
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return apperrors.Canceled(ctx.Err())
		}
		return apperrors.New(apperrors.KindRateLimit, "Request pacing failed.", err)
	}
	return nil
}

func (c *Client) completionText(body []byte) (string, error) {
	if c.target.Format == endpoint.FormatAnthropic {
		var resp anthropicResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", apperrors.New(apperrors.KindDecode, "Translation response format was invalid.", fmt.Errorf("failed to decode response: %w", err))
		}
		var b strings.Builder
		found := false
		for _, block := range resp.Content {
			if block.Type != "" && block.Type != "text" {
				continue
			}
			b.WriteString(block.Text)
			found = true
		}
		if !found {
			return "", apperrors.Decode(ErrNoChoices)
		}
		return b.String(), nil
	}

	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.New(apperrors.KindDecode, "Translation response format was invalid.", fmt.Errorf("failed to decode response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.Decode(ErrNoChoices)
	}
	return resp.Choices[0].Message.Content, nil
}

func requestError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperrors.Canceled(ctx.Err())
	}
	return apperrors.New(
		apperrors.KindTransient,
		fmt.Sprintf("Translation request failed: %v", err),
		err,
	)
}

// classifyStatus maps a non-2xx response to an error kind. The message keeps
// the status line and body text verbatim.
func classifyStatus(statusCode int, status, body string) error {
	cause := fmt.Errorf("Translation API error %s: %s", status, body)
	kind := apperrors.KindBadRequest
	switch {
	case statusCode == http.StatusTooManyRequests:
		kind = apperrors.KindRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		kind = apperrors.KindAuth
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		kind = apperrors.KindTransient
	}
	return apperrors.New(kind, cause.Error(), cause)
}
