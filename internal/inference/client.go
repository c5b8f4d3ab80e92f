// Package inference is a client for Ollama-compatible generation servers.
//
// Generate sends a single non-streaming request tuned by a per-model
// preset. When the primary server cannot be reached the request is retried
// once against the first configured fallback URL.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/flemzord/companion/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/flemzord/companion/internal/inference"

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 << 20

// maxErrorBodySize caps how much of an error body is kept in an Error.
const maxErrorBodySize = 4096

// Generator is what the session layer needs from an inference server.
type Generator interface {
	Generate(ctx context.Context, prompt, model string) (string, error)
	ListModels(ctx context.Context) ([]string, error)
	Probe(ctx context.Context) (Status, []string)
}

// Client talks to one primary server and its fallbacks.
type Client struct {
	cfg    EndpointConfig
	http   *http.Client
	logger *slog.Logger
	tracer trace.Tracer
}

var _ Generator = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Timeouts are applied
// per request through the context, so the client should not set its own.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient creates a client. The configuration is not validated here;
// invalid URLs surface as ErrInvalidURL from each call.
func NewClient(cfg EndpointConfig, opts ...Option) *Client {
	cfg.Defaults()
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: slog.New(nopHandler{}),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the endpoint configuration in use.
func (c *Client) Config() EndpointConfig {
	return c.cfg
}

// Generate sends prompt to model and returns the raw generated text.
func (c *Client) Generate(ctx context.Context, prompt, model string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", &Error{Kind: KindEmptyInput}
	}

	primary, err := GenerateURL(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}

	preset := PresetFor(model)
	payload, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Raw:     true,
		Options: preset.Options(),
	})
	if err != nil {
		return "", fmt.Errorf("inference: marshal request: %w", err)
	}

	ctx, span := c.tracer.Start(ctx, "inference.generate", trace.WithAttributes(
		attribute.String("inference.model", model),
		attribute.String("inference.preset", preset.Name),
	))
	defer span.End()

	timeout := c.cfg.generateTimeout(preset)

	text, err := c.generateOnce(ctx, primary, model, payload, timeout)
	if err == nil {
		return text, nil
	}

	if !canFallback(err) || ctx.Err() != nil {
		recordSpanError(span, err)
		return "", err
	}

	fallback, ok := c.cfg.fallback(primary)
	if !ok {
		err = withHint(err)
		recordSpanError(span, err)
		return "", err
	}

	c.logger.Warn("primary inference server failed, trying fallback",
		"primary", primary, "fallback", fallback, "error", err)
	metrics.IncFallback()
	span.AddEvent("fallback", trace.WithAttributes(attribute.String("inference.url", fallback)))

	text, err = c.generateOnce(ctx, fallback, model, payload, timeout)
	if err != nil {
		if IsNetwork(err) {
			err = withHint(err)
		}
		recordSpanError(span, err)
		return "", err
	}
	return text, nil
}

func (c *Client) generateOnce(ctx context.Context, endpoint, model string, payload []byte, timeout time.Duration) (text string, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveInference("generate", model, outcome(err), time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", c.transportError(ctx, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(endpoint, resp.StatusCode, body)
	}

	text, ok := extractResponse(body)
	if !ok {
		return "", &Error{Kind: KindMalformed, URL: endpoint, Body: truncate(body), Err: ErrMalformedResponse}
	}
	return text, nil
}

// ListModels returns the sorted, de-duplicated model names the server offers.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, span := c.tracer.Start(ctx, "inference.list_models")
	defer span.End()

	models, err := c.fetchTags(ctx, "list_models", c.cfg.ListTimeout)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("inference.models", len(models)))
	return models, nil
}

// Probe checks reachability of the primary server. The model list is
// returned when the server answered with a parsable catalogue.
func (c *Client) Probe(ctx context.Context) (Status, []string) {
	ctx, span := c.tracer.Start(ctx, "inference.probe")
	defer span.End()

	models, err := c.fetchTags(ctx, "probe", c.cfg.ProbeTimeout)
	if err == nil {
		return Status{Kind: StatusConnected}, models
	}

	var e *Error
	if errors.As(err, &e) && e.Kind == KindMalformed {
		// The server answered; only the catalogue is unusable.
		c.logger.Debug("probe: unparsable model list", "error", err)
		return Status{Kind: StatusConnected}, nil
	}

	recordSpanError(span, err)
	return StatusFromError(err), nil
}

func (c *Client) fetchTags(ctx context.Context, op string, timeout time.Duration) (models []string, err error) {
	endpoint, err := TagsURL(c.cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.ObserveInference(op, "", outcome(err), time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, c.transportError(ctx, endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(endpoint, resp.StatusCode, body)
	}

	var tags tagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, &Error{Kind: KindMalformed, URL: endpoint, Body: truncate(body), Err: err}
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		if name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, URL: endpoint, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, endpoint, err)
	}
	return resp, nil
}

// transportError classifies a failure that produced no HTTP status.
// Cancellation by the caller is reported as KindCanceled and is never
// retried.
func (c *Client) transportError(ctx context.Context, endpoint string, err error) error {
	kind := classifyTransport(err)
	if errors.Is(ctx.Err(), context.Canceled) {
		kind = KindCanceled
	}
	c.logger.Debug("inference transport error", "url", endpoint, "kind", kind, "error", err)
	return &Error{Kind: kind, URL: endpoint, Err: err}
}

func statusError(endpoint string, code int, body []byte) error {
	e := &Error{URL: endpoint, StatusCode: code, Body: truncate(body)}
	switch {
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		e.Kind = KindTimeout
	case code >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindHTTP
	}
	return e
}

func withHint(err error) error {
	var e *Error
	if errors.As(err, &e) && e.Hint == "" {
		cp := *e
		cp.Hint = FallbackHint
		return &cp
	}
	return err
}

// StatusFromError maps a failure to a connection status with a
// human-readable message.
func StatusFromError(err error) Status {
	var e *Error
	if !errors.As(err, &e) {
		return Status{Kind: StatusError, Message: err.Error()}
	}
	switch e.Kind {
	case KindTimeout:
		if e.StatusCode != 0 {
			return Status{Kind: StatusError, Message: fmt.Sprintf("Server returned status code: %d", e.StatusCode)}
		}
		return Status{Kind: StatusError, Message: "Connection timed out. Server may be unavailable."}
	case KindUnreachable:
		return Status{Kind: StatusDisconnected, Message: "Cannot connect to server. Check if address is correct."}
	case KindNoNetwork:
		return Status{Kind: StatusDisconnected, Message: "No internet connection."}
	case KindInvalidURL:
		return Status{Kind: StatusError, Message: "Invalid server URL"}
	case KindServer, KindHTTP:
		return Status{Kind: StatusError, Message: fmt.Sprintf("Server returned status code: %d", e.StatusCode)}
	}
	return Status{Kind: StatusError, Message: err.Error()}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return KindOf(err).String()
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodySize {
		body = body[:maxErrorBodySize]
	}
	return strings.TrimSpace(string(body))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, KindOf(err).String())
}

// nopHandler is a slog.Handler that discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }
