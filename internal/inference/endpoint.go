package inference

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	generatePath = "/api/generate"
	tagsPath     = "/api/tags"

	// DefaultBaseURL is a local Ollama server.
	DefaultBaseURL = "http://localhost:11434"

	defaultGenerateTimeout = 60 * time.Second
	defaultProbeTimeout    = 5 * time.Second
	defaultListTimeout     = 10 * time.Second
)

// EndpointConfig locates the inference server.
type EndpointConfig struct {
	// BaseURL is the server root, with or without a trailing /api/generate.
	BaseURL string `yaml:"base_url"`

	// FallbackURLs are tried in order when the primary is unreachable.
	// Only the first usable entry is attempted per Generate call.
	FallbackURLs []string `yaml:"fallback_urls"`

	// GenerateTimeout caps the per-model preset timeout when set.
	GenerateTimeout time.Duration `yaml:"generate_timeout"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	ListTimeout     time.Duration `yaml:"list_timeout"`

	// Headers are added to every request (API keys for tunnels or proxies).
	Headers map[string]string `yaml:"headers"`
}

// Defaults fills zero fields with default values.
func (c *EndpointConfig) Defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.ListTimeout == 0 {
		c.ListTimeout = defaultListTimeout
	}
}

// Validate checks every URL and timeout.
func (c EndpointConfig) Validate() error {
	var errs []error
	if _, err := GenerateURL(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("base_url: %w", err))
	}
	for i, u := range c.FallbackURLs {
		if _, err := GenerateURL(u); err != nil {
			errs = append(errs, fmt.Errorf("fallback_urls[%d]: %w", i, err))
		}
	}
	if c.GenerateTimeout < 0 || c.ProbeTimeout < 0 || c.ListTimeout < 0 {
		errs = append(errs, errors.New("timeouts must be non-negative"))
	}
	return errors.Join(errs...)
}

// generateTimeout returns the timeout for one Generate attempt.
func (c EndpointConfig) generateTimeout(p Preset) time.Duration {
	if c.GenerateTimeout > 0 && c.GenerateTimeout < p.Timeout {
		return c.GenerateTimeout
	}
	if p.Timeout > 0 {
		return p.Timeout
	}
	return defaultGenerateTimeout
}

// fallback returns the first fallback that parses and differs from primary.
func (c EndpointConfig) fallback(primary string) (string, bool) {
	for _, u := range c.FallbackURLs {
		g, err := GenerateURL(u)
		if err != nil || g == primary {
			continue
		}
		return g, true
	}
	return "", false
}

func parseServerURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &Error{Kind: KindInvalidURL, URL: raw, Err: errors.New("empty URL")}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, URL: raw, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &Error{Kind: KindInvalidURL, URL: raw, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &Error{Kind: KindInvalidURL, URL: raw, Err: errors.New("missing host")}
	}
	return u, nil
}

// GenerateURL returns the generation endpoint for a server address. An
// address already ending in /api/generate is returned unchanged apart from
// a trailing slash.
func GenerateURL(base string) (string, error) {
	u, err := parseServerURL(base)
	if err != nil {
		return "", err
	}
	path := strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(path, generatePath) {
		path += generatePath
	}
	u.Path = path
	u.RawPath = ""
	return u.String(), nil
}

// BaseOf strips a trailing /api/generate (and trailing slashes) from raw.
func BaseOf(raw string) string {
	s := strings.TrimRight(strings.TrimSpace(raw), "/")
	s = strings.TrimSuffix(s, generatePath)
	return strings.TrimRight(s, "/")
}

// TagsURL returns the model-listing endpoint for a server address.
func TagsURL(base string) (string, error) {
	u, err := parseServerURL(BaseOf(base))
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + tagsPath
	u.RawPath = ""
	return u.String(), nil
}
