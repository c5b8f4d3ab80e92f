// Package security masks credentials before they reach log output or
// diagnostic dumps.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches attribute and header names that carry secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|authorization|api[_-]?key|credential|cookie)`)

// IsSecretKey reports whether a header or attribute name carries a secret.
func IsSecretKey(name string) bool {
	return secretKeyPattern.MatchString(name)
}

// Redactor replaces secret values in strings. It matches known token
// formats and literal values registered at runtime (configured headers,
// the gateway bearer token). All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddLiteral registers a value to redact on sight. Values shorter than
// four bytes are ignored to avoid masking ordinary words.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 4 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// AddHeaders registers the values of secret-looking headers.
func (r *Redactor) AddHeaders(headers map[string]string) {
	for name, value := range headers {
		if IsSecretKey(name) {
			r.AddLiteral(value)
		}
	}
}

// Redact replaces every known pattern and literal in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns, literals := r.patterns, r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, "${1}"+RedactPlaceholder)
	}
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	return s
}

// RedactHeaders returns a copy of headers with secret values masked.
func RedactHeaders(headers map[string]string) map[string]string {
	if headers == nil {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if IsSecretKey(k) && v != "" {
			v = RedactPlaceholder
		}
		out[k] = v
	}
	return out
}

// DefaultPatterns returns the built-in patterns. The first capture group
// of each pattern is kept in the output.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Authorization: Bearer xyz / Basic xyz
		regexp.MustCompile(`(?i)(\b(?:bearer|basic)\s+)[A-Za-z0-9\-._~+/]+=*`),
		// api_key=xyz in query strings
		regexp.MustCompile(`(?i)([?&](?:api[_-]?key|token|access_token)=)[^&\s]+`),
		// Provider keys: sk-..., sk-ant-...
		regexp.MustCompile(`()sk-(?:ant-)?[A-Za-z0-9\-]{20,}`),
	}
}
