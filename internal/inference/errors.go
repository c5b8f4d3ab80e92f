package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Sentinel errors. *Error values match them with errors.Is according to
// their Kind.
var (
	ErrEmptyInput        = errors.New("inference: empty input")
	ErrInvalidURL        = errors.New("inference: invalid server URL")
	ErrTimeout           = errors.New("inference: request timed out")
	ErrServer            = errors.New("inference: server error")
	ErrHTTP              = errors.New("inference: unexpected HTTP status")
	ErrMalformedResponse = errors.New("inference: malformed response")
	ErrNoNetwork         = errors.New("inference: no network connection")
	ErrUnreachable       = errors.New("inference: server unreachable")
)

// FallbackHint is attached to network failures once fallback is exhausted.
const FallbackHint = "Connection failed. The server might be down or the tunnel expired. Try updating the server address in settings."

// Kind classifies an inference failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindEmptyInput
	KindInvalidURL
	KindTimeout
	KindServer
	KindHTTP
	KindMalformed
	KindNoNetwork
	KindUnreachable
	KindCanceled
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindEmptyInput:  "empty_input",
	KindInvalidURL:  "invalid_url",
	KindTimeout:     "timeout",
	KindServer:      "server_error",
	KindHTTP:        "http_error",
	KindMalformed:   "malformed_response",
	KindNoNetwork:   "no_network",
	KindUnreachable: "unreachable",
	KindCanceled:    "canceled",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Network reports whether the kind is a transport-level failure eligible
// for a fallback attempt.
func (k Kind) Network() bool {
	return k == KindTimeout || k == KindNoNetwork || k == KindUnreachable
}

func (k Kind) sentinel() error {
	switch k {
	case KindEmptyInput:
		return ErrEmptyInput
	case KindInvalidURL:
		return ErrInvalidURL
	case KindTimeout:
		return ErrTimeout
	case KindServer:
		return ErrServer
	case KindHTTP:
		return ErrHTTP
	case KindMalformed:
		return ErrMalformedResponse
	case KindNoNetwork:
		return ErrNoNetwork
	case KindUnreachable:
		return ErrUnreachable
	case KindCanceled:
		return context.Canceled
	}
	return nil
}

// Error is a classified inference failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Body       string
	URL        string
	Hint       string
	Err        error
}

func (e *Error) Error() string {
	msg := "inference: " + e.Kind.String()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.URL != "" {
		msg += " from " + e.URL
	}
	if e.Body != "" {
		msg += ": " + e.Body
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the Kind of err, KindCanceled for context cancellation
// and KindUnknown otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrEmptyInput):
		return KindEmptyInput
	case errors.Is(err, ErrInvalidURL):
		return KindInvalidURL
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindUnknown
}

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	return KindOf(err).Network()
}

// canFallback reports whether err came from the transport rather than an
// HTTP response. Timeouts answered with 408 or 504 do not qualify.
func canFallback(err error) bool {
	if !IsNetwork(err) {
		return false
	}
	var e *Error
	return !errors.As(err, &e) || e.StatusCode == 0
}

// classifyTransport maps an error returned by http.Client.Do.
func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return KindUnreachable
		}
		return KindNoNetwork
	}

	if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.ENETDOWN) {
		return KindNoNetwork
	}
	// Refused, reset, host unreachable, TLS failures.
	return KindUnreachable
}
