package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// closedURL points at a port nothing listens on.
const closedURL = "http://127.0.0.1:1"

type countingTransport struct {
	calls atomic.Int64
	base  http.RoundTripper
}

func (t *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	t.calls.Add(1)
	return t.base.RoundTrip(r)
}

func newTestClient(cfg EndpointConfig) (*Client, *countingTransport) {
	tr := &countingTransport{base: http.DefaultTransport}
	c := NewClient(cfg,
		WithHTTPClient(&http.Client{Transport: tr}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return c, tr
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func generateServer(t *testing.T, reply string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s, want /api/generate", r.URL.Path)
		}
		writeJSON(w, map[string]any{"model": "m", "response": reply, "done": true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate_RequestShape(t *testing.T) {
	var got generateRequest
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		header = r.Header.Get("X-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		writeJSON(w, map[string]any{"response": "Hello!"})
	}))
	defer srv.Close()

	c, _ := newTestClient(EndpointConfig{BaseURL: srv.URL + "/", Headers: map[string]string{"X-Api-Key": "k"}})
	text, err := c.Generate(context.Background(), "User: hi\nAssistant: ", "gemma3:latest")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Hello!" {
		t.Errorf("text = %q", text)
	}
	if got.Model != "gemma3:latest" || got.Stream || !got.Raw || got.Prompt != "User: hi\nAssistant: " {
		t.Errorf("request = %+v", got)
	}
	if got.Options.NumCtx != 8192 || got.Options.TopK != 40 || got.Options.NumPredict != 300 {
		t.Errorf("options = %+v, want gemma preset", got.Options)
	}
	if header != "k" {
		t.Errorf("X-Api-Key = %q", header)
	}
}

func TestGenerate_EmptyPromptMakesNoRequest(t *testing.T) {
	var hits atomic.Int64
	srv := generateServer(t, "x", &hits)

	c, tr := newTestClient(EndpointConfig{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), "   ", "mistral")
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err = %v, want ErrEmptyInput", err)
	}
	if hits.Load() != 0 || tr.calls.Load() != 0 {
		t.Fatalf("network calls = %d/%d, want 0", hits.Load(), tr.calls.Load())
	}
}

func TestGenerate_InvalidURL(t *testing.T) {
	c, tr := newTestClient(EndpointConfig{BaseURL: "ftp://example.com"})
	_, err := c.Generate(context.Background(), "hi", "m")
	if !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("err = %v, want ErrInvalidURL", err)
	}
	if tr.calls.Load() != 0 {
		t.Fatal("invalid URL must not reach the network")
	}
}

func TestGenerate_FallbackOnUnreachablePrimary(t *testing.T) {
	var hits atomic.Int64
	fb := generateServer(t, "from fallback", &hits)

	c, tr := newTestClient(EndpointConfig{BaseURL: closedURL, FallbackURLs: []string{fb.URL + "/api/generate"}})
	text, err := c.Generate(context.Background(), "hi", "mistral")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "from fallback" {
		t.Errorf("text = %q", text)
	}
	if hits.Load() != 1 || tr.calls.Load() != 2 {
		t.Errorf("fallback hits = %d, attempts = %d, want 1 and 2", hits.Load(), tr.calls.Load())
	}
}

func TestGenerate_FallbackOnce(t *testing.T) {
	c, tr := newTestClient(EndpointConfig{
		BaseURL:      closedURL,
		FallbackURLs: []string{"http://127.0.0.1:2", "http://127.0.0.1:3"},
	})
	_, err := c.Generate(context.Background(), "hi", "mistral")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := tr.calls.Load(); got != 2 {
		t.Fatalf("attempts = %d, want exactly 2", got)
	}
	if !IsNetwork(err) {
		t.Errorf("err = %v, want a network error", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Hint != FallbackHint {
		t.Errorf("terminal error should carry the settings hint: %v", err)
	}
}

func TestGenerate_NoFallbackConfigured(t *testing.T) {
	c, tr := newTestClient(EndpointConfig{BaseURL: closedURL})
	_, err := c.Generate(context.Background(), "hi", "mistral")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if tr.calls.Load() != 1 {
		t.Fatalf("attempts = %d, want 1", tr.calls.Load())
	}
	if !strings.Contains(err.Error(), "updating the server address") {
		t.Errorf("error should carry the hint: %v", err)
	}
}

func TestGenerate_TimeoutFallsBack(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()
	var hits atomic.Int64
	fb := generateServer(t, "fast", &hits)

	c, _ := newTestClient(EndpointConfig{
		BaseURL:         slow.URL,
		FallbackURLs:    []string{fb.URL},
		GenerateTimeout: 50 * time.Millisecond,
	})
	text, err := c.Generate(context.Background(), "hi", "mistral")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "fast" || hits.Load() != 1 {
		t.Errorf("text = %q, fallback hits = %d", text, hits.Load())
	}
}

func TestGenerate_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		kind     Kind
		sentinel error
	}{
		{"server error", http.StatusInternalServerError, "boom", KindServer, ErrServer},
		{"bad gateway", http.StatusBadGateway, "", KindServer, ErrServer},
		{"not found", http.StatusNotFound, `{"error":"model not found"}`, KindHTTP, ErrHTTP},
		{"gateway timeout", http.StatusGatewayTimeout, "", KindTimeout, ErrTimeout},
		{"request timeout", http.StatusRequestTimeout, "", KindTimeout, ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, _ := newTestClient(EndpointConfig{BaseURL: srv.URL})
			_, err := c.Generate(context.Background(), "hi", "mistral")
			if KindOf(err) != tt.kind || !errors.Is(err, tt.sentinel) {
				t.Fatalf("err = %v (kind %s), want %s", err, KindOf(err), tt.kind)
			}
			var e *Error
			if errors.As(err, &e) && e.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", e.StatusCode, tt.status)
			}
			if tt.body != "" && !strings.Contains(err.Error(), tt.body) {
				t.Errorf("error should include body %q: %v", tt.body, err)
			}
		})
	}
}

func TestGenerate_HTTPStatusNotRetried(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"server error", http.StatusInternalServerError, ErrServer},
		{"gateway timeout", http.StatusGatewayTimeout, ErrTimeout},
		{"request timeout", http.StatusRequestTimeout, ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer primary.Close()
			var hits atomic.Int64
			fb := generateServer(t, "from fallback", &hits)

			c, _ := newTestClient(EndpointConfig{BaseURL: primary.URL, FallbackURLs: []string{fb.URL}})
			if _, err := c.Generate(context.Background(), "hi", "m"); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if hits.Load() != 0 {
				t.Fatal("HTTP status failures must not use the fallback")
			}
		})
	}
}

func TestGenerate_ResponseSalvage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"truncated json", `{"model":"m","response":"partial answer","done":tru`, "partial answer", true},
		{"json lines", "{\"response\":\"Hel\",\"done\":false}\n{\"response\":\"lo\",\"done\":true}\n", "Hello", true},
		{"escaped text", `garbage {"response":"line\nnext \"quoted\""`, "line\nnext \"quoted\"", true},
		{"not json", "<html>oops</html>", "", false},
		{"missing field", `{"error":"model not found"}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, _ := newTestClient(EndpointConfig{BaseURL: srv.URL})
			text, err := c.Generate(context.Background(), "hi", "m")
			if !tt.ok {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("err = %v, want ErrMalformedResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if text != tt.want {
				t.Errorf("text = %q, want %q", text, tt.want)
			}
		})
	}
}

func TestGenerate_CanceledIsNotRetried(t *testing.T) {
	var hits atomic.Int64
	fb := generateServer(t, "x", &hits)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, _ := newTestClient(EndpointConfig{BaseURL: closedURL, FallbackURLs: []string{fb.URL}})
	_, err := c.Generate(ctx, "hi", "m")
	if KindOf(err) != KindCanceled || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	if hits.Load() != 0 {
		t.Fatal("canceled calls must not use the fallback")
	}
}

func tagsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s, want /api/tags", r.URL.Path)
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListModels(t *testing.T) {
	srv := tagsServer(t, `{"models":[{"name":"mistral:latest"},{"name":"gemma3:latest"},{"name":"mistral:latest"},{"model":"llama3:8b"}]}`)

	// A base given as the generate URL still resolves to /api/tags.
	c, _ := newTestClient(EndpointConfig{BaseURL: srv.URL + "/api/generate"})
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []string{"gemma3:latest", "llama3:8b", "mistral:latest"}
	if strings.Join(models, ",") != strings.Join(want, ",") {
		t.Errorf("models = %v, want %v", models, want)
	}
}

func TestListModels_Unreachable(t *testing.T) {
	c, _ := newTestClient(EndpointConfig{BaseURL: closedURL})
	if _, err := c.ListModels(context.Background()); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestProbe(t *testing.T) {
	ok := tagsServer(t, `{"models":[{"name":"a"}]}`)
	garbled := tagsServer(t, `not json`)
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	tests := []struct {
		name       string
		base       string
		kind       StatusKind
		message    string
		wantModels int
	}{
		{"connected", ok.URL, StatusConnected, "", 1},
		{"connected without catalogue", garbled.URL, StatusConnected, "", 0},
		{"unreachable", closedURL, StatusDisconnected, "Cannot connect to server. Check if address is correct.", 0},
		{"status code", failing.URL, StatusError, "Server returned status code: 503", 0},
		{"invalid url", "not a url", StatusError, "Invalid server URL", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(EndpointConfig{BaseURL: tt.base})
			status, models := c.Probe(context.Background())
			if status.Kind != tt.kind || status.Message != tt.message {
				t.Errorf("status = %+v, want %s %q", status, tt.kind, tt.message)
			}
			if len(models) != tt.wantModels {
				t.Errorf("models = %v", models)
			}
		})
	}
}

func TestProbe_Timeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	c, _ := newTestClient(EndpointConfig{BaseURL: slow.URL, ProbeTimeout: 50 * time.Millisecond})
	status, _ := c.Probe(context.Background())
	if status.Kind != StatusError || status.Message != "Connection timed out. Server may be unavailable." {
		t.Fatalf("status = %+v", status)
	}
}
