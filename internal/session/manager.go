// Package session orchestrates one conversation: it owns the message log,
// builds prompts from the configured personality, calls the inference
// server and cleans its replies.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/flemzord/companion/internal/history"
	"github.com/flemzord/companion/internal/inference"
	"github.com/flemzord/companion/internal/kv"
	"github.com/flemzord/companion/internal/metrics"
	"github.com/flemzord/companion/internal/prompt"
	"github.com/flemzord/companion/internal/sanitize"
	"github.com/flemzord/companion/pkg/chat"
)

// GeneratorFactory builds the inference client for an endpoint.
type GeneratorFactory func(inference.EndpointConfig) inference.Generator

// Options configures a Manager.
type Options struct {
	ChatType string
	KV       kv.Store

	// Config holds the configured defaults. Persisted settings override it.
	// Zero fields fall back to DefaultConfig(ChatType).
	Config Config

	// Endpoint supplies timeouts and headers. Its URLs are replaced by
	// the session configuration.
	Endpoint inference.EndpointConfig

	// NewGenerator defaults to inference.NewClient.
	NewGenerator GeneratorFactory

	Logger *slog.Logger

	// Window is the number of turns included in prompts. Zero means
	// chat.DefaultWindow.
	Window int
}

// State is a snapshot of the observable session fields.
type State struct {
	Chat       string           `json:"chat"`
	Processing bool             `json:"processing"`
	Status     inference.Status `json:"status"`
	Models     []string         `json:"models"`
	LastError  string           `json:"last_error,omitempty"`
	Config     Config           `json:"config"`
	Turns      int              `json:"turns"`
}

// Manager runs one chat. All methods are safe for concurrent use.
type Manager struct {
	chat     string
	kv       kv.Store
	store    *history.Store
	newGen   GeneratorFactory
	endpoint inference.EndpointConfig
	window   int
	logger   *slog.Logger

	mu       sync.Mutex
	cfg      Config
	gen      inference.Generator
	status   inference.Status
	models   []string
	lastErr  string
	inflight int
	closed   bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	wg sync.WaitGroup
}

// New creates the manager of opts.ChatType, restoring its settings and
// conversation log from opts.KV.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if !ValidChatType(opts.ChatType) {
		return nil, fmt.Errorf("session: invalid chat type %q", opts.ChatType)
	}
	if opts.KV == nil {
		return nil, errors.New("session: a kv store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("chat", opts.ChatType)

	newGen := opts.NewGenerator
	if newGen == nil {
		newGen = func(cfg inference.EndpointConfig) inference.Generator {
			return inference.NewClient(cfg, inference.WithLogger(logger))
		}
	}

	window := opts.Window
	if window == 0 {
		window = chat.DefaultWindow
	}

	base := DefaultConfig(opts.ChatType).Merge(opts.Config)
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("session: %s: %w", opts.ChatType, err)
	}
	cfg := loadSettings(ctx, opts.KV, opts.ChatType, base, logger)

	m := &Manager{
		chat:     opts.ChatType,
		kv:       opts.KV,
		newGen:   newGen,
		endpoint: opts.Endpoint,
		window:   window,
		logger:   logger,
		cfg:      cfg,
		subs:     make(map[int]chan Event),
	}
	m.gen = newGen(cfg.endpoint(opts.Endpoint))
	m.store = history.Open(ctx, opts.KV, opts.ChatType, logger)
	metrics.SetSessionStatus(m.chat, m.status.Kind.String())

	logger.Debug("session ready", "model", cfg.Model, "server", cfg.ServerAddress, "turns", m.store.Len())
	return m, nil
}

// Chat returns the chat type.
func (m *Manager) Chat() string { return m.chat }

// History returns a copy of the conversation log.
func (m *Manager) History() []chat.ChatTurn { return m.store.All() }

// State returns a snapshot of the observable fields.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.cfg
	cfg.FallbackURLs = slices.Clone(cfg.FallbackURLs)
	return State{
		Chat:       m.chat,
		Processing: m.inflight > 0,
		Status:     m.status,
		Models:     slices.Clone(m.models),
		LastError:  m.lastErr,
		Config:     cfg,
		Turns:      m.store.Len(),
	}
}

// Config returns the current configuration.
func (m *Manager) Config() Config {
	return m.State().Config
}

func (m *Manager) snapshot() (Config, inference.Generator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg, m.gen
}

// SendMessage appends text as a user turn, asks the model for a reply and
// appends the cleaned reply as an assistant turn.
//
// The user turn is persisted before the network call and kept when the
// call fails. Blank text returns inference.ErrEmptyInput without touching
// the log or the network.
func (m *Manager) SendMessage(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", inference.ErrEmptyInput
	}

	m.beginProcessing()
	defer m.endProcessing()

	cfg, gen := m.snapshot()
	recent := m.store.Windowed(m.window)

	persistCtx := context.WithoutCancel(ctx)
	userTurn := chat.NewTurn(chat.OriginUser, text)
	m.store.Append(persistCtx, userTurn)
	m.emit(Event{Type: EventTurnAppended, Turn: &userTurn})

	p, err := prompt.Build(recent, text, prompt.Config{SystemPrompt: cfg.SystemPromptText(), Window: m.window})
	if err != nil {
		return "", err
	}

	raw, err := gen.Generate(ctx, p, cfg.Model)
	if err != nil {
		m.recordFailure(err)
		return "", err
	}

	reply := sanitize.Sanitize(raw)
	replyTurn := chat.NewTurn(chat.OriginAssistant, reply)
	m.store.Append(persistCtx, replyTurn)
	m.emit(Event{Type: EventTurnAppended, Turn: &replyTurn})
	m.clearError()

	return reply, nil
}

// AddMessage appends a turn without generating a reply.
func (m *Manager) AddMessage(ctx context.Context, content string, origin chat.Origin) (chat.ChatTurn, error) {
	if !origin.Valid() {
		return chat.ChatTurn{}, fmt.Errorf("session: invalid origin %q", origin)
	}
	if strings.TrimSpace(content) == "" {
		return chat.ChatTurn{}, inference.ErrEmptyInput
	}
	turn := chat.NewTurn(origin, content)
	m.store.Append(context.WithoutCancel(ctx), turn)
	m.emit(Event{Type: EventTurnAppended, Turn: &turn})
	return turn, nil
}

// GenerateWithoutHistory sends prompt as-is, bypassing the log, the prompt
// builder and the sanitizer. An empty model uses the configured one.
func (m *Manager) GenerateWithoutHistory(ctx context.Context, promptText, model string) (string, error) {
	if strings.TrimSpace(promptText) == "" {
		return "", inference.ErrEmptyInput
	}

	m.beginProcessing()
	defer m.endProcessing()

	cfg, gen := m.snapshot()
	if model == "" {
		model = cfg.Model
	}
	return gen.Generate(ctx, promptText, model)
}

// ClearHistory deletes the conversation log, resets the last error and
// re-checks the connection.
func (m *Manager) ClearHistory(ctx context.Context) inference.Status {
	m.store.Clear(context.WithoutCancel(ctx))
	m.clearError()
	m.emit(Event{Type: EventHistoryCleared})
	return m.TestConnection(ctx)
}

// Configure applies u, persists the changed settings and re-checks the
// connection. When the server address changed the model list is refreshed
// in the background. An invalid update is rejected as a whole.
func (m *Manager) Configure(ctx context.Context, u Update) (inference.Status, error) {
	m.mu.Lock()
	prev := m.cfg
	next := u.apply(prev)
	if err := next.Validate(); err != nil {
		m.mu.Unlock()
		return inference.Status{}, fmt.Errorf("session: configure %s: %w", m.chat, err)
	}

	serverChanged := next.ServerAddress != prev.ServerAddress
	if serverChanged || !slices.Equal(next.FallbackURLs, prev.FallbackURLs) {
		m.gen = m.newGen(next.endpoint(m.endpoint))
	}
	m.cfg = next
	// Close waits on wg, so no refresh starts once it has begun.
	refresh := serverChanged && !m.closed
	if refresh {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	saveSettings(context.WithoutCancel(ctx), m.kv, m.chat, u, next, m.logger)
	m.emit(Event{Type: EventConfig, Config: &next})
	m.logger.Info("session configured", "model", next.Model, "server", next.ServerAddress, "preset", next.Preset)

	if refresh {
		go func() {
			defer m.wg.Done()
			if _, err := m.FetchAvailableModels(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("refreshing models after server change failed", "error", err)
			}
		}()
	}

	return m.TestConnection(ctx), nil
}

// FetchAvailableModels refreshes the model list. On failure the previous
// list is kept. When the configured model is not offered, the first
// offered model becomes the configured one.
func (m *Manager) FetchAvailableModels(ctx context.Context) ([]string, error) {
	_, gen := m.snapshot()
	models, err := gen.ListModels(ctx)
	if err != nil {
		m.logger.Warn("listing models failed", "error", err)
		return m.State().Models, err
	}

	m.mu.Lock()
	m.models = slices.Clone(models)
	switched := ""
	if len(models) > 0 && !slices.Contains(models, m.cfg.Model) {
		switched = models[0]
		m.cfg.Model = switched
	}
	cfg := m.cfg
	m.mu.Unlock()

	m.emit(Event{Type: EventModels, Models: slices.Clone(models)})
	if switched != "" {
		m.logger.Info("configured model unavailable, switching", "model", switched)
		saveSettings(context.WithoutCancel(ctx), m.kv, m.chat, Update{Model: &switched}, cfg, m.logger)
		m.emit(Event{Type: EventConfig, Config: &cfg})
	}
	return models, nil
}

// TestConnection probes the server and records the resulting status. A
// model list carried by the probe is adopted when none was fetched yet.
func (m *Manager) TestConnection(ctx context.Context) inference.Status {
	_, gen := m.snapshot()
	status, models := gen.Probe(ctx)

	m.mu.Lock()
	m.status = status
	adopt := len(m.models) == 0 && len(models) > 0
	if adopt {
		m.models = slices.Clone(models)
	}
	m.mu.Unlock()

	metrics.SetSessionStatus(m.chat, status.Kind.String())
	m.emit(Event{Type: EventStatus, Status: &status})
	if adopt {
		m.emit(Event{Type: EventModels, Models: slices.Clone(models)})
	}
	return status
}

func (m *Manager) recordFailure(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	network := inference.IsNetwork(err)
	var status inference.Status
	if network {
		status = inference.StatusFromError(err)
		m.status = status
	}
	m.mu.Unlock()

	m.logger.Warn("generation failed", "kind", inference.KindOf(err), "error", err)
	m.emit(Event{Type: EventError, Error: err.Error()})
	if network {
		metrics.SetSessionStatus(m.chat, status.Kind.String())
		m.emit(Event{Type: EventStatus, Status: &status})
	}
}

func (m *Manager) clearError() {
	m.mu.Lock()
	m.lastErr = ""
	m.mu.Unlock()
}

func (m *Manager) beginProcessing() {
	m.mu.Lock()
	m.inflight++
	first := m.inflight == 1
	m.mu.Unlock()
	if first {
		on := true
		m.emit(Event{Type: EventProcessing, Processing: &on})
	}
}

func (m *Manager) endProcessing() {
	m.mu.Lock()
	m.inflight--
	last := m.inflight == 0
	m.mu.Unlock()
	if last {
		off := false
		m.emit(Event{Type: EventProcessing, Processing: &off})
	}
}

// Close waits for background work and ends every subscription. A
// Configure running after Close no longer refreshes models in the
// background.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
	m.closeSubscribers()
}
