// Package mission runs one-shot insight requests ("missions") against a
// session and keeps their results.
package mission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/companion/internal/kv"
	"github.com/flemzord/companion/internal/metrics"
)

// StorageKey is the kv key holding every mission.
const StorageKey = "missions"

// MaxInsights is the number of insights kept per mission.
const MaxInsights = 5

// ErrEmptyTopic is returned when a mission has no topic.
var ErrEmptyTopic = errors.New("mission: topic is empty")

// ErrNotFound is returned by Get for an unknown mission ID.
var ErrNotFound = errors.New("mission: not found")

// Status is the lifecycle state of a mission.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrInterrupted is recorded on missions that were still running when the
// process stopped.
var ErrInterrupted = errors.New("mission: interrupted")

// Mission is one insight request and its outcome. Progress is 0.1 while the
// request runs, 1 once completed and 0 after a failure.
type Mission struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	Description string    `json:"description"`
	Model       string    `json:"model,omitempty"`
	Status      Status    `json:"status"`
	Progress    float64   `json:"progress"`
	Insights    []string  `json:"insights"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

const startProgress = 0.1

// Generator sends a prompt without conversation context. session.Manager
// implements it.
type Generator interface {
	GenerateWithoutHistory(ctx context.Context, prompt, model string) (string, error)
}

// Prompt returns the request sent for topic.
func Prompt(topic string) string {
	return "Generate 5 key insights about " + topic + ". Each insight should be a single sentence."
}

// ParseInsights splits a reply into trimmed non-empty lines and keeps the
// first MaxInsights.
func ParseInsights(reply string) []string {
	var out []string
	for line := range strings.SplitSeq(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == MaxInsights {
			break
		}
	}
	return out
}

// Runner executes missions and persists them under StorageKey.
type Runner struct {
	gen    Generator
	kv     kv.Store
	logger *slog.Logger

	mu       sync.Mutex
	missions []Mission
	rev      uint64

	// writeMu orders snapshot writes so an older snapshot never lands
	// after a newer one.
	writeMu sync.Mutex
	written uint64

	wg sync.WaitGroup
}

// NewRunner loads persisted missions from store.
func NewRunner(ctx context.Context, gen Generator, store kv.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Runner{gen: gen, kv: store, logger: logger.With("component", "mission")}

	data, err := store.Get(ctx, StorageKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		r.logger.Warn("mission: loading missions failed", "error", err)
	default:
		if err := json.Unmarshal(data, &r.missions); err != nil {
			r.logger.Warn("mission: ignoring unreadable missions", "error", err)
			r.missions = nil
		}
	}
	if r.interruptStale() {
		r.persist(ctx)
	}
	return r
}

// interruptStale fails missions left in progress by a previous run.
func (r *Runner) interruptStale() bool {
	now := time.Now().UTC()
	changed := false
	for i := range r.missions {
		m := &r.missions[i]
		if m.Status != StatusInProgress {
			continue
		}
		m.Status = StatusFailed
		m.Progress = 0
		m.Error = ErrInterrupted.Error()
		m.UpdatedAt = now
		changed = true
	}
	return changed
}

// List returns every mission, oldest first.
func (r *Runner) List() []Mission {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Mission, len(r.missions))
	for i, m := range r.missions {
		m.Insights = slices.Clone(m.Insights)
		out[i] = m
	}
	return out
}

// Get returns the mission with id.
func (r *Runner) Get(id string) (Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.missions {
		if m.ID == id {
			m.Insights = slices.Clone(m.Insights)
			return m, nil
		}
	}
	return Mission{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Execute runs a mission to completion and returns its final state. A
// generation failure is recorded on the mission, not returned.
func (r *Runner) Execute(ctx context.Context, topic, model string) (Mission, error) {
	m, err := r.create(ctx, topic, model)
	if err != nil {
		return Mission{}, err
	}
	return r.run(ctx, m), nil
}

// Start records a mission and runs it in the background. The returned
// mission is in progress.
func (r *Runner) Start(ctx context.Context, topic, model string) (Mission, error) {
	m, err := r.create(ctx, topic, model)
	if err != nil {
		return Mission{}, err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(context.WithoutCancel(ctx), m)
	}()
	return m, nil
}

// Wait blocks until every started mission has finished.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) create(ctx context.Context, topic, model string) (Mission, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Mission{}, ErrEmptyTopic
	}
	now := time.Now().UTC()
	m := Mission{
		ID:          uuid.NewString(),
		Topic:       topic,
		Description: "Explore and analyze perspectives on " + topic,
		Model:       model,
		Status:      StatusInProgress,
		Progress:    startProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.mu.Lock()
	r.missions = append(r.missions, m)
	r.mu.Unlock()
	r.persist(ctx)
	return m, nil
}

func (r *Runner) run(ctx context.Context, m Mission) Mission {
	reply, err := r.gen.GenerateWithoutHistory(ctx, Prompt(m.Topic), m.Model)
	m.UpdatedAt = time.Now().UTC()
	if err != nil {
		m.Status = StatusFailed
		m.Progress = 0
		m.Error = err.Error()
		r.logger.Warn("mission failed", "id", m.ID, "topic", m.Topic, "error", err)
	} else {
		m.Status = StatusCompleted
		m.Progress = 1
		m.CompletedAt = m.UpdatedAt
		m.Insights = ParseInsights(reply)
		r.logger.Info("mission completed", "id", m.ID, "insights", len(m.Insights))
	}
	metrics.IncMission(string(m.Status))

	r.mu.Lock()
	for i := range r.missions {
		if r.missions[i].ID == m.ID {
			r.missions[i] = m
			break
		}
	}
	r.mu.Unlock()
	r.persist(context.WithoutCancel(ctx))
	return m
}

func (r *Runner) persist(ctx context.Context) {
	r.mu.Lock()
	r.rev++
	rev := r.rev
	data, err := json.Marshal(r.missions)
	r.mu.Unlock()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if rev <= r.written {
		return
	}
	if err == nil {
		err = r.kv.Set(ctx, StorageKey, data)
	}
	r.written = rev
	if err != nil {
		metrics.IncPersistenceError("missions")
		r.logger.Warn("mission: saving missions failed", "error", err)
	}
}
