// Package inferencetest provides test helpers for the inference package.
package inferencetest

import (
	"context"
	"sync"

	"github.com/flemzord/companion/internal/inference"
)

// Stub is a configurable test double for inference.Generator.
// Unset funcs return zero values: an empty reply, no models and a
// connected status. All methods are safe for concurrent use.
type Stub struct {
	GenerateFunc   func(ctx context.Context, prompt, model string) (string, error)
	ListModelsFunc func(ctx context.Context) ([]string, error)
	ProbeFunc      func(ctx context.Context) (inference.Status, []string)

	mu          sync.Mutex
	Prompts     []string
	Models      []string
	GenerateN   int
	ListModelsN int
	ProbeN      int
}

var _ inference.Generator = (*Stub)(nil)

// Generate records the prompt and delegates to GenerateFunc.
func (s *Stub) Generate(ctx context.Context, prompt, model string) (string, error) {
	s.mu.Lock()
	s.GenerateN++
	s.Prompts = append(s.Prompts, prompt)
	s.Models = append(s.Models, model)
	s.mu.Unlock()
	if s.GenerateFunc == nil {
		return "", nil
	}
	return s.GenerateFunc(ctx, prompt, model)
}

// ListModels delegates to ListModelsFunc.
func (s *Stub) ListModels(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	s.ListModelsN++
	s.mu.Unlock()
	if s.ListModelsFunc == nil {
		return nil, nil
	}
	return s.ListModelsFunc(ctx)
}

// Probe delegates to ProbeFunc.
func (s *Stub) Probe(ctx context.Context) (inference.Status, []string) {
	s.mu.Lock()
	s.ProbeN++
	s.mu.Unlock()
	if s.ProbeFunc == nil {
		return inference.Status{Kind: inference.StatusConnected}, nil
	}
	return s.ProbeFunc(ctx)
}

// Calls returns the number of Generate, ListModels and Probe calls.
func (s *Stub) Calls() (generate, list, probe int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.GenerateN, s.ListModelsN, s.ProbeN
}

// LastPrompt returns the most recent prompt passed to Generate.
func (s *Stub) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Prompts) == 0 {
		return ""
	}
	return s.Prompts[len(s.Prompts)-1]
}

// Reply returns a GenerateFunc that always answers text.
func Reply(text string) func(context.Context, string, string) (string, error) {
	return func(context.Context, string, string) (string, error) { return text, nil }
}

// Fail returns a GenerateFunc that always fails with err.
func Fail(err error) func(context.Context, string, string) (string, error) {
	return func(context.Context, string, string) (string, error) { return "", err }
}
