// Package personality provides the system prompts that shape how the
// assistant speaks: named tone presets, prompts composed from a
// perspective and traits, and the rule that keeps the model from
// speaking for the user.
package personality

import (
	"fmt"
	"strings"
)

// SafetyRule is appended to every system prompt that lacks it.
const SafetyRule = "IMPORTANT: Never generate or insert text prefixed with 'User:' as that makes it seem like you're speaking for the user. Only respond as yourself, the AI assistant."

// DefaultPreset is used when no preset or prompt is configured.
const DefaultPreset = "Balanced"

var presets = []struct {
	name   string
	prompt string
}{
	{"Balanced", "You are a balanced AI assistant. Be helpful, concise, and accurate. Provide a mix of practical advice and deeper insights when appropriate."},
	{"Analytical", "You are an analytical AI assistant. Focus on facts, data, and logical analysis. Provide well-structured responses that break down complex topics."},
	{"Creative", "You are a creative AI assistant. Think outside the box and offer innovative perspectives and ideas. Use metaphors and analogies to explain concepts."},
	{"Empathetic", "You are an empathetic AI assistant. Be understanding, warm, and supportive. Focus on the emotional aspects of questions and respond with care and sensitivity."},
	{"Academic", "You are an academic AI assistant. Provide detailed, well-researched responses with scholarly depth. Reference concepts and principles where appropriate."},
	{"Practical", "You are a practical AI assistant. Focus on actionable advice and real-world applications. Keep explanations concise and implementation-focused."},
}

// Presets returns the preset names in display order.
func Presets() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.name
	}
	return names
}

// Lookup returns the prompt of the named preset, matched case-insensitively.
func Lookup(name string) (string, bool) {
	for _, p := range presets {
		if strings.EqualFold(p.name, name) {
			return p.prompt, true
		}
	}
	return "", false
}

// PresetPrompt returns the full system prompt for a preset, safety rule
// included. Unknown names are an error.
func PresetPrompt(name string) (string, error) {
	if name == "" {
		name = DefaultPreset
	}
	p, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("personality: unknown preset %q (available: %s)", name, strings.Join(Presets(), ", "))
	}
	return EnsureSafetyRule(p), nil
}

// EnsureSafetyRule appends SafetyRule to prompt unless it already carries it.
func EnsureSafetyRule(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if strings.Contains(prompt, SafetyRule) {
		return prompt
	}
	if prompt == "" {
		return SafetyRule
	}
	return prompt + " " + SafetyRule
}
