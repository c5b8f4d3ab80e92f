package session

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/flemzord/companion/internal/inference"
	"github.com/flemzord/companion/internal/personality"
)

// Built-in chat types.
const (
	ChatMain   = "main"
	ChatDebate = "debate"
)

const (
	defaultMainModel   = "mistral:latest"
	defaultDebateModel = "gemma3:latest"
)

var chatTypePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidChatType reports whether name can identify a chat. Chat types are
// used in storage keys and URLs.
func ValidChatType(name string) bool {
	return chatTypePattern.MatchString(name)
}

// Config is the personality and endpoint configuration of one chat.
type Config struct {
	ServerAddress string   `json:"server_address" yaml:"server_address"`
	FallbackURLs  []string `json:"fallback_urls,omitempty" yaml:"fallback_urls"`
	Model         string   `json:"model" yaml:"model"`

	// SystemPrompt overrides Preset when set.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt"`
	Preset       string `json:"preset,omitempty" yaml:"preset"`
}

// DefaultConfig returns the built-in configuration of a chat type.
func DefaultConfig(chatType string) Config {
	model := defaultMainModel
	if chatType == ChatDebate {
		model = defaultDebateModel
	}
	return Config{
		ServerAddress: inference.DefaultBaseURL,
		Model:         model,
		Preset:        personality.DefaultPreset,
	}
}

// Merge returns c with every non-zero field of o applied.
func (c Config) Merge(o Config) Config {
	if o.ServerAddress != "" {
		c.ServerAddress = o.ServerAddress
	}
	if len(o.FallbackURLs) > 0 {
		c.FallbackURLs = append([]string(nil), o.FallbackURLs...)
	}
	if o.Model != "" {
		c.Model = o.Model
	}
	if o.SystemPrompt != "" {
		c.SystemPrompt = o.SystemPrompt
	}
	if o.Preset != "" {
		c.Preset = o.Preset
	}
	return c
}

// SystemPromptText returns the prompt sent ahead of the conversation. It
// always carries the rule that forbids speaking for the user.
func (c Config) SystemPromptText() string {
	if strings.TrimSpace(c.SystemPrompt) != "" {
		return personality.EnsureSafetyRule(c.SystemPrompt)
	}
	p, err := personality.PresetPrompt(c.Preset)
	if err != nil {
		p, _ = personality.PresetPrompt(personality.DefaultPreset)
	}
	return p
}

// Validate checks the server addresses, model and preset.
func (c Config) Validate() error {
	var errs []error
	if _, err := inference.GenerateURL(c.ServerAddress); err != nil {
		errs = append(errs, fmt.Errorf("server_address: %w", err))
	}
	for i, u := range c.FallbackURLs {
		if _, err := inference.GenerateURL(u); err != nil {
			errs = append(errs, fmt.Errorf("fallback_urls[%d]: %w", i, err))
		}
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.Preset != "" {
		if _, ok := personality.Lookup(c.Preset); !ok {
			errs = append(errs, fmt.Errorf("unknown preset %q", c.Preset))
		}
	}
	return errors.Join(errs...)
}

func (c Config) endpoint(base inference.EndpointConfig) inference.EndpointConfig {
	base.BaseURL = c.ServerAddress
	base.FallbackURLs = append([]string(nil), c.FallbackURLs...)
	return base
}

// Update carries the fields to change in Configure. Nil fields are left
// untouched; a non-nil FallbackURLs replaces the list (empty clears it).
type Update struct {
	ServerAddress *string  `json:"server_address,omitempty"`
	FallbackURLs  []string `json:"fallback_urls,omitempty"`
	Model         *string  `json:"model,omitempty"`
	SystemPrompt  *string  `json:"system_prompt,omitempty"`
	Preset        *string  `json:"preset,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.ServerAddress == nil && u.FallbackURLs == nil && u.Model == nil &&
		u.SystemPrompt == nil && u.Preset == nil
}

func (u Update) apply(c Config) Config {
	if u.ServerAddress != nil {
		c.ServerAddress = strings.TrimSpace(*u.ServerAddress)
	}
	if u.FallbackURLs != nil {
		c.FallbackURLs = append([]string{}, u.FallbackURLs...)
	}
	if u.Model != nil {
		c.Model = strings.TrimSpace(*u.Model)
	}
	if u.SystemPrompt != nil {
		c.SystemPrompt = *u.SystemPrompt
	}
	if u.Preset != nil {
		c.Preset = *u.Preset
	}
	return c
}
