package inference

import (
	"strings"
	"time"
)

// Preset holds model-tuned request parameters.
type Preset struct {
	Name          string
	ContextWindow int
	Timeout       time.Duration
	Temperature   float64
	TopP          float64
	TopK          int
	NumPredict    int
}

// Options converts the preset to the request "options" object.
func (p Preset) Options() Options {
	return Options{
		NumCtx:      p.ContextWindow,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		TopK:        p.TopK,
		NumPredict:  p.NumPredict,
	}
}

// DefaultPreset applies to models matching no entry of the preset table.
var DefaultPreset = Preset{
	Name:          "default",
	ContextWindow: 4096,
	Timeout:       60 * time.Second,
	Temperature:   0.8,
	TopP:          1.0,
	TopK:          50,
	NumPredict:    512,
}

// presets is matched in order against the lowercased model name.
var presets = []struct {
	match  string
	preset Preset
}{
	{"deepseek", Preset{Name: "deepseek", ContextWindow: 8192, Timeout: 120 * time.Second, Temperature: 0.7, TopP: 1.0, TopK: 50, NumPredict: 1024}},
	{"gemma", Preset{Name: "gemma", ContextWindow: 8192, Timeout: 120 * time.Second, Temperature: 0.8, TopP: 0.95, TopK: 40, NumPredict: 300}},
}

// PresetFor returns the preset whose key is a substring of model.
func PresetFor(model string) Preset {
	m := strings.ToLower(model)
	for _, p := range presets {
		if strings.Contains(m, p.match) {
			return p.preset
		}
	}
	return DefaultPreset
}
