package personality

import (
	"fmt"
	"strings"
)

// Perspective is the stance the assistant takes toward the user's ideas.
type Perspective string

const (
	PerspectiveBalanced   Perspective = "Balanced"
	PerspectiveChallenger Perspective = "Challenger"
	PerspectiveSupportive Perspective = "Supportive"
)

// MaxTraits is the number of traits a profile may select.
const MaxTraits = 3

var traitText = map[string]string{
	"strategic":  "strategic thinking (considering long-term implications and planning)",
	"empathetic": "empathy (understanding emotions and connecting with people's feelings)",
	"creative":   "creativity (generating novel ideas and unconventional approaches)",
	"critical":   "critical thinking (evaluating ideas with careful skepticism and attention to detail)",
	"analytical": "analytical thinking (breaking down complex problems into components)",
	"intuitive":  "intuition (trusting gut feelings and instinctive judgments)",
	"practical":  "practicality (focusing on what works in real-world applications)",
	"visionary":  "visionary thinking (imagining future possibilities and opportunities)",
}

// Traits lists the selectable traits.
func Traits() []string {
	return []string{"Strategic", "Empathetic", "Creative", "Critical", "Analytical", "Intuitive", "Practical", "Visionary"}
}

// Profile describes a user's preferred assistant personality.
type Profile struct {
	Perspective        Perspective `json:"perspective" yaml:"perspective"`
	Traits             []string    `json:"traits" yaml:"traits"`
	PrioritizeNewIdeas bool        `json:"prioritize_new_ideas" yaml:"prioritize_new_ideas"`
}

// Validate reports an error when the profile selects too many traits or
// unknown values.
func (p Profile) Validate() error {
	switch strings.ToLower(string(p.Perspective)) {
	case "", "balanced", "challenger", "supportive":
	default:
		return fmt.Errorf("personality: unknown perspective %q", p.Perspective)
	}
	if len(p.Traits) > MaxTraits {
		return fmt.Errorf("personality: at most %d traits allowed, got %d", MaxTraits, len(p.Traits))
	}
	for _, t := range p.Traits {
		if _, ok := traitText[strings.ToLower(t)]; !ok {
			return fmt.Errorf("personality: unknown trait %q", t)
		}
	}
	return nil
}

// Compose builds a system prompt from the profile. The result always
// carries SafetyRule.
func Compose(p Profile) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant that provides thoughtful, helpful responses. ")

	switch strings.ToLower(string(p.Perspective)) {
	case "challenger":
		b.WriteString("You tend to challenge assumptions and play devil's advocate to help the user see different perspectives. ")
	case "supportive":
		b.WriteString("You are supportive and affirming, focusing on building upon the user's ideas in a positive way. ")
	default:
		b.WriteString("You present balanced perspectives, showing multiple sides of issues without strong bias. ")
	}

	if len(p.Traits) > 0 {
		b.WriteString("Your personality exhibits these traits: ")
		for i, t := range p.Traits {
			if i > 0 {
				b.WriteString(", ")
			}
			text, ok := traitText[strings.ToLower(t)]
			if !ok {
				text = "balanced perspective (considering multiple viewpoints)"
			}
			b.WriteString(text)
		}
		b.WriteString(". ")
	}

	if p.PrioritizeNewIdeas {
		b.WriteString("You prioritize sharing new, innovative ideas even if they're unconventional. ")
	} else {
		b.WriteString("You focus on developing and refining existing ideas rather than introducing entirely new concepts. ")
	}

	b.WriteString("Keep your responses conversational, concise, and directly address the user's needs. Avoid unnecessary disclaimers or repetitive phrases.")
	return EnsureSafetyRule(b.String())
}
