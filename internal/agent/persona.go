package agent

import (
	"fmt"
	"strings"
)

// PromptSpec is the structured prompt derived from a contract. It is what
// the lifecycle service and the generation pipeline hand to the completion
// service; rendering is pure and independent of any external call.
type PromptSpec struct {
	System      []string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// RenderPersona converts a contract into a completion-ready prompt spec.
// Trait sliders become plain-language directives so any completion model
// can act on them without provider-specific tuning syntax.
func RenderPersona(c *Contract) PromptSpec {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, %s.\n", c.Name, strings.TrimSpace(c.Identity.ShortDescription))
	if full := strings.TrimSpace(c.Identity.FullDescription); full != "" {
		b.WriteString(full)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Your mission: %s\n", strings.TrimSpace(c.Identity.Mission))
	if len(c.Identity.Roles) > 0 {
		fmt.Fprintf(&b, "You act as: %s.\n", strings.Join(c.Identity.Roles, ", "))
	}
	if len(c.Identity.InteractionStyles) > 0 {
		fmt.Fprintf(&b, "Your interaction style is %s.\n", strings.Join(c.Identity.InteractionStyles, ", "))
	}

	directives := traitDirectives(c.Traits)
	if len(directives) > 0 {
		b.WriteString("Personality calibration:\n")
		for _, d := range directives {
			b.WriteString("- ")
			b.WriteString(d)
			b.WriteString("\n")
		}
	}

	return PromptSpec{
		System:      []string{strings.TrimSpace(b.String())},
		Model:       c.Configuration.Model,
		MaxTokens:   c.Configuration.MaxTokens,
		Temperature: c.Configuration.Temperature,
	}
}

// traitDirectives renders each slider as a level word, in the canonical
// trait order so output is deterministic for identical contracts.
func traitDirectives(traits map[string]int) []string {
	out := make([]string, 0, len(TraitNames))
	for _, name := range TraitNames {
		value, ok := traits[name]
		if !ok {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s (%d/100)", name, traitLevel(value), value))
	}
	return out
}

func traitLevel(value int) string {
	switch {
	case value >= 80:
		return "very high"
	case value >= 60:
		return "high"
	case value >= 40:
		return "moderate"
	case value >= 20:
		return "low"
	default:
		return "very low"
	}
}
