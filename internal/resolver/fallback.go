package resolver

import (
	"strings"

	"github.com/CMCFame/mermaidivr/internal/callflow"
)

// Fallback is the pass-through resolver used when no catalog is available
// (store unreachable, or none configured). It emits deterministic raw-text
// reference ids with zero confidence so a diagram can still be compiled and
// reviewed.
type Fallback struct{}

// Resolve returns a degraded plan: one raw-text reference, the full
// normalized text marked missing, confidence zero.
func (Fallback) Resolve(text, company string) callflow.PromptPlan {
	return fallbackPlan(text)
}

func fallbackPlan(text string) callflow.PromptPlan {
	norm := Normalize(text)
	return callflow.PromptPlan{
		Play:           []callflow.AudioReference{callflow.AudioReference("text:" + slug(norm))},
		Missing:        []string{norm},
		Confidence:     0,
		RequiresReview: true,
	}
}

// slug derives a stable identifier from normalized text.
func slug(norm string) string {
	s := strings.Join(strings.FieldsFunc(norm, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), "_")
	const maxLen = 48
	if len(s) > maxLen {
		s = s[:maxLen]
		s = strings.TrimRight(s, "_")
	}
	if s == "" {
		s = "empty"
	}
	return s
}

// Ensure both resolvers satisfy the contract.
var (
	_ PromptResolver = (*Resolver)(nil)
	_ PromptResolver = Fallback{}
)
