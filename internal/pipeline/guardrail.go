package pipeline

import (
	"strings"

	"golang.org/x/text/cases"
)

// Guardrail drops predictions whose attribution mentions an excluded term,
// for example a newborn, where the discharge-timing heuristic does not hold.
type Guardrail struct {
	terms []string // case-folded
}

// NewGuardrail case-folds the terms; blank terms are ignored.
func NewGuardrail(terms []string) *Guardrail {
	fold := cases.Fold()
	g := &Guardrail{}
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		g.terms = append(g.terms, fold.String(t))
	}
	return g
}

// Excludes returns the first term found in text, matched case-insensitively.
func (g *Guardrail) Excludes(text string) (string, bool) {
	if g == nil || len(g.terms) == 0 || text == "" {
		return "", false
	}
	folded := cases.Fold().String(text)
	for _, t := range g.terms {
		if strings.Contains(folded, t) {
			return t, true
		}
	}
	return "", false
}
