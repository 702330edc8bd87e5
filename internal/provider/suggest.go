package provider

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// suggestCutoff is the maximum edit distance, relative to the candidate
// length, for a model id to count as "close enough" to suggest.
const suggestCutoff = 0.5

// Suggest returns the registered "provider/model" string closest to the
// requested one, or "" when nothing is plausibly close. Used to turn
// unknown-model errors into a "did you mean" hint.
func (r *Registry) Suggest(modelString string) string {
	requested := strings.ToLower(modelString)
	if requested == "" {
		return ""
	}

	best := ""
	bestDist := -1
	for _, p := range r.List() {
		for _, m := range p.Models() {
			candidate := p.ID() + "/" + m.ID
			dist := levenshtein.ComputeDistance(requested, strings.ToLower(candidate))
			// A bare model id should match its qualified form.
			if d := levenshtein.ComputeDistance(requested, strings.ToLower(m.ID)); d < dist {
				dist = d
			}
			if bestDist == -1 || dist < bestDist {
				best = candidate
				bestDist = dist
			}
		}
	}

	if best == "" {
		return ""
	}
	if float64(bestDist) > suggestCutoff*float64(len(best)) {
		return ""
	}
	return best
}
