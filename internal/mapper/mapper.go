package mapper

import (
	"sort"
	"strings"
)

// Suggestion strategies, in evaluation order.
const (
	StrategyTemplate  = "template"
	StrategyAlias     = "alias"
	StrategySubstring = "substring"
	StrategyFuzzy     = "fuzzy"
	StrategyInferred  = "inferred"
)

// Confidence levels per tier. Fuzzy carries its computed similarity instead.
const (
	confAlias     = 0.95
	confSubstring = 0.75
	fuzzyFloor    = 0.70
)

// minSubstringOverlap guards the substring tier against trivial matches.
const minSubstringOverlap = 3

// Suggestion is one proposed column mapping.
type Suggestion struct {
	SourceColumn string  `json:"sourceColumn"`
	TargetField  string  `json:"targetField"`
	Transform    string  `json:"transform"`
	Confidence   float64 `json:"confidence"`
	Strategy     string  `json:"strategy"`
}

// Preset short-circuits suggestion for columns a saved template covers.
// Keys are source column names, values canonical target field keys.
type Preset map[string]string

// Suggest proposes a mapping for each source column. samples holds sample
// values per column (keyed by header) for the type-inference tier. Columns
// that match nothing are omitted; each target field is claimed at most once,
// first (highest-tier) claim wins.
func Suggest(headers []string, samples map[string][]string, preset Preset) []Suggestion {
	suggestions := make([]Suggestion, 0, len(headers))
	usedTargets := make(map[string]bool)

	claim := func(s Suggestion) bool {
		if usedTargets[s.TargetField] {
			return false
		}
		usedTargets[s.TargetField] = true
		suggestions = append(suggestions, s)
		return true
	}

	// Template preset wins outright for the columns it covers.
	remaining := make([]string, 0, len(headers))
	for _, h := range headers {
		target, ok := preset[h]
		if !ok {
			remaining = append(remaining, h)
			continue
		}
		t, known := TargetByKey(target)
		if !known || !claim(Suggestion{
			SourceColumn: h,
			TargetField:  t.Key,
			Transform:    t.Transform,
			Confidence:   1.0,
			Strategy:     StrategyTemplate,
		}) {
			remaining = append(remaining, h)
		}
	}

	// Lexical tiers, strongest first across all columns so a weak match on
	// an early column cannot steal a target from a strong match later.
	type scored struct {
		s     Suggestion
		order int
	}
	var candidates []scored
	for i, h := range remaining {
		if s, ok := lexicalMatch(h); ok {
			candidates = append(candidates, scored{s, i})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].s.Confidence != candidates[j].s.Confidence {
			return candidates[i].s.Confidence > candidates[j].s.Confidence
		}
		return candidates[i].order < candidates[j].order
	})

	matchedCols := make(map[string]bool)
	for _, c := range candidates {
		if claim(c.s) {
			matchedCols[c.s.SourceColumn] = true
		}
	}

	// Last resort: infer from sample data.
	for _, h := range remaining {
		if matchedCols[h] {
			continue
		}
		key, transform, conf := inferType(samples[h])
		if key == "" {
			continue
		}
		claim(Suggestion{
			SourceColumn: h,
			TargetField:  key,
			Transform:    transform,
			Confidence:   conf,
			Strategy:     StrategyInferred,
		})
	}

	// Present suggestions in source-column order.
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return index[suggestions[i].SourceColumn] < index[suggestions[j].SourceColumn]
	})
	return suggestions
}

// lexicalMatch runs the alias, substring, and fuzzy tiers for one header.
func lexicalMatch(header string) (Suggestion, bool) {
	norm := normalize(header)
	if norm == "" {
		return Suggestion{}, false
	}

	var best Suggestion
	for _, t := range Targets {
		for _, alias := range append([]string{t.Key}, t.Aliases...) {
			aliasNorm := normalize(alias)

			var conf float64
			var strategy string
			switch {
			case norm == aliasNorm:
				conf, strategy = confAlias, StrategyAlias
			case len(aliasNorm) >= minSubstringOverlap && strings.Contains(norm, aliasNorm):
				conf, strategy = confSubstring, StrategySubstring
			default:
				if sim := similarity(norm, aliasNorm); sim >= fuzzyFloor {
					conf, strategy = sim, StrategyFuzzy
				}
			}

			if conf > best.Confidence {
				best = Suggestion{
					SourceColumn: header,
					TargetField:  t.Key,
					Transform:    t.Transform,
					Confidence:   conf,
					Strategy:     strategy,
				}
			}
		}
	}
	return best, best.Confidence > 0
}

// MissingRequired returns the required target fields not covered by the
// given mappings (keyed by target field). Import is blocked until empty.
func MissingRequired(mappedTargets map[string]bool) []string {
	var missing []string
	for _, key := range RequiredKeys() {
		if !mappedTargets[key] {
			missing = append(missing, key)
		}
	}
	return missing
}

// normalize folds a header or alias for comparison: lower-case, with
// separators and punctuation removed.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}
