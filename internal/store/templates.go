package store

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// Fingerprint produces a stable hash of a header set, insensitive to order
// and case, so templates saved from one export match later files with the
// same shape.
func Fingerprint(headers []string) string {
	normalized := make([]string, 0, len(headers))
	for _, h := range headers {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(h)))
	}
	sort.Strings(normalized)

	h := fnv.New64a()
	for _, n := range normalized {
		h.Write([]byte(n))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// TemplateMatch pairs a template with how well it fits a header set.
type TemplateMatch struct {
	Template Template `json:"template"`
	Score    float64  `json:"score"`
}

// MatchTemplates scores each template against the given headers: the
// fraction of the template's source columns present in the file, 1.0 when
// the fingerprint matches exactly. Results are sorted by descending score;
// templates with no overlap are dropped.
func MatchTemplates(templates []Template, headers []string) []TemplateMatch {
	fp := Fingerprint(headers)
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[strings.ToLower(strings.TrimSpace(h))] = true
	}

	var matches []TemplateMatch
	for _, t := range templates {
		if t.Fingerprint == fp {
			matches = append(matches, TemplateMatch{Template: t, Score: 1.0})
			continue
		}
		if len(t.Mappings) == 0 {
			continue
		}
		hits := 0
		for _, m := range t.Mappings {
			if present[strings.ToLower(strings.TrimSpace(m.SourceColumn))] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		matches = append(matches, TemplateMatch{
			Template: t,
			Score:    float64(hits) / float64(len(t.Mappings)),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Template.Name < matches[j].Template.Name
	})
	return matches
}
