package connector

import (
	"sort"
)

// hintBoost is added to a connector's score when the uploader declared the
// source system themselves. The declaration is evidence, not proof: a file
// that matches nothing still will not clear the threshold on the hint alone.
const hintBoost = 0.30

// genericBaseline is the floor score for the generic connector. Any file
// with columns can always be imported as generic CSV.
const genericBaseline = 0.20

// Candidate is one ranked detection result.
type Candidate struct {
	ConnectorID    string   `json:"connectorId"`
	Label          string   `json:"label"`
	Confidence     float64  `json:"confidence"`
	MatchedColumns []string `json:"matchedColumns"`
}

// Detect scores every registered connector against the file's headers and
// returns candidates sorted by descending confidence. hint is the uploader's
// declared source system ("" when absent); it boosts the named connector
// rather than overriding the ranking outright.
func Detect(headers []string, hint string) []Candidate {
	set := headerSet(headers)

	candidates := make([]Candidate, 0, Count())
	for _, c := range All() {
		cand := score(c, headers, set)
		if c.ID == hint {
			cand.Confidence += hintBoost
		}
		if cand.Confidence > 1.0 {
			cand.Confidence = 1.0
		}
		candidates = append(candidates, cand)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].ConnectorID < candidates[j].ConnectorID
	})
	return candidates
}

// Best returns the top candidate that clears its connector's threshold,
// falling back to the generic connector when nothing does.
func Best(candidates []Candidate) Candidate {
	for _, cand := range candidates {
		c, ok := Get(cand.ConnectorID)
		if !ok {
			continue
		}
		if cand.Confidence >= c.Threshold {
			return cand
		}
	}
	for _, cand := range candidates {
		if cand.ConnectorID == IDGeneric {
			return cand
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return Candidate{}
}

func score(c Connector, headers []string, set map[string]bool) Candidate {
	cand := Candidate{ConnectorID: c.ID, Label: c.Label}

	if len(c.KnownColumns) == 0 {
		// Structural connector: confidence grows with column count so a
		// well-formed file is always importable as generic, never at zero.
		cand.Confidence = genericBaseline + 0.03*float64(min(len(headers), 5))
		return cand
	}

	matched := 0
	for _, col := range c.KnownColumns {
		if set[normalizeHeader(col)] {
			matched++
			cand.MatchedColumns = append(cand.MatchedColumns, col)
		}
	}
	cand.Confidence = float64(matched) / float64(len(c.KnownColumns))

	for _, mb := range c.MarkerBoosts {
		all := true
		for _, col := range mb.Columns {
			if !set[normalizeHeader(col)] {
				all = false
				break
			}
		}
		if all {
			cand.Confidence += mb.Boost
		}
	}
	return cand
}
