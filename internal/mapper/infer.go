package mapper

import (
	"regexp"
	"strings"
	"time"
)

// Type inference looks at sample values when the header itself gives no
// lexical hint. Confidence is deliberately low; these suggestions exist to
// save the user a lookup, not to be trusted blindly.

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe = regexp.MustCompile(`^[+]?[\d\s().-]{7,20}$`)
)

// longTextThreshold is the average rune count above which a column is
// treated as free text.
const longTextThreshold = 80

// inferDateLayouts are the shapes tried when sniffing date-like columns.
var inferDateLayouts = []string{
	"2006-01-02", "2006-01-02 15:04:05", time.RFC3339,
	"01/02/2006", "02/01/2006", "1/2/2006",
	"Jan 2, 2006", "2 Jan 2006",
}

// inferType guesses a target field from sample values. The returned
// confidence is in the 0.40-0.60 band, scaled by how many samples agree.
func inferType(samples []string) (key, transform string, confidence float64) {
	values := make([]string, 0, len(samples))
	for _, s := range samples {
		if s = strings.TrimSpace(s); s != "" {
			values = append(values, s)
		}
	}
	if len(values) == 0 {
		return "", "", 0
	}

	checks := []struct {
		key       string
		transform string
		match     func(string) bool
	}{
		{"reporterEmail", TransformTrim, func(v string) bool { return emailRe.MatchString(v) }},
		{"reportedAt", TransformDate, dateParseable},
		{"reporterPhone", TransformTrim, phoneShaped},
	}

	for _, c := range checks {
		hits := 0
		for _, v := range values {
			if c.match(v) {
				hits++
			}
		}
		ratio := float64(hits) / float64(len(values))
		if ratio >= 0.8 {
			return c.key, c.transform, 0.40 + 0.20*ratio
		}
	}

	var total int
	for _, v := range values {
		total += len([]rune(v))
	}
	if total/len(values) > longTextThreshold {
		return "description", TransformTrim, 0.45
	}
	return "", "", 0
}

func dateParseable(v string) bool {
	for _, layout := range inferDateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

func phoneShaped(v string) bool {
	if !phoneRe.MatchString(v) {
		return false
	}
	digits := 0
	for _, r := range v {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 7
}
