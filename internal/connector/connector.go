// Package connector describes the competitor systems we can migrate from.
//
// A connector is data, not code: the column names a system's export is known
// to use, header combinations that strongly identify it, and the value
// dictionaries that translate its vocabulary into our canonical enums.
// Adding support for a new competitor means registering a new Connector,
// nothing else.
package connector

import (
	"strings"
)

// Canonical case status values.
const (
	StatusNew        = "NEW"
	StatusInProgress = "IN_PROGRESS"
	StatusOnHold     = "ON_HOLD"
	StatusClosed     = "CLOSED"
	StatusArchived   = "ARCHIVED"
)

// Canonical severity values.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

// Canonical case categories for compliance intake.
const (
	CategoryFraud          = "FRAUD"
	CategoryHarassment     = "HARASSMENT"
	CategoryDiscrimination = "DISCRIMINATION"
	CategoryConflict       = "CONFLICT_OF_INTEREST"
	CategoryRetaliation    = "RETALIATION"
	CategorySafety         = "HEALTH_AND_SAFETY"
	CategoryDataPrivacy    = "DATA_PRIVACY"
	CategoryBribery        = "BRIBERY_CORRUPTION"
	CategoryAccounting     = "ACCOUNTING_AUDITING"
	CategoryOther          = "OTHER"
)

// ValueDict maps a source system's vocabulary for one field to canonical
// values. Lookups are case-insensitive and whitespace-trimmed. Default is
// used when a source value has no entry.
type ValueDict struct {
	Values  map[string]string
	Default string
}

// Lookup resolves a raw source value. ok is false on a dictionary miss, in
// which case the canonical Default is returned.
func (d ValueDict) Lookup(raw string) (canonical string, ok bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if v, found := d.Values[key]; found {
		return v, true
	}
	return d.Default, false
}

// MarkerBoost adds confidence when a header combination unique to one
// system is present in full.
type MarkerBoost struct {
	Columns []string
	Boost   float64
}

// Connector describes one source system format.
type Connector struct {
	ID           string
	Label        string
	KnownColumns []string
	MarkerBoosts []MarkerBoost

	// Dictionaries is keyed by canonical field name (status, severity,
	// category). Vocabulary transforms consult these during import.
	Dictionaries map[string]ValueDict

	// Threshold is the minimum detection confidence below which this
	// connector should not be auto-selected.
	Threshold float64
}

// Dictionary returns the value dictionary for a canonical field.
func (c Connector) Dictionary(field string) (ValueDict, bool) {
	d, ok := c.Dictionaries[field]
	return d, ok
}

// normalizeHeader folds a header for column matching: lower-cased with
// spaces, underscores, and hyphens removed, so "Case Number", "case_number",
// and "CaseNumber" all collide.
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		switch r {
		case ' ', '_', '-', '.', '/':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// headerSet folds a header list into a lookup set.
func headerSet(headers []string) map[string]bool {
	set := make(map[string]bool, len(headers))
	for _, h := range headers {
		set[normalizeHeader(h)] = true
	}
	return set
}
