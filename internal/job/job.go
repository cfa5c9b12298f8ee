// Package job defines the migration job model: the unit of work that carries
// an uploaded competitor export through detection, mapping, validation,
// import, and rollback. The state machine in state.go is the single source
// of truth for which lifecycle moves are legal.
package job

import (
	"time"

	"github.com/google/uuid"
)

// MaxIssueSample bounds how many row-level issues are retained on a job.
// Counts keep accumulating past the cap; only the sample is bounded.
const MaxIssueSample = 100

// DefaultRollbackWindow is how long after completion a rollback stays legal.
const DefaultRollbackWindow = 7 * 24 * time.Hour

// MappingOrigin records whether a field mapping was machine-suggested or
// explicitly confirmed by the user.
type MappingOrigin string

const (
	OriginSuggested     MappingOrigin = "suggested"
	OriginUserConfirmed MappingOrigin = "user_confirmed"
)

// FieldMapping associates one source column with a canonical target field.
type FieldMapping struct {
	SourceColumn string        `json:"sourceColumn"`
	TargetField  string        `json:"targetField"`
	Transform    string        `json:"transform"`
	Confidence   float64       `json:"confidence"`
	Origin       MappingOrigin `json:"origin"`
}

// Counters tracks row accounting for a job. Valid+Errors never exceeds
// Total, and Imported never exceeds Valid.
type Counters struct {
	Total    int `json:"totalRows"`
	Valid    int `json:"validRows"`
	Errors   int `json:"errorRows"`
	Imported int `json:"importedRows"`
}

// Consistent reports whether the counters satisfy the accounting invariant.
func (c Counters) Consistent() bool {
	if c.Total < 0 || c.Valid < 0 || c.Errors < 0 || c.Imported < 0 {
		return false
	}
	return c.Valid+c.Errors <= c.Total && c.Imported <= c.Valid
}

// RowIssue is one row-scoped problem captured during validation or import.
type RowIssue struct {
	RowIndex int    `json:"rowIndex"`
	Field    string `json:"field,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Job is the durable record of one migration run.
type Job struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenantId"`
	State       State          `json:"state"`
	ConnectorID string         `json:"connectorId,omitempty"`
	Confidence  float64        `json:"confidence"`
	FileName    string         `json:"fileName"`
	Mappings    []FieldMapping `json:"mappings,omitempty"`
	Counters    Counters       `json:"counters"`

	// IssueSample is a bounded sample of row-level problems; the counters
	// carry the full totals.
	IssueSample []RowIssue `json:"issueSample,omitempty"`

	RollbackDeadline *time.Time `json:"rollbackDeadline,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// AddIssue appends to the issue sample, respecting MaxIssueSample.
func (j *Job) AddIssue(issue RowIssue) {
	if len(j.IssueSample) < MaxIssueSample {
		j.IssueSample = append(j.IssueSample, issue)
	}
}

// RollbackOpen reports whether rollback is still legal at the given time.
func (j *Job) RollbackOpen(now time.Time) bool {
	return j.State == StateCompleted &&
		j.RollbackDeadline != nil &&
		!now.After(*j.RollbackDeadline)
}

// MappingFor returns the mapping whose target is the given canonical field.
func (j *Job) MappingFor(target string) (FieldMapping, bool) {
	for _, m := range j.Mappings {
		if m.TargetField == target {
			return m, true
		}
	}
	return FieldMapping{}, false
}
