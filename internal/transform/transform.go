package transform

import (
	"fmt"
	"strconv"

	"github.com/casewise/migrator/internal/connector"
	"github.com/casewise/migrator/internal/job"
	"github.com/casewise/migrator/internal/mapper"
	"github.com/casewise/migrator/internal/rowsource"
)

// Issue severities. An error excludes the row from import; a warning lets
// it through with a best-effort value.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Issue is one row-scoped problem found while transforming.
type Issue struct {
	Field    string `json:"field,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Result is the outcome of transforming one row.
type Result struct {
	// Fields holds canonical entity fields: string, float64, bool, or
	// time.Time depending on the transform kind. Unparsable or empty
	// values are absent.
	Fields map[string]any
	Issues []Issue
}

// Valid reports whether the row may be imported: no error-severity issues.
func (r Result) Valid() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return false
		}
	}
	return true
}

// TransformRow applies the job's mappings to one source row. Vocabulary
// fields consult the connector's dictionaries; misses fall back to the
// dictionary default with a warning. Missing required fields are errors.
func TransformRow(row rowsource.Row, mappings []job.FieldMapping, conn connector.Connector) Result {
	res := Result{Fields: make(map[string]any, len(mappings))}

	// Structural problems found by the reader travel with the row.
	for _, msg := range row.Issues {
		res.Issues = append(res.Issues, Issue{Severity: SeverityWarning, Message: msg})
	}

	for _, m := range mappings {
		raw := CleanCell(row.Fields[m.SourceColumn])
		target, known := mapper.TargetByKey(m.TargetField)

		if raw == "" {
			if known && target.Required {
				res.Issues = append(res.Issues, Issue{
					Field:    m.TargetField,
					Severity: SeverityError,
					Message:  fmt.Sprintf("required field %s is empty", m.TargetField),
				})
			}
			continue
		}

		switch m.Transform {
		case "", mapper.TransformIdentity:
			res.Fields[m.TargetField] = row.Fields[m.SourceColumn]

		case mapper.TransformTrim:
			res.Fields[m.TargetField] = raw

		case mapper.TransformDate:
			t, ok := ParseDate(raw)
			if !ok {
				res.Issues = append(res.Issues, Issue{
					Field:    m.TargetField,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("unparsable date %q, field left empty", raw),
				})
				continue
			}
			res.Fields[m.TargetField] = t

		case mapper.TransformNumber:
			n, ok := ParseNumber(raw)
			if !ok {
				res.Issues = append(res.Issues, Issue{
					Field:    m.TargetField,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("unparsable number %q, field left empty", raw),
				})
				continue
			}
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				res.Issues = append(res.Issues, Issue{
					Field:    m.TargetField,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("unparsable number %q, field left empty", raw),
				})
				continue
			}
			res.Fields[m.TargetField] = f

		case mapper.TransformBoolean:
			b, ok := ParseBool(raw)
			if !ok {
				res.Issues = append(res.Issues, Issue{
					Field:    m.TargetField,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("unrecognized boolean %q, field left empty", raw),
				})
				continue
			}
			res.Fields[m.TargetField] = b

		case mapper.TransformVocabulary:
			dict, ok := conn.Dictionary(m.TargetField)
			if !ok {
				res.Fields[m.TargetField] = raw
				continue
			}
			canonical, hit := dict.Lookup(raw)
			res.Fields[m.TargetField] = canonical
			if !hit {
				res.Issues = append(res.Issues, Issue{
					Field:    m.TargetField,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("unmapped %s value %q, using default %s", m.TargetField, raw, canonical),
				})
			}

		default:
			res.Issues = append(res.Issues, Issue{
				Field:    m.TargetField,
				Severity: SeverityError,
				Message:  fmt.Sprintf("unknown transform %q", m.Transform),
			})
		}
	}

	// Rows without a natural identifier still need a stable one. The
	// substitution is surfaced so operators can see which imported cases
	// have no source case number.
	if _, ok := res.Fields["caseNumber"]; !ok {
		res.Fields["caseNumber"] = SyntheticID(conn.ID, row)
		res.Issues = append(res.Issues, Issue{
			Field:    "caseNumber",
			Severity: SeverityWarning,
			Message:  "no source case number, synthesized a row identifier",
		})
	}

	return res
}
