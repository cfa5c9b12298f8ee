// Package mapper proposes mappings from source columns to canonical case
// fields. Suggestions are tiered: curated aliases first, then substring
// containment, then edit-distance similarity, then sample-value type
// inference as a last resort. Each source column yields at most one
// suggestion and each target field is claimed at most once.
package mapper

// Transform kinds attached to suggestions so the transformer knows how to
// treat the mapped value.
const (
	TransformIdentity   = "identity"
	TransformTrim       = "trim"
	TransformDate       = "date"
	TransformNumber     = "number"
	TransformBoolean    = "boolean"
	TransformVocabulary = "vocabulary"
)

// TargetField is one canonical destination for source data.
type TargetField struct {
	Key       string
	Aliases   []string
	Transform string

	// Required fields must be mapped before a job may import, and a row
	// missing a value for one is excluded from import.
	Required bool
}

// Targets enumerates the canonical case fields, in display order. Alias
// lists are matched after normalization, so spacing, case, and punctuation
// variants all land.
var Targets = []TargetField{
	{
		Key:       "caseNumber",
		Transform: TransformTrim,
		Aliases: []string{
			"case number", "case no", "case id", "case ref", "case reference",
			"report number", "report id", "reference number", "record id",
			"incident number", "ticket number", "matter number",
		},
	},
	{
		Key:       "status",
		Transform: TransformVocabulary,
		Aliases: []string{
			"status", "case status", "current status", "workflow status",
			"report status", "state", "case state", "disposition",
		},
	},
	{
		Key:       "category",
		Transform: TransformVocabulary,
		Aliases: []string{
			"category", "case category", "issue type", "case type",
			"report type", "allegation type", "classification", "topic",
		},
	},
	{
		Key:       "severity",
		Transform: TransformVocabulary,
		Aliases: []string{
			"severity", "priority", "risk level", "risk rating", "urgency",
			"impact", "tier",
		},
	},
	{
		Key:       "description",
		Transform: TransformTrim,
		Required:  true,
		Aliases: []string{
			"description", "details", "report detail", "case description",
			"summary", "narrative", "allegation details", "incident description",
			"case summary",
		},
	},
	{
		Key:       "reporterName",
		Transform: TransformTrim,
		Aliases: []string{
			"reporter name", "reporter", "reported by", "complainant",
			"complainant name", "whistleblower name", "submitted by",
			"caller name",
		},
	},
	{
		Key:       "reporterEmail",
		Transform: TransformTrim,
		Aliases: []string{
			"reporter email", "email", "email address", "contact email",
			"whistleblower email", "complainant email",
		},
	},
	{
		Key:       "reporterPhone",
		Transform: TransformTrim,
		Aliases: []string{
			"reporter phone", "phone", "phone number", "telephone",
			"contact phone", "whistleblower phone", "contact number",
		},
	},
	{
		Key:       "subjectName",
		Transform: TransformTrim,
		Aliases: []string{
			"subject name", "subject", "implicated party", "accused",
			"accused person", "respondent", "person of interest",
		},
	},
	{
		Key:       "intakeUnit",
		Transform: TransformTrim,
		Aliases: []string{
			"intake unit", "business unit", "organisational unit",
			"organizational unit", "department", "division", "location",
			"site", "facility", "branch",
		},
	},
	{
		Key:       "reportedAt",
		Transform: TransformDate,
		Aliases: []string{
			"reported at", "date reported", "report date", "submission date",
			"date submitted", "created date", "opened date", "date opened",
			"intake date", "received date",
		},
	},
	{
		Key:       "closedAt",
		Transform: TransformDate,
		Aliases: []string{
			"closed at", "date closed", "close date", "closing date",
			"resolution date", "date resolved", "completed date",
		},
	},
	{
		Key:       "anonymous",
		Transform: TransformBoolean,
		Aliases: []string{
			"anonymous", "is anonymous", "anonymity", "confidential",
		},
	},
}

// TargetByKey returns the canonical field definition for a key.
func TargetByKey(key string) (TargetField, bool) {
	for _, t := range Targets {
		if t.Key == key {
			return t, true
		}
	}
	return TargetField{}, false
}

// RequiredKeys lists the target fields that must be mapped before import.
func RequiredKeys() []string {
	var keys []string
	for _, t := range Targets {
		if t.Required {
			keys = append(keys, t.Key)
		}
	}
	return keys
}
