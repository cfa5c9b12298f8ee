package connector

// IDEQS identifies EQS Integrity Line / Conversant-style case exports.
const IDEQS = "eqs"

func init() {
	Register(Connector{
		ID:    IDEQS,
		Label: "EQS Integrity Line",
		KnownColumns: []string{
			"Case ID",
			"Case Reference",
			"Category",
			"Status",
			"Risk Level",
			"Description",
			"Whistleblower Name",
			"Whistleblower Email",
			"Whistleblower Phone",
			"Accused Person",
			"Reporting Channel",
			"Organisational Unit",
			"Submission Date",
			"Closing Date",
			"Case Handler",
			"Confidential",
		},
		MarkerBoosts: []MarkerBoost{
			{Columns: []string{"Whistleblower Name", "Case Reference"}, Boost: 0.15},
			{Columns: []string{"Risk Level", "Organisational Unit"}, Boost: 0.10},
		},
		Dictionaries: map[string]ValueDict{
			"status": {
				Default: StatusNew,
				Values: map[string]string{
					"received":        StatusNew,
					"new":             StatusNew,
					"submitted":       StatusNew,
					"in review":       StatusInProgress,
					"in progress":     StatusInProgress,
					"processing":      StatusInProgress,
					"forwarded":       StatusInProgress,
					"paused":          StatusOnHold,
					"waiting":         StatusOnHold,
					"on hold":         StatusOnHold,
					"completed":       StatusClosed,
					"closed":          StatusClosed,
					"dismissed":       StatusClosed,
					"rejected":        StatusClosed,
					"archived":        StatusArchived,
					"anonymised":      StatusArchived,
				},
			},
			"severity": {
				Default: SeverityMedium,
				Values: map[string]string{
					"negligible": SeverityLow,
					"low":        SeverityLow,
					"low risk":   SeverityLow,
					"medium":     SeverityMedium,
					"middle":     SeverityMedium,
					"elevated":   SeverityHigh,
					"high":       SeverityHigh,
					"high risk":  SeverityHigh,
					"critical":   SeverityCritical,
					"very high":  SeverityCritical,
				},
			},
			"category": {
				Default: CategoryOther,
				Values: map[string]string{
					"fraud":                     CategoryFraud,
					"theft and embezzlement":    CategoryFraud,
					"harassment":                CategoryHarassment,
					"mobbing":                   CategoryHarassment,
					"sexual misconduct":         CategoryHarassment,
					"discrimination":            CategoryDiscrimination,
					"unequal treatment":         CategoryDiscrimination,
					"conflicts of interest":     CategoryConflict,
					"conflict of interest":      CategoryConflict,
					"retaliation":               CategoryRetaliation,
					"occupational safety":       CategorySafety,
					"health and safety":         CategorySafety,
					"gdpr":                      CategoryDataPrivacy,
					"data protection":           CategoryDataPrivacy,
					"money laundering":          CategoryBribery,
					"bribery and corruption":    CategoryBribery,
					"corruption":                CategoryBribery,
					"antitrust":                 CategoryAccounting,
					"accounting irregularities": CategoryAccounting,
					"other":                     CategoryOther,
					"miscellaneous":             CategoryOther,
				},
			},
		},
		Threshold: 0.5,
	})
}
