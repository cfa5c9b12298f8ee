package connector

// IDGeneric is the fallback connector for delimited files from unknown
// systems. It declares no known columns; detection scores it structurally
// and mapping relies entirely on the field mapper's heuristics.
const IDGeneric = "generic"

func init() {
	Register(Connector{
		ID:    IDGeneric,
		Label: "Generic CSV",
		Dictionaries: map[string]ValueDict{
			"status": {
				Default: StatusNew,
				Values: map[string]string{
					"new":         StatusNew,
					"open":        StatusInProgress,
					"active":      StatusInProgress,
					"in progress": StatusInProgress,
					"pending":     StatusOnHold,
					"on hold":     StatusOnHold,
					"hold":        StatusOnHold,
					"closed":      StatusClosed,
					"done":        StatusClosed,
					"complete":    StatusClosed,
					"completed":   StatusClosed,
					"archived":    StatusArchived,
				},
			},
			"severity": {
				Default: SeverityMedium,
				Values: map[string]string{
					"low":      SeverityLow,
					"1":        SeverityLow,
					"medium":   SeverityMedium,
					"2":        SeverityMedium,
					"high":     SeverityHigh,
					"3":        SeverityHigh,
					"critical": SeverityCritical,
					"4":        SeverityCritical,
				},
			},
			"category": {
				Default: CategoryOther,
				Values: map[string]string{
					"fraud":                CategoryFraud,
					"harassment":           CategoryHarassment,
					"discrimination":       CategoryDiscrimination,
					"conflict of interest": CategoryConflict,
					"retaliation":          CategoryRetaliation,
					"safety":               CategorySafety,
					"privacy":              CategoryDataPrivacy,
					"bribery":              CategoryBribery,
					"accounting":           CategoryAccounting,
					"other":                CategoryOther,
				},
			},
		},
		Threshold: 0.0,
	})
}
