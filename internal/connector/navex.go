package connector

// IDNavex identifies NAVEX EthicsPoint-style case exports.
const IDNavex = "navex"

func init() {
	Register(Connector{
		ID:    IDNavex,
		Label: "NAVEX EthicsPoint",
		KnownColumns: []string{
			"Report Number",
			"Case Number",
			"Case Type",
			"Issue Type",
			"Incident Type",
			"Report Status",
			"Status",
			"Priority",
			"Report Detail",
			"Reporter Name",
			"Reporter Email",
			"Reporter Phone",
			"Implicated Party",
			"Location",
			"Business Unit",
			"Date Reported",
			"Reported Date",
			"Date Closed",
			"Anonymous",
			"Follow-Up Date",
			"Outcome",
			"Case Manager",
		},
		MarkerBoosts: []MarkerBoost{
			// EthicsPoint ships two export shapes: incident exports keyed by
			// "Report Number" and case-management exports keyed by
			// "Case Number". These column pairs fingerprint each shape;
			// any single column is too generic on its own.
			{Columns: []string{"Report Number", "Issue Type"}, Boost: 0.20},
			{Columns: []string{"Case Number", "Incident Type"}, Boost: 0.20},
			{Columns: []string{"Case Number", "Case Type"}, Boost: 0.20},
			{Columns: []string{"Case Number", "Reported Date"}, Boost: 0.15},
			{Columns: []string{"Implicated Party", "Report Detail"}, Boost: 0.10},
		},
		Dictionaries: map[string]ValueDict{
			"status": {
				Default: StatusNew,
				Values: map[string]string{
					"new":                  StatusNew,
					"unreviewed":           StatusNew,
					"open":                 StatusInProgress,
					"in progress":          StatusInProgress,
					"investigating":        StatusInProgress,
					"under investigation":  StatusInProgress,
					"assigned":             StatusInProgress,
					"pending":              StatusOnHold,
					"on hold":              StatusOnHold,
					"awaiting information": StatusOnHold,
					"suspended":            StatusOnHold,
					"closed":               StatusClosed,
					"resolved":             StatusClosed,
					"substantiated":        StatusClosed,
					"unsubstantiated":      StatusClosed,
					"closed - no action":   StatusClosed,
					"archived":             StatusArchived,
					"historical":           StatusArchived,
				},
			},
			"severity": {
				Default: SeverityMedium,
				Values: map[string]string{
					"low":       SeverityLow,
					"minor":     SeverityLow,
					"level 1":   SeverityLow,
					"medium":    SeverityMedium,
					"moderate":  SeverityMedium,
					"level 2":   SeverityMedium,
					"high":      SeverityHigh,
					"serious":   SeverityHigh,
					"level 3":   SeverityHigh,
					"critical":  SeverityCritical,
					"severe":    SeverityCritical,
					"urgent":    SeverityCritical,
					"level 4":   SeverityCritical,
					"immediate": SeverityCritical,
				},
			},
			"category": {
				Default: CategoryOther,
				Values: map[string]string{
					"fraud":                            CategoryFraud,
					"theft":                            CategoryFraud,
					"embezzlement":                     CategoryFraud,
					"falsification of records":         CategoryFraud,
					"harassment":                       CategoryHarassment,
					"sexual harassment":                CategoryHarassment,
					"workplace harassment":             CategoryHarassment,
					"bullying":                         CategoryHarassment,
					"discrimination":                   CategoryDiscrimination,
					"equal opportunity":                CategoryDiscrimination,
					"conflict of interest":             CategoryConflict,
					"gifts and entertainment":          CategoryConflict,
					"retaliation":                      CategoryRetaliation,
					"whistleblower retaliation":        CategoryRetaliation,
					"safety":                           CategorySafety,
					"environmental health and safety":  CategorySafety,
					"workplace violence":               CategorySafety,
					"substance abuse":                  CategorySafety,
					"data privacy":                     CategoryDataPrivacy,
					"privacy":                          CategoryDataPrivacy,
					"confidentiality":                  CategoryDataPrivacy,
					"bribery":                          CategoryBribery,
					"corruption":                       CategoryBribery,
					"improper payments":                CategoryBribery,
					"accounting":                       CategoryAccounting,
					"accounting and auditing matters":  CategoryAccounting,
					"financial reporting":              CategoryAccounting,
					"internal controls":                CategoryAccounting,
					"other":                            CategoryOther,
					"general inquiry":                  CategoryOther,
					"policy inquiry":                   CategoryOther,
				},
			},
		},
		Threshold: 0.5,
	})
}
