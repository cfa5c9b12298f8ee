package connector

import "testing"

var navexHeaders = []string{
	"Report Number", "Issue Type", "Report Status", "Priority",
	"Report Detail", "Reporter Name", "Date Reported",
}

var eqsHeaders = []string{
	"Case ID", "Case Reference", "Category", "Status", "Risk Level",
	"Description", "Whistleblower Name", "Submission Date",
}

func TestDetectNavexExport(t *testing.T) {
	candidates := Detect(navexHeaders, "")
	if len(candidates) == 0 {
		t.Fatal("no candidates")
	}
	top := candidates[0]
	if top.ConnectorID != IDNavex {
		t.Fatalf("top candidate = %s, want %s", top.ConnectorID, IDNavex)
	}
	if top.Confidence < 0.5 {
		t.Errorf("confidence = %.2f, want >= 0.5", top.Confidence)
	}
	if len(top.MatchedColumns) != 7 {
		t.Errorf("matched %d columns, want 7", len(top.MatchedColumns))
	}
}

func TestDetectNavexCaseExport(t *testing.T) {
	// Case-management exports carry "Case Number" instead of "Report Number"
	// and a much shorter column set; they must still clear the threshold.
	headers := []string{"Case Number", "Case Type", "Status", "Reported Date"}
	candidates := Detect(headers, "")
	top := candidates[0]
	if top.ConnectorID != IDNavex {
		t.Fatalf("top candidate = %s, want %s", top.ConnectorID, IDNavex)
	}
	if top.Confidence < 0.5 {
		t.Errorf("confidence = %.2f, want >= 0.5", top.Confidence)
	}
	if best := Best(candidates); best.ConnectorID != IDNavex {
		t.Errorf("best = %s, want %s", best.ConnectorID, IDNavex)
	}
}

func TestDetectEQSExport(t *testing.T) {
	candidates := Detect(eqsHeaders, "")
	if top := candidates[0]; top.ConnectorID != IDEQS {
		t.Fatalf("top candidate = %s, want %s", top.ConnectorID, IDEQS)
	}
}

func TestDetectHeaderVariants(t *testing.T) {
	// Underscored lower-case headers still match the declared columns.
	headers := []string{"report_number", "issue_type", "report_status", "date_reported"}
	candidates := Detect(headers, "")
	if top := candidates[0]; top.ConnectorID != IDNavex {
		t.Fatalf("top candidate = %s, want %s", top.ConnectorID, IDNavex)
	}
}

func TestDetectUnknownHeadersFallsBackToGeneric(t *testing.T) {
	headers := []string{"foo", "bar", "baz", "qux"}
	candidates := Detect(headers, "")
	best := Best(candidates)
	if best.ConnectorID != IDGeneric {
		t.Fatalf("best = %s, want %s", best.ConnectorID, IDGeneric)
	}
	if best.Confidence <= 0 {
		t.Errorf("generic confidence = %.2f, want > 0", best.Confidence)
	}
}

func TestDetectHintBoostsDeclaredSystem(t *testing.T) {
	// Ambiguous headers that weakly match both branded connectors.
	headers := []string{"Status", "Category", "Description"}

	without := Detect(headers, "")
	with := Detect(headers, IDEQS)

	var base, boosted float64
	for _, c := range without {
		if c.ConnectorID == IDEQS {
			base = c.Confidence
		}
	}
	for _, c := range with {
		if c.ConnectorID == IDEQS {
			boosted = c.Confidence
		}
	}
	if boosted <= base {
		t.Errorf("hint did not raise confidence: %.2f -> %.2f", base, boosted)
	}
}

func TestDetectConfidenceCapped(t *testing.T) {
	full := make([]string, 0)
	c, _ := Get(IDNavex)
	full = append(full, c.KnownColumns...)

	candidates := Detect(full, IDNavex)
	if top := candidates[0]; top.Confidence > 1.0 {
		t.Errorf("confidence = %.2f, want <= 1.0", top.Confidence)
	}
}

func TestRegistryBuiltins(t *testing.T) {
	for _, id := range []string{IDNavex, IDEQS, IDGeneric} {
		if _, ok := Get(id); !ok {
			t.Errorf("connector %s not registered", id)
		}
	}
	all := All()
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Fatalf("All() not sorted: %s before %s", all[i-1].ID, all[i].ID)
		}
	}
}

func TestValueDictLookup(t *testing.T) {
	c, _ := Get(IDNavex)
	dict, ok := c.Dictionary("status")
	if !ok {
		t.Fatal("navex has no status dictionary")
	}

	tests := []struct {
		raw  string
		want string
		hit  bool
	}{
		{"Investigating", StatusInProgress, true},
		{"  CLOSED  ", StatusClosed, true},
		{"Pending", StatusOnHold, true},
		{"weird made-up status", StatusNew, false},
	}
	for _, tt := range tests {
		got, hit := dict.Lookup(tt.raw)
		if got != tt.want || hit != tt.hit {
			t.Errorf("Lookup(%q) = %q,%v want %q,%v", tt.raw, got, hit, tt.want, tt.hit)
		}
	}
}
