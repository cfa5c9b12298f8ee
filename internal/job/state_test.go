package job

import (
	"errors"
	"testing"
	"time"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		ok   bool
	}{
		{"upload to detect", StateUploaded, StateDetecting, true},
		{"detect to mapping", StateDetecting, StateMapping, true},
		{"mapping to validating", StateMapping, StateValidating, true},
		{"validating to preview", StateValidating, StatePreviewReady, true},
		{"validating to failed", StateValidating, StateValidationFailed, true},
		{"preview to importing", StatePreviewReady, StateImporting, true},
		{"preview back to mapping", StatePreviewReady, StateMapping, true},
		{"importing to completed", StateImporting, StateCompleted, true},
		{"importing to failed", StateImporting, StateImportFailed, true},
		{"completed to rolled back", StateCompleted, StateRolledBack, true},
		{"skip mapping", StateUploaded, StateValidating, false},
		{"skip preview", StateValidating, StateImporting, false},
		{"rollback before completion", StateImporting, StateRolledBack, false},
		{"revive terminal", StateRolledBack, StateImporting, false},
		{"revive failed", StateImportFailed, StateImporting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.from.Transition(tt.to)
			if tt.ok {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.to {
					t.Errorf("got %s, want %s", got, tt.to)
				}
			} else {
				if !errors.Is(err, ErrIllegalTransition) {
					t.Fatalf("got %v, want ErrIllegalTransition", err)
				}
				if got != tt.from {
					t.Errorf("state changed on illegal transition: %s", got)
				}
			}
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	if _, err := StateMapping.Transition(State("bogus")); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("got %v, want ErrIllegalTransition", err)
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StateRolledBack, StateValidationFailed, StateImportFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateUploaded, StateMapping, StateCompleted} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCountersConsistent(t *testing.T) {
	tests := []struct {
		name string
		c    Counters
		want bool
	}{
		{"zero", Counters{}, true},
		{"mid validation", Counters{Total: 100, Valid: 40, Errors: 10}, true},
		{"complete", Counters{Total: 10, Valid: 8, Errors: 2, Imported: 8}, true},
		{"overflow", Counters{Total: 10, Valid: 8, Errors: 3}, false},
		{"imported exceeds valid", Counters{Total: 10, Valid: 5, Errors: 5, Imported: 6}, false},
		{"negative", Counters{Total: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Consistent(); got != tt.want {
				t.Errorf("Consistent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIssueSampleBounded(t *testing.T) {
	j := &Job{}
	for i := 0; i < MaxIssueSample*2; i++ {
		j.AddIssue(RowIssue{RowIndex: i, Severity: "error", Message: "bad row"})
	}
	if len(j.IssueSample) != MaxIssueSample {
		t.Fatalf("sample size = %d, want %d", len(j.IssueSample), MaxIssueSample)
	}
}

func TestRollbackOpen(t *testing.T) {
	now := time.Now()
	deadline := now.Add(time.Hour)
	expired := now.Add(-time.Hour)

	tests := []struct {
		name     string
		state    State
		deadline *time.Time
		want     bool
	}{
		{"open", StateCompleted, &deadline, true},
		{"expired", StateCompleted, &expired, false},
		{"wrong state", StateImporting, &deadline, false},
		{"no deadline", StateCompleted, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &Job{State: tt.state, RollbackDeadline: tt.deadline}
			if got := j.RollbackOpen(now); got != tt.want {
				t.Errorf("RollbackOpen() = %v, want %v", got, tt.want)
			}
		})
	}
}
