package models

import "testing"

func TestParseStep(t *testing.T) {
	for _, valid := range []string{"ANSWER", "INTEND", "FOCUS", "FLOW", "BEGIN", "DONE"} {
		step, ok := ParseStep(valid)
		if !ok {
			t.Errorf("Expected %q to parse", valid)
		}
		if step.String() != valid {
			t.Errorf("Expected %q, got %q", valid, step)
		}
	}

	for _, invalid := range []string{"", "answer", "Done", "NEXT", "ANSWER "} {
		if _, ok := ParseStep(invalid); ok {
			t.Errorf("Expected %q to be rejected", invalid)
		}
	}
}

func TestStepIsTerminal(t *testing.T) {
	if !StepDone.IsTerminal() {
		t.Error("DONE must be terminal")
	}
	for _, step := range ActiveSteps() {
		if step.IsTerminal() {
			t.Errorf("%s must not be terminal", step)
		}
	}
}

func TestNewSessionState(t *testing.T) {
	session := NewSessionState("abc")
	if session.CurrentStep != StepAnswer {
		t.Errorf("Expected new sessions to start at ANSWER, got %s", session.CurrentStep)
	}
	if session.Notes == nil {
		t.Error("Expected notes map initialized")
	}
	if session.CreatedAt.IsZero() || session.UpdatedAt.IsZero() {
		t.Error("Expected timestamps set")
	}
}
