package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// scriptedOracle returns canned responses in order and records its calls
type scriptedOracle struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (o *scriptedOracle) Complete(_ context.Context, prompt string) (string, error) {
	o.calls++
	o.prompts = append(o.prompts, prompt)
	if o.err != nil {
		return "", o.err
	}
	if len(o.responses) == 0 {
		return "", fmt.Errorf("%w: empty output", ErrUpstream)
	}
	resp := o.responses[0]
	if len(o.responses) > 1 {
		o.responses = o.responses[1:]
	}
	return resp, nil
}

func setupOrchestrator(t *testing.T, oracle Oracle) *Orchestrator {
	t.Helper()

	store := setupTestStore(t)
	resolver, err := NewConfigResolver(store, "")
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}
	return NewOrchestrator(NewMemorySessionStore(), resolver, oracle, "grounding-ritual")
}

func TestSubmitTurn_NewSessionCapture(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"assistantMessage": "Welcome. What's here for you?", "nextStep": "ANSWER"}`,
	}}
	o := setupOrchestrator(t, oracle)
	ctx := context.Background()

	resp, err := o.SubmitTurn(ctx, "s1", "I'm scattered before a client call", "client session")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if resp.Done {
		t.Error("Expected session to remain open")
	}

	session, err := o.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session == nil {
		t.Fatal("Expected session to be created")
	}
	if session.UserFeelingRaw != "I'm scattered before a client call" {
		t.Errorf("Expected userFeelingRaw captured, got %q", session.UserFeelingRaw)
	}
	if session.NextActivityRaw != "client session" {
		t.Errorf("Expected nextActivityRaw captured, got %q", session.NextActivityRaw)
	}
}

func TestSubmitTurn_FirstWriteWins(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"assistantMessage": "ok", "nextStep": "ANSWER"}`,
	}}
	o := setupOrchestrator(t, oracle)
	ctx := context.Background()

	if _, err := o.SubmitTurn(ctx, "s1", "first message", "first activity"); err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if _, err := o.SubmitTurn(ctx, "s1", "second message", "second activity"); err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}

	session, _ := o.GetSession(ctx, "s1")
	if session.UserFeelingRaw != "first message" {
		t.Errorf("Expected userFeelingRaw to keep first value, got %q", session.UserFeelingRaw)
	}
	if session.NextActivityRaw != "first activity" {
		t.Errorf("Expected nextActivityRaw to keep first value, got %q", session.NextActivityRaw)
	}
}

func TestSubmitTurn_StepTransition(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"assistantMessage": "Good. What do you want from the call?", "nextStep": "INTEND"}`,
	}}
	o := setupOrchestrator(t, oracle)

	resp, err := o.SubmitTurn(context.Background(), "s1", "I named it: anxious", "")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if resp.CurrentStep != "INTEND" {
		t.Errorf("Expected INTEND, got %s", resp.CurrentStep)
	}
	if resp.Done {
		t.Error("Expected done=false")
	}
	if resp.AssistantMessage != "Good. What do you want from the call?" {
		t.Errorf("Unexpected assistant message: %q", resp.AssistantMessage)
	}
}

func TestSubmitTurn_SafetyOverrideSkipsOracle(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"assistantMessage": "should never appear", "nextStep": "INTEND"}`,
	}}
	o := setupOrchestrator(t, oracle)
	ctx := context.Background()

	resp, err := o.SubmitTurn(ctx, "s1", "I feel HOPELESS today", "")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if !resp.Done {
		t.Error("Expected done=true after safety override")
	}
	if resp.CurrentStep != "DONE" {
		t.Errorf("Expected DONE, got %s", resp.CurrentStep)
	}
	if oracle.calls != 0 {
		t.Errorf("Expected no oracle call on a flagged turn, got %d", oracle.calls)
	}
	if !strings.Contains(resp.AssistantMessage, "deserves real human support") {
		t.Errorf("Expected the configured crisis text, got %q", resp.AssistantMessage)
	}

	session, _ := o.GetSession(ctx, "s1")
	if session.CurrentStep != "DONE" {
		t.Errorf("Expected persisted step DONE, got %s", session.CurrentStep)
	}
}

func TestSubmitTurn_UnparsableOutputFailsClosed(t *testing.T) {
	raw := "I think you should move to the INTEND step next, that feels right."
	oracle := &scriptedOracle{responses: []string{raw}}
	o := setupOrchestrator(t, oracle)

	resp, err := o.SubmitTurn(context.Background(), "s1", "hello", "")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if !resp.Done {
		t.Error("Expected done=true when oracle output is unparsable")
	}
	if resp.CurrentStep != "DONE" {
		t.Errorf("Expected DONE, got %s", resp.CurrentStep)
	}
	if resp.AssistantMessage != raw {
		t.Errorf("Expected the raw oracle text as the reply, got %q", resp.AssistantMessage)
	}
}

func TestSubmitTurn_LongUnparsableOutputTruncated(t *testing.T) {
	raw := strings.Repeat("x", maxSalvagedMessageLen+200)
	oracle := &scriptedOracle{responses: []string{raw}}
	o := setupOrchestrator(t, oracle)

	resp, err := o.SubmitTurn(context.Background(), "s1", "hello", "")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if len(resp.AssistantMessage) != maxSalvagedMessageLen {
		t.Errorf("Expected reply truncated to %d chars, got %d", maxSalvagedMessageLen, len(resp.AssistantMessage))
	}
}

func TestSubmitTurn_OracleFailureApologyAndClose(t *testing.T) {
	oracle := &scriptedOracle{err: fmt.Errorf("%w: connection refused", ErrUpstream)}
	o := setupOrchestrator(t, oracle)

	resp, err := o.SubmitTurn(context.Background(), "s1", "hello", "")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if !resp.Done {
		t.Error("Expected done=true after oracle failure")
	}
	if resp.AssistantMessage != apologyMessage {
		t.Errorf("Expected the fixed apology, got %q", resp.AssistantMessage)
	}
}

func TestSubmitTurn_UnknownNextStepHoldsPosition(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"assistantMessage": "moving you along", "nextStep": "TRANSCEND"}`,
	}}
	o := setupOrchestrator(t, oracle)

	resp, err := o.SubmitTurn(context.Background(), "s1", "hello", "")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if resp.CurrentStep != "ANSWER" {
		t.Errorf("Expected to hold at ANSWER for unknown literal, got %s", resp.CurrentStep)
	}
	if resp.Done {
		t.Error("Expected session to remain open")
	}
}

// The machine performs no local skip-ahead enforcement; transition choice is
// delegated to the oracle. A two-step skip is accepted as proposed.
func TestSubmitTurn_TwoStepSkipAccepted(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"assistantMessage": "jumping ahead", "nextStep": "FLOW"}`,
	}}
	o := setupOrchestrator(t, oracle)

	resp, err := o.SubmitTurn(context.Background(), "s1", "hello", "")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if resp.CurrentStep != "FLOW" {
		t.Errorf("Expected the proposed FLOW step to be accepted, got %s", resp.CurrentStep)
	}
}

func TestSubmitTurn_DoneSessionAnswersWithoutOracle(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"assistantMessage": "done now", "nextStep": "DONE"}`,
	}}
	o := setupOrchestrator(t, oracle)
	ctx := context.Background()

	if _, err := o.SubmitTurn(ctx, "s1", "wrap it up", ""); err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}

	callsAfterClose := oracle.calls
	resp, err := o.SubmitTurn(ctx, "s1", "are you still there?", "")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if oracle.calls != callsAfterClose {
		t.Error("Expected no oracle call for a DONE session")
	}
	if !resp.Done {
		t.Error("Expected done=true for a DONE session")
	}
	if resp.AssistantMessage != alreadyCompleteMessage {
		t.Errorf("Expected the already-complete message, got %q", resp.AssistantMessage)
	}
}

func TestSubmitTurn_NotesMerged(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"assistantMessage": "noted", "nextStep": "INTEND", "notesUpdate": {"ANSWER": "feels scattered"}}`,
		`{"assistantMessage": "noted again", "nextStep": "FOCUS", "notesUpdate": {"INTEND": "wants calm", "ANSWER": "revised"}}`,
	}}
	o := setupOrchestrator(t, oracle)
	ctx := context.Background()

	if _, err := o.SubmitTurn(ctx, "s1", "first", ""); err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if _, err := o.SubmitTurn(ctx, "s1", "second", ""); err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}

	session, _ := o.GetSession(ctx, "s1")
	if session.Notes["ANSWER"] != "revised" {
		t.Errorf("Expected per-key overwrite, got %q", session.Notes["ANSWER"])
	}
	if session.Notes["INTEND"] != "wants calm" {
		t.Errorf("Expected merged note, got %q", session.Notes["INTEND"])
	}
}

func TestSubmitTurn_PromptUsesPreUpdateStep(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"assistantMessage": "on we go", "nextStep": "INTEND"}`,
		`{"assistantMessage": "and further", "nextStep": "FOCUS"}`,
	}}
	o := setupOrchestrator(t, oracle)
	ctx := context.Background()

	if _, err := o.SubmitTurn(ctx, "s1", "first", ""); err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if _, err := o.SubmitTurn(ctx, "s1", "second", ""); err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}

	if !strings.Contains(oracle.prompts[0], "Current step: ANSWER") {
		t.Error("Expected first prompt built from ANSWER")
	}
	if !strings.Contains(oracle.prompts[1], "Current step: INTEND") {
		t.Error("Expected second prompt built from the step set by the first turn")
	}
}

func TestSubmitTurn_MarkdownWrappedJSONSalvaged(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		"Here you go:\n```json\n{\"assistantMessage\": \"salvaged\", \"nextStep\": \"INTEND\"}\n```",
	}}
	o := setupOrchestrator(t, oracle)

	resp, err := o.SubmitTurn(context.Background(), "s1", "hello", "")
	if err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if resp.AssistantMessage != "salvaged" {
		t.Errorf("Expected fenced JSON to be salvaged, got %q", resp.AssistantMessage)
	}
	if resp.CurrentStep != "INTEND" {
		t.Errorf("Expected INTEND after salvage, got %s", resp.CurrentStep)
	}
}

func TestDeleteSession(t *testing.T) {
	oracle := &scriptedOracle{responses: []string{
		`{"assistantMessage": "ok", "nextStep": "ANSWER"}`,
	}}
	o := setupOrchestrator(t, oracle)
	ctx := context.Background()

	if _, err := o.SubmitTurn(ctx, "s1", "hello", ""); err != nil {
		t.Fatalf("SubmitTurn failed: %v", err)
	}
	if err := o.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	session, err := o.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session != nil {
		t.Error("Expected session to be gone after delete")
	}
}
