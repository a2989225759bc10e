package models

import "time"

// Step is one of the six states a ritual session can occupy
type Step string

const (
	StepAnswer Step = "ANSWER"
	StepIntend Step = "INTEND"
	StepFocus  Step = "FOCUS"
	StepFlow   Step = "FLOW"
	StepBegin  Step = "BEGIN"
	StepDone   Step = "DONE" // terminal
)

func (s Step) String() string {
	return string(s)
}

// IsTerminal reports whether the step closes the session
func (s Step) IsTerminal() bool {
	return s == StepDone
}

// StepChain is the legal forward order of the ritual
var StepChain = []Step{StepAnswer, StepIntend, StepFocus, StepFlow, StepBegin, StepDone}

// ActiveSteps returns the five non-terminal steps, in ritual order.
// Every ritual configuration must provide a script for each of these.
func ActiveSteps() []Step {
	return []Step{StepAnswer, StepIntend, StepFocus, StepFlow, StepBegin}
}

// ParseStep validates a step literal. The second return is false for any
// value outside the six known literals.
func ParseStep(raw string) (Step, bool) {
	switch Step(raw) {
	case StepAnswer, StepIntend, StepFocus, StepFlow, StepBegin, StepDone:
		return Step(raw), true
	}
	return "", false
}

// SessionState is one user's progress through the ritual.
// The orchestrator owns it exclusively during a turn; the session store holds
// the authoritative copy between turns.
type SessionState struct {
	SessionID       string            `json:"session_id"`
	CurrentStep     Step              `json:"current_step"`
	UserFeelingRaw  string            `json:"user_feeling_raw,omitempty"`  // first-write-wins
	NextActivityRaw string            `json:"next_activity_raw,omitempty"` // first-write-wins
	Notes           map[string]string `json:"notes,omitempty"`             // step name -> short summary
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewSessionState initializes a fresh session at the first ritual step
func NewSessionState(sessionID string) *SessionState {
	now := time.Now().UTC()
	return &SessionState{
		SessionID:   sessionID,
		CurrentStep: StepAnswer,
		Notes:       make(map[string]string),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TurnRequest is the inbound chat request body
type TurnRequest struct {
	SessionID    string `json:"session_id"`
	UserMessage  string `json:"user_message"`
	NextActivity string `json:"next_activity,omitempty"`
}

// TurnResponse is what the end user sees for every turn - a normal step
// reply, a crisis response, or an apology-and-close. Never a raw error.
type TurnResponse struct {
	AssistantMessage string `json:"assistant_message"`
	CurrentStep      Step   `json:"current_step"`
	Done             bool   `json:"done"`
}

// OracleTurn is the JSON object the generation oracle is instructed to emit
type OracleTurn struct {
	AssistantMessage string            `json:"assistantMessage"`
	NextStep         string            `json:"nextStep"`
	NotesUpdate      map[string]string `json:"notesUpdate,omitempty"`
}
