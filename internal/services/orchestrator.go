package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"ritualflow/internal/logging"
	"ritualflow/internal/models"
)

const (
	// apologyMessage closes the session when the oracle call itself fails.
	// The end user never sees a raw error.
	apologyMessage = "I'm sorry - I lost my thread for a moment and can't continue this session. " +
		"Please start a fresh one whenever you're ready."

	// alreadyCompleteMessage answers any turn against a finished session
	alreadyCompleteMessage = "This ritual session is already complete. Start a new session when you're ready for another round."

	// maxSalvagedMessageLen bounds the raw oracle text used as a reply when
	// its output could not be parsed.
	maxSalvagedMessageLen = 600
)

// Orchestrator sequences a chat turn: load-or-create session, safety scan,
// prompt build, oracle call, transition, persist, respond. Turns for one
// session are serialized by a per-session lock; turns for different sessions
// proceed in parallel.
type Orchestrator struct {
	sessions   SessionStore
	resolver   *ConfigResolver
	oracle     Oracle
	ritualSlug string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewOrchestrator creates a session orchestrator for one ritual
func NewOrchestrator(sessions SessionStore, resolver *ConfigResolver, oracle Oracle, ritualSlug string) *Orchestrator {
	return &Orchestrator{
		sessions:   sessions,
		resolver:   resolver,
		oracle:     oracle,
		ritualSlug: ritualSlug,
		locks:      make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the mutex serializing turns for one session id
func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[sessionID] = lock
	}
	return lock
}

// SubmitTurn processes one inbound user message and returns the reply the
// end user sees: a normal step reply, a crisis response, or an
// apology-and-close. Upstream failures never propagate as errors here; they
// collapse into a fail-closed DONE session.
func (o *Orchestrator) SubmitTurn(ctx context.Context, sessionID, userMessage, nextActivity string) (*models.TurnResponse, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	if m := GetMetrics(); m != nil {
		m.Turns.Inc()
		defer func() { m.TurnLatency.Observe(time.Since(start).Seconds()) }()
	}

	// 1. Load or create
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		session = models.NewSessionState(sessionID)
	}
	if session.Notes == nil {
		session.Notes = make(map[string]string)
	}

	// 2. First-write-wins capture
	if session.NextActivityRaw == "" && nextActivity != "" {
		session.NextActivityRaw = nextActivity
	}
	if session.UserFeelingRaw == "" {
		session.UserFeelingRaw = userMessage
	}

	log := logging.WithSession(sessionID, session.CurrentStep.String())

	cfg := o.resolver.Resolve(ctx, o.ritualSlug)

	// 3. Safety override: forces DONE and skips the oracle entirely
	if verdict := CheckForSafetyFlags(userMessage, cfg); verdict.Flagged {
		log.Info("safety flag raised, closing session")
		if m := GetMetrics(); m != nil {
			m.SafetyFlags.Inc()
		}
		session.CurrentStep = models.StepDone
		session.UpdatedAt = time.Now().UTC()
		if err := o.sessions.Put(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to persist session: %w", err)
		}
		return &models.TurnResponse{
			AssistantMessage: verdict.ResponseText,
			CurrentStep:      models.StepDone,
			Done:             true,
		}, nil
	}

	// Terminal sessions answer without consulting the oracle
	if session.CurrentStep.IsTerminal() {
		session.UpdatedAt = time.Now().UTC()
		if err := o.sessions.Put(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to persist session: %w", err)
		}
		return &models.TurnResponse{
			AssistantMessage: alreadyCompleteMessage,
			CurrentStep:      models.StepDone,
			Done:             true,
		}, nil
	}

	// 4-5. Build the prompt from the pre-update step and consult the oracle
	prompt := BuildPrompt(session.CurrentStep, session, userMessage, cfg)

	assistantMessage, nextStep, notesUpdate := o.consultOracle(ctx, log, prompt, session.CurrentStep)

	// 6. Merge notes (shallow, per-key overwrite)
	for name, note := range notesUpdate {
		session.Notes[name] = note
	}

	// 7. Apply transition and persist
	session.CurrentStep = nextStep
	session.UpdatedAt = time.Now().UTC()
	if err := o.sessions.Put(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	return &models.TurnResponse{
		AssistantMessage: assistantMessage,
		CurrentStep:      session.CurrentStep,
		Done:             session.CurrentStep.IsTerminal(),
	}, nil
}

// consultOracle runs the bounded oracle call and maps every failure mode to
// the fail-closed contract: transport failure becomes a fixed apology and
// DONE; unparsable output becomes the truncated raw text and DONE; an
// unknown nextStep literal keeps the current step.
func (o *Orchestrator) consultOracle(ctx context.Context, log *slog.Logger, prompt string, currentStep models.Step) (string, models.Step, map[string]string) {
	raw, err := o.oracle.Complete(ctx, prompt)
	if err != nil {
		log.Warn("oracle call failed, closing session", "error", err)
		if m := GetMetrics(); m != nil {
			m.OracleFailures.WithLabelValues("transport").Inc()
		}
		return apologyMessage, models.StepDone, nil
	}

	turn, err := parseOracleTurn(raw)
	if err != nil {
		log.Warn("oracle output unparsable, closing session", "error", err)
		if m := GetMetrics(); m != nil {
			m.OracleFailures.WithLabelValues("malformed").Inc()
		}
		return truncate(raw, maxSalvagedMessageLen), models.StepDone, nil
	}

	nextStep, ok := models.ParseStep(turn.NextStep)
	if !ok {
		// Transition choice is delegated to the oracle; the only local
		// enforcement is rejecting literals outside the six known values.
		log.Warn("oracle proposed unknown step, holding position", "proposed", turn.NextStep)
		if m := GetMetrics(); m != nil {
			m.OracleFailures.WithLabelValues("bad_step").Inc()
		}
		nextStep = currentStep
	}

	return turn.AssistantMessage, nextStep, turn.NotesUpdate
}

// parseOracleTurn extracts the required JSON object from the oracle's text.
// Best-effort salvage: markdown fences are stripped and the first balanced
// JSON object is extracted before unmarshalling.
func parseOracleTurn(raw string) (*models.OracleTurn, error) {
	jsonContent := extractJSONFromContent(raw)

	var turn models.OracleTurn
	if err := json.Unmarshal([]byte(jsonContent), &turn); err != nil {
		return nil, fmt.Errorf("failed to parse oracle JSON: %w", err)
	}
	if turn.AssistantMessage == "" {
		return nil, fmt.Errorf("oracle JSON missing assistantMessage")
	}
	if turn.NextStep == "" {
		return nil, fmt.Errorf("oracle JSON missing nextStep")
	}
	return &turn, nil
}

var jsonBlockRegex = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")

// extractJSONFromContent extracts JSON from content that may have markdown wrappers
func extractJSONFromContent(content string) string {
	content = strings.TrimSpace(content)

	if matches := jsonBlockRegex.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	start := strings.Index(content, "{")
	if start == -1 {
		return content
	}

	depth := 0
	for i := start; i < len(content); i++ {
		if content[i] == '{' {
			depth++
		} else if content[i] == '}' {
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	return content[start:]
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// GetSession returns the stored state for a session id, or nil if unknown
func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (*models.SessionState, error) {
	return o.sessions.Get(ctx, sessionID)
}

// DeleteSession removes a session. Exposed as an explicit operation; the
// turn path itself never deletes.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) error {
	if err := o.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	o.mu.Lock()
	delete(o.locks, sessionID)
	o.mu.Unlock()
	return nil
}
