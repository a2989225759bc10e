package services

import (
	"fmt"
	"sort"
	"strings"

	"ritualflow/internal/models"
)

// Built-in persona guidance used when the config's brand voice omits
// do/don't guideline lists.
const (
	defaultDoGuidance   = "Keep replies brief, warm, and concrete. One question at a time."
	defaultDontGuidance = "Do not lecture, diagnose, or rush the user."
)

// sessionCompleteNotice is returned for DONE sessions instead of a
// generation instruction. It is a no-op guard, not an error.
const sessionCompleteNotice = "[SESSION COMPLETE] This ritual session has finished. No further generation is needed."

// BuildPrompt renders the instruction payload for the generation oracle.
// Pure and deterministic: identical inputs always produce the identical
// string. DONE yields the no-op notice; a step with no entry in the config
// yields a structured error notice so the caller decides how to degrade.
func BuildPrompt(step models.Step, session *models.SessionState, userMessage string, cfg *models.RitualConfig) string {
	if step.IsTerminal() {
		return sessionCompleteNotice
	}

	stepCfg, ok := cfg.Steps[step.String()]
	if !ok {
		return fmt.Sprintf("[CONFIG ERROR] No configuration entry for step %q. The ritual configuration must define every active step.", step)
	}

	var b strings.Builder

	// Persona / tone
	b.WriteString("## Persona\n")
	if cfg.BrandVoice.Tone != "" {
		b.WriteString("Tone: " + cfg.BrandVoice.Tone + "\n")
	}
	if len(cfg.BrandVoice.Do) > 0 {
		b.WriteString("Do:\n")
		for _, item := range cfg.BrandVoice.Do {
			b.WriteString("- " + item + "\n")
		}
	} else {
		b.WriteString("Do: " + defaultDoGuidance + "\n")
	}
	if len(cfg.BrandVoice.Dont) > 0 {
		b.WriteString("Don't:\n")
		for _, item := range cfg.BrandVoice.Dont {
			b.WriteString("- " + item + "\n")
		}
	} else {
		b.WriteString("Don't: " + defaultDontGuidance + "\n")
	}

	// Step context
	b.WriteString("\n## Current step: " + step.String() + "\n")
	if stepCfg.Description != "" {
		b.WriteString("Purpose: " + stepCfg.Description + "\n")
	}
	if stepCfg.Script != "" {
		b.WriteString("Script: " + stepCfg.Script + "\n")
	}
	if len(stepCfg.MiniPrompts) > 0 {
		b.WriteString("Prompts you may draw on:\n")
		for _, p := range stepCfg.MiniPrompts {
			b.WriteString("- " + p + "\n")
		}
	}
	if stepCfg.PresenceNotes != "" {
		b.WriteString("Presence: " + stepCfg.PresenceNotes + "\n")
	}

	b.WriteString("\n## Session\n")
	if session.UserFeelingRaw != "" {
		b.WriteString("User's opening feeling: " + session.UserFeelingRaw + "\n")
	}
	if session.NextActivityRaw != "" {
		b.WriteString("Upcoming activity: " + session.NextActivityRaw + "\n")
	}
	if len(session.Notes) > 0 {
		b.WriteString("Notes from earlier steps:\n")
		for _, name := range sortedKeys(session.Notes) {
			b.WriteString("- " + name + ": " + session.Notes[name] + "\n")
		}
	}
	b.WriteString("Latest user message: " + userMessage + "\n")

	// Transition rules
	b.WriteString("\n## Step transitions\n")
	b.WriteString("The ritual moves through exactly this chain: ANSWER -> INTEND -> FOCUS -> FLOW -> BEGIN -> DONE.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Never move backward in the chain.\n")
	b.WriteString("- Never skip more than one step forward.\n")
	b.WriteString("- Stay on the current step until the user has genuinely completed it.\n")
	b.WriteString("- DONE is reachable only from BEGIN, or when the user clearly signals they are finished.\n")

	// Output contract
	b.WriteString("\n## Output format\n")
	b.WriteString("Respond with exactly one JSON object and nothing else - no prose before or after it:\n")
	b.WriteString(`{"assistantMessage": "<your reply to the user>", "nextStep": "<one of ANSWER|INTEND|FOCUS|FLOW|BEGIN|DONE>", "notesUpdate": {"<stepName>": "<one-line summary>"}}` + "\n")
	b.WriteString("notesUpdate is optional; include it only when you have a new one-line summary for a step.\n")

	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
