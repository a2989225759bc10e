package services

import (
	"strings"

	"ritualflow/internal/models"
)

// fallbackCrisisMessage is used when the config provides neither a crisis
// template nor a disclaimer.
const fallbackCrisisMessage = "It sounds like you're going through something serious. " +
	"Please reach out to someone you trust or a crisis support line right now - " +
	"you deserve real support from a real person."

// SafetyVerdict is the result of scanning a user message
type SafetyVerdict struct {
	Flagged      bool
	ResponseText string
}

// CheckForSafetyFlags scans user text against the configured crisis keywords.
// Case-insensitive substring match, single pass, first match wins - there is
// no severity ranking. On a match the response text is the crisis template
// and disclaimer concatenated, skipping empty parts.
func CheckForSafetyFlags(text string, cfg *models.RitualConfig) SafetyVerdict {
	if cfg == nil || len(cfg.Safety.Keywords) == 0 {
		return SafetyVerdict{}
	}

	lowered := strings.ToLower(text)
	for _, keyword := range cfg.Safety.Keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" {
			continue
		}
		if strings.Contains(lowered, keyword) {
			return SafetyVerdict{
				Flagged:      true,
				ResponseText: crisisResponse(cfg),
			}
		}
	}
	return SafetyVerdict{}
}

func crisisResponse(cfg *models.RitualConfig) string {
	var parts []string
	if cfg.Safety.CrisisTemplate != "" {
		parts = append(parts, cfg.Safety.CrisisTemplate)
	}
	if cfg.Safety.Disclaimer != "" {
		parts = append(parts, cfg.Safety.Disclaimer)
	}
	if len(parts) == 0 {
		return fallbackCrisisMessage
	}
	return strings.Join(parts, "\n\n")
}
