package models

import "fmt"

// RitualConfig is the versioned configuration payload that parameterizes
// tone, scripts and safety behavior for a ritual.
type RitualConfig struct {
	BrandVoice BrandVoice            `json:"brandVoice"`
	Safety     SafetyConfig          `json:"safety"`
	Steps      map[string]StepConfig `json:"steps"`
}

// BrandVoice controls the assistant's persona
type BrandVoice struct {
	Tone string   `json:"tone"`
	Do   []string `json:"do,omitempty"`
	Dont []string `json:"dont,omitempty"`
}

// SafetyConfig holds the crisis-keyword override settings
type SafetyConfig struct {
	Disclaimer     string   `json:"disclaimer,omitempty"`
	CrisisTemplate string   `json:"crisisTemplate,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
}

// StepConfig is the script for one ritual step
type StepConfig struct {
	Description   string   `json:"description"`
	Script        string   `json:"script"`
	MiniPrompts   []string `json:"miniPrompts,omitempty"`
	PresenceNotes string   `json:"presenceNotes,omitempty"`
}

// Validate checks that the payload carries every section the state machine
// depends on. Runs at the repository write boundary so a broken config is a
// rejected admin request, not a degraded chat session later.
func (c *RitualConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("config is required")
	}
	if c.BrandVoice.Tone == "" && len(c.BrandVoice.Do) == 0 && len(c.BrandVoice.Dont) == 0 {
		return fmt.Errorf("config.brandVoice is required")
	}
	if c.Safety.Disclaimer == "" && c.Safety.CrisisTemplate == "" && len(c.Safety.Keywords) == 0 {
		return fmt.Errorf("config.safety is required")
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("config.steps is required")
	}
	for _, step := range ActiveSteps() {
		if _, ok := c.Steps[step.String()]; !ok {
			return fmt.Errorf("config.steps is missing required step %q", step)
		}
	}
	return nil
}
