package models

import (
	"strings"
	"testing"
)

func validConfig() *RitualConfig {
	steps := make(map[string]StepConfig)
	for _, step := range ActiveSteps() {
		steps[step.String()] = StepConfig{Description: "d", Script: "s"}
	}
	return &RitualConfig{
		BrandVoice: BrandVoice{Tone: "warm"},
		Safety:     SafetyConfig{Keywords: []string{"hopeless"}},
		Steps:      steps,
	}
}

func TestRitualConfigValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Expected valid config to pass, got %v", err)
	}
}

func TestRitualConfigValidate_Nil(t *testing.T) {
	var cfg *RitualConfig
	if err := cfg.Validate(); err == nil {
		t.Error("Expected nil config to fail validation")
	}
}

func TestRitualConfigValidate_MissingSections(t *testing.T) {
	cfg := validConfig()
	cfg.BrandVoice = BrandVoice{}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "brandVoice") {
		t.Errorf("Expected brandVoice error, got %v", err)
	}

	cfg = validConfig()
	cfg.Safety = SafetyConfig{}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "safety") {
		t.Errorf("Expected safety error, got %v", err)
	}

	cfg = validConfig()
	cfg.Steps = nil
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "steps") {
		t.Errorf("Expected steps error, got %v", err)
	}
}

func TestRitualConfigValidate_MissingRequiredStep(t *testing.T) {
	for _, step := range ActiveSteps() {
		cfg := validConfig()
		delete(cfg.Steps, step.String())
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), step.String()) {
			t.Errorf("Expected error naming missing step %s, got %v", step, err)
		}
	}
}
