package preflight

import (
	"path/filepath"
	"testing"

	"ritualflow/internal/config"
	"ritualflow/internal/database"
	"ritualflow/internal/services"
)

func setupPreflightTest(t *testing.T) (*database.DB, *services.ConfigResolver) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test_preflight.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	resolver, err := services.NewConfigResolver(services.NewRitualStore(db), "")
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}

	return db, resolver
}

func TestRunAll_HealthySetupPasses(t *testing.T) {
	db, resolver := setupPreflightTest(t)

	cfg := &config.Config{
		OracleBaseURL: "https://api.openai.com/v1",
		OracleAPIKey:  "key",
		OracleModel:   "gpt-4o-mini",
		AdminToken:    "secret",
	}

	checker := NewChecker(db, cfg, resolver)
	results := checker.RunAll()

	if HasFailures(results) {
		for _, r := range results {
			if r.Status == "fail" {
				t.Errorf("Unexpected failure: %s - %s (%v)", r.Name, r.Message, r.Error)
			}
		}
	}
}

func TestCheckDatabaseConnection_Failure(t *testing.T) {
	db, resolver := setupPreflightTest(t)
	db.Close() // simulate an unreachable database

	checker := NewChecker(db, &config.Config{}, resolver)
	result := checker.checkDatabaseConnection()

	if result.Status != "fail" {
		t.Errorf("Expected status 'fail', got %q", result.Status)
	}
	if result.Error == nil {
		t.Error("Expected error to be set")
	}
}

func TestCheckOracleSettings(t *testing.T) {
	db, resolver := setupPreflightTest(t)

	checker := NewChecker(db, &config.Config{OracleBaseURL: ""}, resolver)
	if result := checker.checkOracleSettings(); result.Status != "fail" {
		t.Errorf("Expected fail without base URL, got %q", result.Status)
	}

	checker = NewChecker(db, &config.Config{OracleBaseURL: "http://localhost:11434/v1"}, resolver)
	if result := checker.checkOracleSettings(); result.Status != "warning" {
		t.Errorf("Expected warning without API key, got %q", result.Status)
	}
}

func TestCheckAdminToken_WarnsWhenUnset(t *testing.T) {
	db, resolver := setupPreflightTest(t)

	checker := NewChecker(db, &config.Config{}, resolver)
	if result := checker.checkAdminToken(); result.Status != "warning" {
		t.Errorf("Expected warning without admin token, got %q", result.Status)
	}
}

func TestCheckDefaultConfig_CoversSteps(t *testing.T) {
	db, resolver := setupPreflightTest(t)

	checker := NewChecker(db, &config.Config{}, resolver)
	if result := checker.checkDefaultConfig(); result.Status != "pass" {
		t.Errorf("Expected bundled default to pass, got %q: %s", result.Status, result.Message)
	}
}
