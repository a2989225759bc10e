package preflight

import (
	"log"

	"ritualflow/internal/config"
	"ritualflow/internal/database"
	"ritualflow/internal/models"
	"ritualflow/internal/services"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Checker performs pre-flight checks before server starts
type Checker struct {
	db       *database.DB
	cfg      *config.Config
	resolver *services.ConfigResolver
}

// NewChecker creates a new preflight checker
func NewChecker(db *database.DB, cfg *config.Config, resolver *services.ConfigResolver) *Checker {
	return &Checker{db: db, cfg: cfg, resolver: resolver}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkDatabaseConnection(),
		c.checkDatabaseSchema(),
		c.checkDefaultConfig(),
		c.checkOracleSettings(),
		c.checkAdminToken(),
	}

	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("\n📊 Pre-flight summary: %d passed, %d failed, %d warnings\n", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

// checkDatabaseConnection verifies database connectivity
func (c *Checker) checkDatabaseConnection() CheckResult {
	if err := c.db.Ping(); err != nil {
		return CheckResult{
			Name:    "Database Connection",
			Status:  "fail",
			Message: "Cannot connect to database",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Database Connection",
		Status:  "pass",
		Message: "Connected",
	}
}

// checkDatabaseSchema verifies the ritual tables exist
func (c *Checker) checkDatabaseSchema() CheckResult {
	var count int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM ritual_config_versions").Scan(&count); err != nil {
		return CheckResult{
			Name:    "Database Schema",
			Status:  "fail",
			Message: "ritual_config_versions table is missing or unreadable",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Database Schema",
		Status:  "pass",
		Message: "Schema present",
	}
}

// checkDefaultConfig verifies the bundled fallback covers every active step
func (c *Checker) checkDefaultConfig() CheckResult {
	cfg := c.resolver.Default()
	for _, step := range models.ActiveSteps() {
		if _, ok := cfg.Steps[step.String()]; !ok {
			return CheckResult{
				Name:    "Default Ritual Config",
				Status:  "fail",
				Message: "Bundled default config is missing step " + step.String(),
			}
		}
	}
	return CheckResult{
		Name:    "Default Ritual Config",
		Status:  "pass",
		Message: "Covers all five ritual steps",
	}
}

// checkOracleSettings verifies the generation oracle is reachable on paper
func (c *Checker) checkOracleSettings() CheckResult {
	if c.cfg.OracleBaseURL == "" {
		return CheckResult{
			Name:    "Generation Oracle",
			Status:  "fail",
			Message: "ORACLE_BASE_URL is not set",
		}
	}
	if c.cfg.OracleAPIKey == "" {
		return CheckResult{
			Name:    "Generation Oracle",
			Status:  "warning",
			Message: "ORACLE_API_KEY is not set - calls will likely be rejected",
		}
	}
	return CheckResult{
		Name:    "Generation Oracle",
		Status:  "pass",
		Message: "Configured (" + c.cfg.OracleModel + ")",
	}
}

// checkAdminToken warns when the config API is disabled
func (c *Checker) checkAdminToken() CheckResult {
	if c.cfg.AdminToken == "" {
		return CheckResult{
			Name:    "Admin API",
			Status:  "warning",
			Message: "ADMIN_TOKEN not set - configuration API is disabled",
		}
	}
	return CheckResult{
		Name:    "Admin API",
		Status:  "pass",
		Message: "Shared secret configured",
	}
}
