package middleware

import (
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP) across all API endpoints
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Chat turn limits (per IP) - each turn costs an oracle call
	ChatTurnMax        int
	ChatTurnExpiration time.Duration

	// Admin endpoint limits (per IP)
	AdminMax        int
	AdminExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// Global: 120/min = 2 req/sec - generous for normal use
		GlobalAPIMax:        120,
		GlobalAPIExpiration: 1 * time.Minute,

		// Chat: 20/min - a ritual turn takes the user longer than 3s anyway
		ChatTurnMax:        20,
		ChatTurnExpiration: 1 * time.Minute,

		// Admin: 30/min - config edits are infrequent
		AdminMax:        30,
		AdminExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	cfg := DefaultRateLimitConfig()

	if v := getIntEnv("RATE_LIMIT_GLOBAL_MAX"); v > 0 {
		cfg.GlobalAPIMax = v
	}
	if v := getIntEnv("RATE_LIMIT_CHAT_MAX"); v > 0 {
		cfg.ChatTurnMax = v
	}
	if v := getIntEnv("RATE_LIMIT_ADMIN_MAX"); v > 0 {
		cfg.AdminMax = v
	}

	return cfg
}

func getIntEnv(key string) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return 0
}

// GlobalAPIRateLimiter is the first line of defense on all /api routes
func GlobalAPIRateLimiter(cfg *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        cfg.GlobalAPIMax,
		Expiration: cfg.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, slow down",
			})
		},
	})
}

// ChatTurnRateLimiter bounds oracle spend per client IP
func ChatTurnRateLimiter(cfg *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        cfg.ChatTurnMax,
		Expiration: cfg.ChatTurnExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many turns, take a breath",
			})
		},
	})
}

// AdminRateLimiter bounds the configuration API
func AdminRateLimiter(cfg *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        cfg.AdminMax,
		Expiration: cfg.AdminExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many admin requests",
			})
		},
	})
}
