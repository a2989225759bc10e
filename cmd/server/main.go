package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"ritualflow/internal/config"
	"ritualflow/internal/database"
	"ritualflow/internal/handlers"
	"ritualflow/internal/jobs"
	"ritualflow/internal/logging"
	"ritualflow/internal/middleware"
	"ritualflow/internal/preflight"
	"ritualflow/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting RitualFlow Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Ritual: %s)", cfg.Port, cfg.DefaultRitualSlug)

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Initialize services
	ritualStore := services.NewRitualStore(db)

	resolver, err := services.NewConfigResolver(ritualStore, cfg.DefaultConfigPath)
	if err != nil {
		log.Fatalf("❌ Failed to load ritual configuration: %v", err)
	}
	log.Println("✅ Config resolver initialized")

	// Session store: Redis when configured, in-memory otherwise
	var sessionStore services.SessionStore
	var redisStore *services.RedisSessionStore
	var memoryStore *services.MemorySessionStore

	if cfg.RedisURL != "" {
		log.Println("🔗 Connecting to Redis...")
		redisStore, err = services.NewRedisSessionStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisStore.Close()
		sessionStore = redisStore
		log.Println("✅ Redis session store initialized")
	} else {
		memoryStore = services.NewMemorySessionStore()
		sessionStore = memoryStore
		log.Println("⚠️  REDIS_URL not set - sessions are in-memory and volatile")
	}

	oracle := services.NewChatCompletionOracle(cfg.OracleBaseURL, cfg.OracleAPIKey, cfg.OracleModel, cfg.OracleTimeout)
	orchestrator := services.NewOrchestrator(sessionStore, resolver, oracle, cfg.DefaultRitualSlug)

	// Initialize Prometheus metrics
	services.InitMetrics()
	log.Println("✅ Prometheus metrics initialized")

	// Run preflight checks
	checker := preflight.NewChecker(db, cfg, resolver)
	results := checker.RunAll()
	if preflight.HasFailures(results) {
		log.Println("\n❌ Pre-flight checks failed. Please fix the issues above before starting the server.")
		os.Exit(1)
	}
	log.Println("✅ All pre-flight checks passed")

	// Optional idle-session janitor (memory store only; Redis uses key TTL)
	if cfg.JanitorEnabled && memoryStore != nil {
		janitor, err := jobs.NewSessionJanitor(memoryStore, cfg.SessionTTL, cfg.JanitorInterval)
		if err != nil {
			log.Fatalf("❌ Failed to create session janitor: %v", err)
		}
		if err := janitor.Start(); err != nil {
			log.Fatalf("❌ Failed to start session janitor: %v", err)
		}
		defer janitor.Shutdown()
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "RitualFlow v1.0",
		ReadTimeout:  cfg.OracleTimeout * 2, // a turn is bounded by one oracle call
		WriteTimeout: cfg.OracleTimeout * 2,
		BodyLimit:    1 * 1024 * 1024, // chat messages and config payloads are small
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("ritualflow")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Rate limiting
	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Chat=%d/min, Admin=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.ChatTurnMax,
		rateLimitConfig.AdminMax,
	)

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️  ALLOWED_ORIGINS not set, using development defaults")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", allowedOrigins)

	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Handlers
	chatHandler := handlers.NewChatHandler(orchestrator)
	adminHandler := handlers.NewRitualAdminHandler(ritualStore, resolver)
	healthHandler := handlers.NewHealthHandler(db, redisStore)

	// Routes
	app.Get("/health", healthHandler.Handle)

	chat := app.Group("/api/chat")
	chat.Post("/turn", middleware.ChatTurnRateLimiter(rateLimitConfig), chatHandler.SubmitTurn)
	chat.Get("/session/:id", chatHandler.GetSession)
	chat.Delete("/session/:id", chatHandler.DeleteSession)

	admin := app.Group("/api/admin", middleware.AdminRateLimiter(rateLimitConfig), middleware.AdminAuth(cfg))
	admin.Post("/rituals/:slug/versions", adminHandler.CreateVersion)
	admin.Get("/rituals/:slug/versions", adminHandler.ListVersions)
	admin.Get("/rituals/:slug/active", adminHandler.GetActiveConfig)
	admin.Post("/versions/:id/activate", adminHandler.ActivateVersion)
	admin.Post("/versions/:id/duplicate", adminHandler.DuplicateVersion)

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️  Shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	if strings.Contains(cfg.Port, ":") {
		addr = cfg.Port
	}
	log.Printf("🌐 Server listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}

	log.Println("👋 Server stopped")
}
