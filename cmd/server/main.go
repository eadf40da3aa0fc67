// Package main - LeadRelay application entry point.
// Wires the hexagonal layers together: config, storage, gateways,
// core services, and HTTP transport.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"leadrelay/internal/adapters/gateway"
	"leadrelay/internal/adapters/handler"
	"leadrelay/internal/adapters/repository"
	"leadrelay/internal/adapters/websocket"
	"leadrelay/internal/config"
	"leadrelay/internal/core/services"
)

func main() {
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// 1. Load Configuration from Environment
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	slog.Info("config loaded",
		"db_host", cfg.DB.Host,
		"db_port", cfg.DB.Port,
		"redis_addr", cfg.Redis.Addr,
	)

	// 2. Connect to MariaDB with Retry Logic
	// Docker containers may not be ready immediately, so we retry
	db := connectMariaDB(cfg.DB, 5, 2*time.Second)
	defer db.Close()
	slog.Info("MariaDB connection established")

	// 3. Connect to Redis with Retry Logic
	rdb := connectRedis(cfg.Redis, 5, 2*time.Second)
	defer rdb.Close()
	slog.Info("Redis connection established")

	// 4. Repository adapters (implementing ports)
	mariadbRepo := repository.NewMariaDBRepository(db, "Default Company")
	redisRepo := repository.NewRedisRepository(rdb)

	// 5. Outbound gateways
	waClient := gateway.NewWhatsAppClient(
		cfg.WhatsApp.AccessToken,
		cfg.WhatsApp.PhoneNumberID,
		cfg.WhatsApp.APIVersion,
	)
	responder := gateway.NewOpenAIResponder(cfg.OpenAI.APIKey, cfg.OpenAI.Model)

	// 6. Real-time event hub for the dashboard
	eventHub := websocket.NewEventHub(cfg.App.WSSecret)
	go eventHub.Run()

	// 7. Core services (business logic)
	autopilot := services.NewAutopilot()
	tracker := services.NewTracker(mariadbRepo, mariadbRepo, eventHub, services.DefaultKeywords())
	orchestrator := services.NewOrchestrator(
		mariadbRepo, // MessageLedger
		responder,
		waClient,
		mariadbRepo, // StatsRepository
		tracker,
		eventHub,
		services.Persona{
			SystemPrompt:  cfg.Persona.SystemPrompt,
			BookingLink:   cfg.Persona.BookingLink,
			FallbackReply: cfg.Persona.FallbackReply,
		},
	)
	dispatcher := services.NewDispatcher(
		mariadbRepo, // CompanyRepository
		mariadbRepo, // UserRepository
		mariadbRepo, // ConversationRepository
		mariadbRepo, // MessageLedger
		mariadbRepo, // StatsRepository
		redisRepo,   // DedupCache
		mariadbRepo, // WebhookRepository
		orchestrator,
		eventHub,
		autopilot,
	)

	// 8. HTTP handlers
	webhookHandler := handler.NewWebhookHandler(
		dispatcher,
		cfg.WhatsApp.AppSecret,
		cfg.WhatsApp.VerifyToken,
	)
	dashboardHandler := handler.NewDashboardHandler(
		mariadbRepo, // CompanyRepository
		mariadbRepo, // ConversationRepository
		mariadbRepo, // MessageLedger
		mariadbRepo, // StatsRepository
		autopilot,
	)

	// Start Watchdog Service (Self-Healing Auto-Purge)
	services.RunWatchdog(db)

	// 9. Start HTTP Server
	startHTTPServer(cfg.App.Port, webhookHandler, dashboardHandler, eventHub)
}

// connectMariaDB attempts to connect to MariaDB with retry logic.
// Retries are necessary because Docker containers may still be initializing.
func connectMariaDB(cfg config.DBConfig, maxRetries int, retryDelay time.Duration) *sql.DB {
	dsn := cfg.GetDSN()

	var db *sql.DB
	var err error

	for i := 1; i <= maxRetries; i++ {
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			log.Printf("  Attempt %d/%d: Failed to configure DB driver: %v", i, maxRetries, err)
			time.Sleep(retryDelay)
			continue
		}

		// Test the connection with Ping
		err = db.Ping()
		if err == nil {
			return db
		}

		log.Printf("  Attempt %d/%d: Cannot ping MariaDB: %v", i, maxRetries, err)
		db.Close()

		if i < maxRetries {
			time.Sleep(retryDelay)
		}
	}

	log.Fatalf("Cannot connect to MariaDB after %d attempts: %v", maxRetries, err)
	return nil // unreachable
}

// connectRedis attempts to connect to Redis with retry logic
func connectRedis(cfg config.RedisConfig, maxRetries int, retryDelay time.Duration) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})

	ctx := context.Background()
	var err error

	for i := 1; i <= maxRetries; i++ {
		err = rdb.Ping(ctx).Err()
		if err == nil {
			return rdb
		}

		log.Printf("  Attempt %d/%d: Cannot ping Redis: %v", i, maxRetries, err)

		if i < maxRetries {
			time.Sleep(retryDelay)
		}
	}

	log.Fatalf("Cannot connect to Redis after %d attempts: %v", maxRetries, err)
	return nil // unreachable
}

// startHTTPServer mounts all routes and blocks serving HTTP.
func startHTTPServer(
	port int,
	webhookHandler *handler.WebhookHandler,
	dashboardHandler *handler.DashboardHandler,
	eventHub *websocket.EventHub,
) {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	// Health check
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	// WhatsApp webhook endpoints
	r.Get("/webhook", webhookHandler.HandleVerify)
	r.Post("/webhook", webhookHandler.HandleEvent)

	// Dashboard API
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", dashboardHandler.GetStats)
		r.Get("/conversations", dashboardHandler.GetConversations)
		r.Get("/conversations/{id}/messages", dashboardHandler.GetConversationMessages)
		r.Post("/conversations/{id}/close", dashboardHandler.CloseConversation)
		r.Get("/messages/{id}/responses", dashboardHandler.GetMessageResponses)
		r.Get("/system/metrics", dashboardHandler.GetSystemMetrics)
		r.Post("/autopilot/pause", dashboardHandler.PauseAutopilot)
		r.Post("/autopilot/resume", dashboardHandler.ResumeAutopilot)
		r.Get("/autopilot/status", dashboardHandler.GetAutopilotStatus)
	})

	// Real-time conversation events for the dashboard
	r.Get("/ws/events", eventHub.ServeWS)

	addr := fmt.Sprintf(":%d", port)
	slog.Info("HTTP server listening", "addr", addr)

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
