package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/analytics"
	"github.com/ignite/campaign-engine/internal/api"
	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/risk"
	"github.com/ignite/campaign-engine/internal/schedule"
	"github.com/ignite/campaign-engine/internal/store"
	"github.com/ignite/campaign-engine/internal/trigger"
)

func main() {
	log.Println("[server] Campaign Automation Engine starting")

	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}
	if cfg.Database.URL == "" {
		log.Fatal("database.url (or DATABASE_URL) is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("[server] database connection established")

	// Cooldown state: Redis when configured, otherwise process memory.
	var cooldowns trigger.CooldownStore
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Printf("[server] Redis unreachable (%v), falling back to in-memory cooldowns", err)
		} else {
			cooldowns = trigger.NewRedisCooldowns(client)
			log.Println("[server] Redis cooldown store active")
		}
		defer client.Close()
	}

	// Composition root: every component is constructed here and injected;
	// nothing holds global state.
	st := store.New(db)
	scorer := risk.NewScorer(st)
	aggregator := analytics.NewAggregator()
	executor := campaign.NewLogExecutor(aggregator, cfg.Executor.CostPerMessage)

	registry := trigger.NewRegistry()
	trigger.SeedDefaultRules(registry)
	engine := trigger.NewEngine(registry, executor, cooldowns)
	// Cart reminder counts come from the engine's send history, so the
	// abandoned-cart rule can stop re-targeting after three reminders.
	scorer.SetReminderSource(engine)

	scheduler := schedule.NewScheduler(executor)
	scheduler.SetPollInterval(cfg.Scheduler.PollInterval())
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	monitor := risk.NewMonitor(scorer, engine, risk.MonitorConfig{
		Interval:           cfg.Risk.ScanInterval(),
		ChurnThreshold:     cfg.Risk.ChurnThreshold,
		CartHoursThreshold: cfg.Risk.CartHoursThreshold,
		InactiveDays:       cfg.Risk.InactiveDays,
		LowStockThreshold:  cfg.Risk.LowStockThreshold,
	})
	monitor.Start()

	service := api.NewService(registry, engine, scheduler, scorer, aggregator)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      service.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("[server] listening on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[server] shutdown signal received")

	// Stop producers first, then let the engine finish its queue, then
	// close the HTTP surface.
	monitor.Stop()
	scheduler.Stop()
	engine.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] HTTP shutdown error: %v", err)
	}
	log.Println("[server] stopped")
}
