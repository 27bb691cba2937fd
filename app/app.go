// Package app wires the analyst's components together and owns the
// background workers: the daily refresh, its cron scheduler, and the
// experiment lifecycle tracker.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parking-analyst/api"
	"parking-analyst/auth"
	"parking-analyst/cache"
	"parking-analyst/config"
	"parking-analyst/copilot"
	"parking-analyst/database"
	"parking-analyst/database/changes"
	dbcopilot "parking-analyst/database/copilot"
	"parking-analyst/database/experiments"
	dbguardrails "parking-analyst/database/guardrails"
	"parking-analyst/database/metrics"
	"parking-analyst/guardrails"
	"parking-analyst/llm"
	"parking-analyst/notifications"
	"parking-analyst/probe"
	"parking-analyst/realtime"
)

// App represents the main application
type App struct {
	config *config.Config

	db             *database.Database
	redis          *cache.RedisClient
	repo           *database.AnalystRepository
	webhookManager *notifications.WebhookManager
	broker         *realtime.Broker

	coordinator      *RefreshCoordinator
	refreshScheduler *RefreshScheduler
	tracker          *ExperimentTracker
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config: cfg,
	}
}

// Start starts the application
func (a *App) Start() error {
	// 1. Database Connection
	fmt.Println("🗄️  Connecting to database...")
	db, err := database.Connect(
		a.config.DatabaseHost,
		a.config.DatabasePort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	// 2. Redis Connection
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)
	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Caching disabled.")
	} else {
		a.redis = redisClient
	}

	// 3. Schema initialization
	a.repo = database.NewAnalystRepository(a.db)
	if err := a.repo.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 4. Repositories
	metricsRepo := metrics.NewRepository(a.db.DB())
	guardrailRepo := dbguardrails.NewRepository(a.db)
	changeRepo := changes.NewRepository(a.db)
	experimentRepo := experiments.NewRepository(a.db)
	copilotRepo := dbcopilot.NewRepository(a.db)

	// 5. LLM client if enabled
	var llmClient *llm.Client
	if a.config.LLM.Enabled {
		llmClient = llm.NewClient(a.config.LLM.Endpoint, a.config.LLM.APIKey, a.config.LLM.Model)
		log.Printf("✅ LLM narratives ENABLED (Model: %s)", a.config.LLM.Model)
	} else {
		log.Println("ℹ️  LLM narratives DISABLED")
	}

	// 6. Core services
	validator := guardrails.NewEvaluator(guardrailRepo, &a.config.Analyst)
	rateInference := NewRateInference(metricsRepo)
	scheduler := probe.NewScheduler(experimentRepo, rateInference, guardrailRepo, &a.config.Analyst)
	probeEval := probe.NewEvaluator(experimentRepo, metricsRepo, &a.config.Analyst)

	narrativeCache := cache.NewNarrativeCache(a.redis)
	insightGen := NewInsightGenerator(a.repo, metricsRepo, metricsRepo, llmClient, narrativeCache)
	recommender := NewExpertRecommender(a.repo, metricsRepo, rateInference, guardrailRepo, llmClient)

	// A typed nil inside the interface would defeat the advisor's nil checks
	var narrator copilot.Narrator
	if llmClient != nil {
		narrator = llmClient
	}
	advisor := copilot.NewAdvisor(copilotRepo, metricsRepo, metricsRepo, guardrailRepo, narrator)

	locker := database.NewAdvisoryMutex(a.db, database.DailyRefreshLockID)
	a.coordinator = NewRefreshCoordinator(a.repo, locker, insightGen, recommender)

	// 7. Notifications and realtime feed
	a.webhookManager = notifications.NewWebhookManager(a.repo, a.redis)
	a.broker = realtime.NewBroker()
	go a.broker.Run()

	// 8. Background workers
	a.tracker = NewExperimentTracker(experimentRepo)
	go a.tracker.Start()

	if a.config.Scheduler.Enabled {
		a.refreshScheduler = NewRefreshScheduler(a.coordinator, a.repo, &a.config.Scheduler, a.config.Auth.DevZoneIDs)
		if err := a.refreshScheduler.Start(); err != nil {
			return fmt.Errorf("refresh scheduler failed: %w", err)
		}
	} else {
		log.Println("ℹ️  Refresh scheduler DISABLED")
	}

	// 9. API Server
	verifier := auth.NewVerifier(&a.config.Auth)
	apiServer := api.NewServer(
		a.repo, changeRepo, experimentRepo, guardrailRepo, metricsRepo, copilotRepo,
		validator, scheduler, probeEval, advisor,
		a.webhookManager, a.broker, verifier,
	)
	apiServer.SetRefreshFunc(newRefreshFunc(a.coordinator, a.broker, a.webhookManager))

	go func() {
		if err := apiServer.Start(a.config.APIPort); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	// 10. Wait for interrupt and perform graceful shutdown
	return a.gracefulShutdown()
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown() error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		if a.tracker != nil {
			fmt.Println("🧪 Stopping experiment tracker...")
			a.tracker.Stop()
		}
		if a.refreshScheduler != nil {
			fmt.Println("⏰ Stopping refresh scheduler...")
			a.refreshScheduler.Stop()
		}

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}

		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
