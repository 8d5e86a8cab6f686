package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"delified/internal/auth"
	"delified/internal/config"
	"delified/internal/database"
	"delified/internal/database/migrations"
	"delified/internal/kafka"
	"delified/internal/logger"
	"delified/internal/payment/services"
	"delified/internal/sse"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
)

const sweepInterval = time.Minute

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection error: %w", err)
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client, nil
}

func prepareSchema(ctx context.Context, cfg config.DatabaseConfig, db *bun.DB, log *logger.Logger) error {
	if !cfg.AutoMigrate {
		log.Info("MIGRATE", "Automatic migrations disabled")
		return nil
	}
	if cfg.Driver == "sqlite" {
		return database.CreateSchema(ctx, db)
	}
	// The runner is not closed here: closing it would close db as well.
	return migrations.NewRunner(db, log).MigrateUp()
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Delified initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if err := prepareSchema(ctx, cfg.Database, bunDB, log); err != nil {
		log.Fatal("MIGRATE", err.Error())
	}

	redisClient, err := connectRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer redisClient.Close()

	broker := sse.NewRegistrationBroker()
	var events kafka.Publisher = &kafka.LocalPublisher{Broker: broker}
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, kafka.AllTopics(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}

		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		events = producer

		// Each instance needs its own group so every dashboard stream sees every event.
		groupID := fmt.Sprintf("%s-%s", cfg.Kafka.GroupID, uuid.NewString())
		consumer := kafka.NewRegistrationConsumer(cfg.Kafka.Brokers, groupID, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx, broker); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Registration consumer stopped: %v", err))
			}
		}()
		log.Info("KAFKA", fmt.Sprintf("Kafka enabled with brokers %v", cfg.Kafka.Brokers))
	} else {
		log.Info("KAFKA", "Kafka disabled, registration events stay in process")
	}

	var verifiers []auth.Verifier
	if cfg.Auth.OIDCIssuer != "" {
		oidcVerifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer)
		if err != nil {
			log.Fatal("AUTH", fmt.Sprintf("Failed to set up OIDC verifier: %v", err))
		}
		verifiers = append(verifiers, oidcVerifier)
		log.Info("AUTH", fmt.Sprintf("Accepting OIDC tokens from %s", cfg.Auth.OIDCIssuer))
	}

	var processor services.Processor = services.ManualProcessor{}
	if cfg.Payment.StripeSecretKey != "" {
		processor = services.NewStripeService(cfg.Payment.StripeSecretKey, log)
	} else {
		log.Warn("PAYMENT", "STRIPE_SECRET_KEY not set, payments settle immediately")
	}

	a, err := buildApp(deps{
		Config:    cfg,
		DB:        bunDB,
		Redis:     redisClient,
		Events:    events,
		Broker:    broker,
		Processor: processor,
		Verifiers: verifiers,
		Logger:    log,
	})
	if err != nil {
		log.Fatal("APP", err.Error())
	}

	if err := a.Auth.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		log.Fatal("AUTH", fmt.Sprintf("Failed to provision admin account: %v", err))
	}

	a.runBackground(ctx, sweepInterval, log)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Delified running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Delified shutdown complete")
	}
}
