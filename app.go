package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"delified/internal/admin"
	"delified/internal/admin/admin_api"
	"delified/internal/auth"
	"delified/internal/auth/auth_api"
	"delified/internal/badge"
	"delified/internal/community"
	"delified/internal/community/community_api"
	communitydb "delified/internal/community/db"
	"delified/internal/config"
	"delified/internal/kafka"
	"delified/internal/logger"
	"delified/internal/muns"
	mundb "delified/internal/muns/db"
	"delified/internal/muns/mun_api"
	handlers "delified/internal/payment/handler"
	paymentredis "delified/internal/payment/redis"
	"delified/internal/payment/services"
	"delified/internal/payment/storage"
	"delified/internal/registrations"
	regdb "delified/internal/registrations/db"
	regredis "delified/internal/registrations/redis"
	"delified/internal/registrations/registration_api"
	"delified/internal/sse"
	userdb "delified/internal/users/db"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"
)

// app holds everything main needs after wiring: the router plus the
// pieces that run in the background.
type app struct {
	Router   http.Handler
	Auth     *auth.Service
	Checkout *services.CheckoutService
	Holds    *paymentredis.Holds
	Broker   *sse.RegistrationBroker
}

type deps struct {
	Config    *config.Config
	DB        *bun.DB
	Redis     *redis.Client
	Events    kafka.Publisher
	Broker    *sse.RegistrationBroker
	Processor services.Processor
	Verifiers []auth.Verifier
	Logger    *logger.Logger
}

func buildApp(d deps) (*app, error) {
	cfg := d.Config
	log := d.Logger

	badges, err := badge.NewGenerator(cfg.BadgeSecret())
	if err != nil {
		return nil, fmt.Errorf("failed to create badge generator: %w", err)
	}

	users := &userdb.DB{Bun: d.DB}
	munStore := &mundb.DB{Bun: d.DB}
	regStore := &regdb.DB{Bun: d.DB}

	authService := auth.NewService(
		users,
		auth.NewRedisSessionStore(d.Redis),
		auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL),
		log,
	)
	authn := auth.NewAuthenticator(log, append([]auth.Verifier{authService}, d.Verifiers...)...)

	munService := muns.NewMUNService(munStore, log, cfg.Payment.Currency)
	regService := registrations.NewRegistrationService(
		regStore,
		munStore,
		regredis.NewRedis(d.Redis, cfg.Checkout.RegistrationLockTimeout, log),
		d.Events,
		badges,
		log,
	)

	holds := paymentredis.NewHolds(d.Redis, cfg.Checkout.HoldDuration, log)
	checkout := services.NewCheckoutService(
		storage.NewBunStore(d.DB),
		regStore,
		d.Processor,
		holds,
		d.Events,
		cfg.Checkout.HoldDuration,
		log,
	)
	checkout.WebhookSecret = cfg.Payment.StripeWebhookSecret
	regService.Payments = checkout

	posts := community.NewCommunityService(&communitydb.DB{Bun: d.DB}, d.Events, log)
	adminService := admin.NewService(admin.NewDB(d.DB), users, munStore, munService, regStore, log)

	authHandler := auth_api.NewHandler(authService, log, cfg.Auth.CookieSecure)
	munHandler := mun_api.NewHandler(munService, log)
	regHandler := registration_api.NewHandler(regService, d.Broker, log)
	paymentHandler := handlers.NewPaymentHandler(checkout, log)
	postHandler := community_api.NewHandler(posts, log)
	adminHandler := admin_api.NewHandler(adminService, posts, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", authHandler.Routes)
		r.Route("/muns", func(r chi.Router) {
			munHandler.Routes(r, authn)
			regHandler.MUNRoutes(r, authn)
			paymentHandler.MUNRoutes(r, authn)
		})
		r.Route("/registrations", func(r chi.Router) { regHandler.Routes(r, authn) })
		r.Route("/payments", func(r chi.Router) { paymentHandler.Routes(r, authn) })
		r.Route("/community/posts", func(r chi.Router) { postHandler.Routes(r, authn) })
		r.Route("/admin", func(r chi.Router) { adminHandler.Routes(r, authn) })
	})
	log.Info("ROUTER", "Routes registered under /api")

	return &app{
		Router:   r,
		Auth:     authService,
		Checkout: checkout,
		Holds:    holds,
		Broker:   d.Broker,
	}, nil
}

// requestLogger reports each request once it completes.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}

// runBackground starts the hold watcher and the stale-payment sweeper. Both
// stop when ctx is cancelled.
func (a *app) runBackground(ctx context.Context, sweepInterval time.Duration, log *logger.Logger) {
	go func() {
		if err := a.Holds.WatchExpired(ctx, a.Checkout.OnHoldExpired); err != nil {
			log.Warn("REDIS", fmt.Sprintf("Hold watcher stopped: %v", err))
		}
	}()
	go a.Checkout.RunSweeper(ctx, sweepInterval)
}
