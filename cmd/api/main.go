package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/tobiloba/ajopool/internal/config"
	"github.com/tobiloba/ajopool/internal/cycle"
	"github.com/tobiloba/ajopool/internal/database"
	"github.com/tobiloba/ajopool/internal/group"
	"github.com/tobiloba/ajopool/internal/joinrequest"
	"github.com/tobiloba/ajopool/internal/membership"
	"github.com/tobiloba/ajopool/internal/notification"
	"github.com/tobiloba/ajopool/internal/payment"
	"github.com/tobiloba/ajopool/internal/slot"
	"github.com/tobiloba/ajopool/internal/worker"
	"github.com/tobiloba/ajopool/pkg/logging"
	mw "github.com/tobiloba/ajopool/pkg/middleware"
)

// @title AjoPool API
// @version 1.0
// @description Payment-driven rotating savings (ajo/esusu) group platform
// @BasePath /api/v1
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	logging.Setup()

	// Load configuration
	cfg := config.Load()

	// Initialize database connection
	db, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	slog.Info("connected to database")

	// Payment gateway
	paystack := payment.NewPaystack(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.GatewayTimeout)

	// Notification feature
	notificationRepo := notification.NewRepository(db)
	notificationService := notification.NewService(notificationRepo)
	notificationHandler := notification.NewHandler(notificationService)

	// Slot ledger
	slotLedger := slot.NewRepository(db)

	// Group feature
	groupRepo := group.NewRepository(db)

	// Membership feature
	cycleRepo := cycle.NewRepository(db)
	membershipRepo := membership.NewRepository(db)
	membershipService := membership.NewService(membershipRepo, groupRepo, cycleRepo)

	// Cycle feature
	cycleEngine := cycle.NewEngine(cycleRepo, groupRepo, membershipService, payment.NewTransferAdapter(paystack), notificationService, cfg.ServiceFeeBps)
	cycleHandler := cycle.NewHandler(cycleEngine)

	groupService := group.NewService(groupRepo, slotLedger, membershipService)
	groupHandler := group.NewHandler(groupService)

	// Join request feature
	joinRequestRepo := joinrequest.NewRepository(db)
	joinRequestService := joinrequest.NewService(joinRequestRepo, groupRepo, membershipService, slotLedger, notificationService, cfg.JoinRequestTTL)
	joinRequestHandler := joinrequest.NewHandler(joinRequestService)

	// Payment feature: one reconciler behind both the client-facing check
	// and the gateway webhook.
	paymentRepo := payment.NewRepository(db)
	reconciler := payment.NewReconciler(
		paymentRepo,
		paystack,
		payment.NewAdvisoryLock(db),
		groupRepo,
		slotLedger,
		membershipService,
		cycleEngine,
		joinRequestService,
		notificationService,
	)
	paymentService := payment.NewService(paymentRepo, groupRepo, membershipService, joinRequestService, reconciler)
	paymentHandler := payment.NewHandler(paymentService, paystack)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Gateway webhook: unauthenticated, trust comes from the HMAC signature.
	r.Post("/webhooks/paystack", paymentHandler.Webhook)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(cfg.JWTSecret))

		// Mount feature routers
		r.Mount("/groups", groupHandler.Routes())
		r.Mount("/join-requests", joinRequestHandler.Routes())
		r.Mount("/payments", paymentHandler.Routes())
		r.Mount("/cycles", cycleHandler.Routes())
		r.Mount("/notifications", notificationHandler.Routes())
	})

	// Background sweeper: retries stuck cycle evaluations and expires stale
	// join requests.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := worker.NewSweeper(cycleEngine, joinRequestService, cfg.SweepInterval)
	go sweeper.Run(ctx)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}
