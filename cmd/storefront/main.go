package main

import (
	"context"
	"encoding/hex"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sogshop/storefront/config"
	"github.com/sogshop/storefront/internal/auth"
	"github.com/sogshop/storefront/internal/cart"
	handler "github.com/sogshop/storefront/internal/handler/http"
	"github.com/sogshop/storefront/internal/logger"
	"github.com/sogshop/storefront/internal/middleware"
	"github.com/sogshop/storefront/internal/notify"
	"github.com/sogshop/storefront/internal/payment"
	"github.com/sogshop/storefront/internal/repository"
	"github.com/sogshop/storefront/internal/repository/postgres"
	"github.com/sogshop/storefront/internal/service"
	"github.com/sogshop/storefront/internal/worker"
	"go.uber.org/zap"
)

const storeCurrency = "USD"

func main() {

	// create new config
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
	defer logger.Log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// initialize database
	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Log.Fatal("Error initializing database", zap.Error(err))
	}
	defer db.Close()

	// migrate database
	if err := db.Migrate(); err != nil {
		logger.Log.Fatal("Error migrating database", zap.Error(err))
	}

	// redis backs the rate limiter and the maintenance flag; both fail open
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	tokenKey, err := hex.DecodeString(cfg.AuthTokenKey)
	if err != nil || len(tokenKey) == 0 {
		logger.Log.Fatal("Error extracting token key", zap.Error(err))
	}
	token := auth.NewAuthToken(tokenKey)

	// payment gateways
	gateways := payment.NewRegistry(
		payment.NewStripeClient(cfg.StripeAPIURL, cfg.StripeSecretKey, storeCurrency),
		payment.NewPaystackClient(cfg.PaystackAPIURL, cfg.PaystackSecretKey, storeCurrency),
		payment.NewMobileMoneyClient(cfg.MobileMoneyAPIURL, cfg.MobileMoneyAPIKey, storeCurrency),
	)

	// notifications
	mailer := notify.NewRelayMailer(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom)
	dispatcher := notify.NewDispatcher(mailer, cfg.AdminEmail)

	// dependency injection
	// user
	userRepo := repository.NewUserRepository(db)
	userService := service.NewUserService(userRepo, token)
	userHandler := handler.NewUserHandler(userService)

	// catalog and cart
	productRepo := repository.NewProductRepository(db)
	validator := cart.NewValidator(productRepo)

	// orders
	orderRepo := repository.NewOrderRepository(db)
	promoRepo := repository.NewPromoRepository(db)
	orderService := service.NewOrderService(orderRepo)
	orderHandler := handler.NewOrderHandler(orderService)

	// checkout pipeline
	checkoutService := service.NewCheckoutService(orderRepo, promoRepo, validator, gateways, cfg.BaseURL)
	checkoutHandler := handler.NewCheckoutHandler(checkoutService)

	// webhook reconciliation
	reconciler := service.NewReconciler(orderRepo, promoRepo, dispatcher, gateways)
	webhookHandler := handler.NewWebhookHandler(reconciler, handler.WebhookSecrets{
		Stripe:      cfg.StripeWebhookSecret,
		Paystack:    cfg.PaystackSecretKey,
		MobileMoney: cfg.MobileMoneyWebhookSecret,
	})

	// pending-payment sweeper
	sweeper := worker.NewPaymentSweeper(reconciler)
	go sweeper.Run(ctx)

	maintenance := middleware.NewMaintenanceGuard(rdb, 10*time.Second)

	router := chi.NewRouter()

	router.Use(middleware.Logging(logger.Log))
	router.Use(middleware.Metrics())

	router.Get("/metrics", middleware.MetricsHandler().ServeHTTP)
	router.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Post("/api/user/register", userHandler.RegisterUser())
	router.Post("/api/user/login", userHandler.LoginUser())

	// webhooks bypass maintenance mode so in-flight payments still settle
	router.Post("/api/webhooks/stripe", webhookHandler.Stripe())
	router.Post("/api/webhooks/paystack", webhookHandler.Paystack())
	router.Post("/api/webhooks/mobile-money", webhookHandler.MobileMoney())

	router.Group(func(group chi.Router) {
		group.Use(maintenance.Middleware())
		group.Use(middleware.OptionalAuth(token))

		group.With(middleware.RateLimit(rdb, 10, time.Minute)).
			Post("/api/checkout/{method}", checkoutHandler.Checkout())
		group.Get("/api/orders/{id}", orderHandler.GetOrder())
	})

	// routes that require authentication
	router.Group(func(group chi.Router) {
		group.Use(middleware.RequireAuth(token))
		group.Get("/api/user/orders", orderHandler.ListUserOrders())
	})

	logger.Log.Info("Running server", zap.String("addr", cfg.ServerAddr))

	server := &http.Server{Addr: cfg.ServerAddr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Log.Fatal("Error starting server", zap.Error(err))
	}
}
