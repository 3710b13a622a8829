package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gateway-service/internal/cache"
	"gateway-service/internal/config"
	"gateway-service/internal/encryption"
	"gateway-service/internal/events"
	"gateway-service/internal/gateway"
	"gateway-service/internal/handlers"
	"gateway-service/internal/metrics"
	"gateway-service/internal/middleware"
	"gateway-service/internal/models"
	"gateway-service/internal/repository"
	"gateway-service/internal/services"
	"gateway-service/internal/subscribers"
	"gateway-service/internal/tracing"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const serviceVersion = "1.0.0"

// idempotencyTTL is how long an Idempotency-Key stays claimed
const idempotencyTTL = 24 * time.Hour

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)
	entry := log.WithField("service", "gateway-service")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		Enabled:        cfg.OTelEnabled,
		Endpoint:       cfg.OTelEndpoint,
		Insecure:       !cfg.IsProduction(),
		ServiceName:    "gateway-service",
		ServiceVersion: serviceVersion,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize tracer")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Failed to shutdown tracer")
		}
	}()

	db, err := connectDatabase(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	log.Info("✓ Connected to database")

	if err := db.AutoMigrate(
		&models.GatewaySetting{},
		&models.GatewayLog{},
		&models.GatewayNotification{},
	); err != nil {
		log.WithError(err).Warn("Auto-migration failed")
	}

	encryptor, err := encryption.NewSettingsEncryptor(ctx, encryption.Config{
		GCPProjectID: cfg.GCPProjectID,
		SecretName:   cfg.SettingsEncryptionSecret,
		LocalKey:     cfg.SettingsEncryptionKey,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize settings encryption")
	}

	// Redis is optional; without it notifications are not de-duplicated
	redisClient := cache.NewRedisClient(ctx, cfg.RedisURL, entry)
	if redisClient != nil {
		defer redisClient.Close()
	}
	notificationCache := cache.NewNotificationCache(redisClient, cfg.NotificationDedupeTTL)
	idempotencyStore := cache.NewIdempotencyStore(redisClient, idempotencyTTL)

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)

	repo := repository.NewGatewayRepository(db)

	factory := gateway.NewFactory(gateway.Options{
		Transport: gateway.NewHTTPTransport(cfg.GatewayHTTPTimeout, entry.WithField("component", "transport")),
		Log:       entry,
	})

	settingsService := services.NewSettingsService(repo, factory, encryptor, entry)
	paymentService := services.NewPaymentService(services.PaymentServiceConfig{
		Factory:         factory,
		Settings:        settingsService,
		Logs:            repo,
		Metrics:         recorder,
		CallbackBaseURL: cfg.CallbackBaseURL,
		Logger:          entry,
	})

	callbackCfg := services.CallbackServiceConfig{
		Factory:       factory,
		Settings:      settingsService,
		Logs:          repo,
		Notifications: repo,
		Deduper:       notificationCache,
		Metrics:       recorder,
		Logger:        entry,
	}

	publisher, err := events.NewPublisher(cfg.NATSURL, log)
	if err != nil {
		log.WithError(err).Warn("Failed to initialize events publisher (payment events won't be published)")
	} else {
		defer publisher.Close()
		callbackCfg.Publisher = publisher
		log.Info("✓ NATS events publisher initialized")
	}
	callbackService := services.NewCallbackService(callbackCfg)

	settingsSync, err := subscribers.NewSettingsSyncSubscriber(cfg.NATSURL, settingsService, log)
	if err != nil {
		log.WithError(err).Warn("Failed to initialize settings sync subscriber (payment config events won't be applied)")
	} else {
		if err := settingsSync.Start(ctx); err != nil {
			log.WithError(err).Warn("Settings sync subscriber failed to start")
		} else {
			log.Info("✓ Settings sync subscriber started")
		}
		defer settingsSync.Stop()
	}

	rbacMiddleware := rbac.NewMiddlewareWithURL(cfg.StaffServiceURL, nil)

	rateLimits := middleware.NewGatewayRateLimits(cfg.CallbackRateLimit)
	defer rateLimits.Stop()

	router := setupRouter(cfg, routerDeps{
		gateways:    handlers.NewGatewayHandler(settingsService),
		payments:    handlers.NewPaymentHandler(paymentService),
		callbacks:   handlers.NewCallbackHandler(callbackService),
		activity:    handlers.NewActivityHandler(repo),
		rbac:        rbacMiddleware,
		rateLimits:  rateLimits,
		idempotency: idempotencyStore,
		log:         log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Infof("Gateway service starting on port %s (env: %s)", cfg.Port, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	log.Info("Server shutdown complete")
}

// connectDatabase establishes a connection to the database
func connectDatabase(cfg *config.Config) (*gorm.DB, error) {
	// Silent in production so settings values never reach the SQL log
	logLevel := logger.Info
	if cfg.IsProduction() {
		logLevel = logger.Silent
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

type routerDeps struct {
	gateways    *handlers.GatewayHandler
	payments    *handlers.PaymentHandler
	callbacks   *handlers.CallbackHandler
	activity    *handlers.ActivityHandler
	rbac        *rbac.Middleware
	rateLimits  *middleware.GatewayRateLimits
	idempotency middleware.IdempotencyReserver
	log         *logrus.Logger
}

// setupRouter configures the HTTP router
func setupRouter(cfg *config.Config, d routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(middleware.SecurityHeaders())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.CORSAllowedOrigins
	router.Use(middleware.CORS(corsConfig))

	router.Use(middleware.ValidateRequest())
	router.Use(middleware.TenantMiddleware())
	router.Use(middleware.AuditMiddleware(middleware.NewLogrusAuditLogger(d.log)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "gateway-service",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Processor notifications and payer returns. Public; the adapters
	// authenticate each notification. Some processors notify with GET.
	callbackLimit := middleware.RateLimitMiddleware(d.rateLimits.Callback, "ip")
	callbacks := router.Group("/callback", callbackLimit)
	{
		callbacks.POST("/:gateway", d.callbacks.Notify)
		callbacks.GET("/:gateway", d.callbacks.Notify)
	}
	returns := router.Group("/return", callbackLimit)
	{
		returns.POST("/:gateway", d.callbacks.Return)
		returns.GET("/:gateway", d.callbacks.Return)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequireTenantID())
	v1.Use(middleware.RateLimitMiddleware(d.rateLimits.API, "tenant"))
	v1.Use(middleware.IdempotencyMiddleware(d.idempotency, d.log))
	{
		gateways := v1.Group("/gateways")
		{
			gateways.GET("", d.rbac.RequirePermission(rbac.PermissionPaymentsGatewayRead), d.gateways.ListGateways)
			gateways.GET("/:gateway/settings", d.rbac.RequirePermission(rbac.PermissionPaymentsGatewayRead), d.gateways.GetSettings)
			gateways.PUT("/:gateway/settings", d.rbac.RequirePermission(rbac.PermissionPaymentsGatewayManage), d.gateways.UpdateSettings)
			gateways.GET("/:gateway/logs", d.rbac.RequirePermission(rbac.PermissionPaymentsRead), d.activity.ListLogs)

			// Billing-core and checkout routes (callers are services, not staff)
			chargeLimit := middleware.RateLimitMiddleware(d.rateLimits.Charge, "tenant")
			gateways.POST("/:gateway/charge", chargeLimit, d.payments.Charge)
			gateways.POST("/:gateway/authorize", chargeLimit, d.payments.Authorize)
			gateways.POST("/:gateway/capture", d.payments.Capture)
			gateways.POST("/:gateway/build-process", d.payments.BuildProcess)

			// Money-returning operations - require payments:refund permission
			refundLimit := middleware.RateLimitMiddleware(d.rateLimits.Refund, "tenant")
			gateways.POST("/:gateway/void", d.rbac.RequirePermission(rbac.PermissionPaymentsRefund), d.payments.Void)
			gateways.POST("/:gateway/refund", d.rbac.RequirePermission(rbac.PermissionPaymentsRefund), refundLimit, d.payments.Refund)
		}

		v1.GET("/notifications", d.rbac.RequirePermission(rbac.PermissionPaymentsRead), d.activity.ListNotifications)
	}

	return router
}
