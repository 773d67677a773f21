package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/tappay/internal/auth"
	"github.com/BradenHooton/tappay/internal/background"
	"github.com/BradenHooton/tappay/internal/config"
	"github.com/BradenHooton/tappay/internal/database"
	"github.com/BradenHooton/tappay/internal/handlers"
	middlewareCustom "github.com/BradenHooton/tappay/internal/middleware"
	"github.com/BradenHooton/tappay/internal/models"
	"github.com/BradenHooton/tappay/internal/repositories"
	"github.com/BradenHooton/tappay/internal/risk"
	"github.com/BradenHooton/tappay/internal/routes"
	"github.com/BradenHooton/tappay/internal/services"
	pkgauth "github.com/BradenHooton/tappay/pkg/auth"
	pkghttp "github.com/BradenHooton/tappay/pkg/http"
	pkglogger "github.com/BradenHooton/tappay/pkg/logger"
	"github.com/BradenHooton/tappay/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		pkglogger.RedactedAttr("db_host", cfg.Database.Host, cfg.Server.Env),
	)

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Event publishing; the fallback only logs when no broker is configured
	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	if cfg.Messaging.AMQPURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.Messaging.AMQPURL, logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, events will only be logged", slog.Any("error", err))
		} else {
			publisher = producer
		}
	}
	defer publisher.Close()

	opsReporter := background.NewOpsErrorReporter(publisher, cfg.Messaging.OpsExchange, cfg.Messaging.OpsBufferSize, logger)

	// Per-user lock: Redis when configured so that several instances serialize together
	var locker services.UserLocker = services.NewLocalUserLocker()
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = client.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		locker = services.NewRedisUserLocker(client, cfg.Redis.KeyPrefix, cfg.Redis.LockTTL, logger)
		logger.Info("using redis user lock")
	}

	var alerts services.AlertNotifier
	if cfg.Alerts.SESEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		notifier, err := services.NewSESAlertNotifier(ctx, cfg.Alerts.AWSRegion, cfg.Alerts.Sender, cfg.Alerts.Recipients, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize SES alerts", slog.Any("error", err))
			os.Exit(1)
		}
		alerts = notifier
	}

	pinHasher, err := pkgauth.NewPINHasher(cfg.Payment.PINHashAlgorithm)
	if err != nil {
		logger.Error("invalid PIN hash algorithm", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	deviceRepo := repositories.NewDeviceRepository(db)
	transactionRepo := repositories.NewTransactionRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	// Initialize services
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenExpiry)
	auditLogger := pkglogger.NewAuditLogger(logger)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Payment.FailedPINDelay,
		RandomDelay: cfg.Payment.FailedPINDelay / 2,
	})

	eventService := services.NewSecurityEventService(eventRepo, opsReporter, logger)
	credentialService := services.NewCredentialService(services.CredentialServiceDeps{
		Users:       userRepo,
		Hasher:      pinHasher,
		Events:      eventService,
		Alerts:      alerts,
		Ops:         opsReporter,
		Delay:       timingDelay,
		Audit:       auditLogger,
		MaxAttempts: cfg.Payment.MaxFailedPINAttempts,
		Logger:      logger,
	})
	deviceService := services.NewDeviceService(deviceRepo, eventService, logger)
	authorizationService := services.NewAuthorizationService(services.AuthorizationServiceDeps{
		Users:             userRepo,
		Credentials:       credentialService,
		Devices:           deviceService,
		Ledger:            transactionRepo,
		Events:            eventService,
		Engine:            risk.NewEngine(risk.DefaultConfig()),
		Locker:            locker,
		Publisher:         publisher,
		Ops:               opsReporter,
		Exchange:          cfg.Messaging.PaymentExchange,
		PublishTimeout:    cfg.Messaging.PublishTimeout,
		DefaultDailyLimit: cfg.Payment.DefaultDailyLimit,
		LockTimeout:       cfg.Payment.LockTimeout,
		Logger:            logger,
	})
	accountService := services.NewAccountService(userRepo, deviceRepo, transactionRepo, eventService, cfg.Payment.DefaultDailyLimit, cfg.Payment.HistoryLimit, logger)
	adminService := services.NewAdminService(userRepo, eventService, auditLogger, logger)
	authService := services.NewAuthService(userRepo, credentialService, eventService, tokenManager, auditLogger, logger)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, credentialService, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, logger),
		Payments: handlers.NewPaymentHandler(authorizationService, logger),
		Devices:  handlers.NewDeviceHandler(deviceService, logger),
		Account:  handlers.NewAccountHandler(accountService, credentialService, logger),
		Admin:    handlers.NewAdminHandler(adminService, logger),
		Health:   handlers.NewHealthHandler(db, logger),
	}, tokenManager, cfg.RateLimit, ipConfig)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the operational error reporter
	opsCtx, opsCancel := context.WithCancel(context.Background())
	defer opsCancel()

	go opsReporter.Start(opsCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// drain reports raised by in-flight requests before the broker connection closes
	opsReporter.Stop()

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL, ADMIN_PASSWORD and ADMIN_PIN are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, credentials *services.CredentialService, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	adminPIN := os.Getenv("ADMIN_PIN")

	if adminEmail == "" || adminPassword == "" || adminPIN == "" {
		logger.Info("no ADMIN_EMAIL, ADMIN_PASSWORD or ADMIN_PIN set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}
	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	pinHash, err := credentials.HashPIN(adminPIN)
	if err != nil {
		return fmt.Errorf("failed to hash admin PIN: %w", err)
	}

	_, err = userRepo.Create(ctx, &models.User{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		PINHash:      pinHash,
		Role:         models.RoleAdmin,
		Status:       models.UserStatusActive,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
