package cmd

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eventick/ms-go-ticketing/app/controller"
	"github.com/eventick/ms-go-ticketing/app/factory"
	"github.com/eventick/ms-go-ticketing/app/pricing"
	"github.com/eventick/ms-go-ticketing/app/provider"
	"github.com/eventick/ms-go-ticketing/app/repository"
	"github.com/eventick/ms-go-ticketing/app/service"
	"github.com/eventick/ms-go-ticketing/app/types"
	"github.com/eventick/ms-go-ticketing/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the Echo HTTP server for checkout, capture, refunds and provider webhooks.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, paymentService, providerRegistry, cleanup := mustCreatePaymentService()
	defer cleanup()

	paymentController := controller.NewPaymentController(paymentService, providerRegistry)
	e := setupHTTPServer(paymentController, cfg)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(paymentController *controller.PaymentController, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	payments := e.Group("/payments")
	payments.GET("/health", paymentController.Health)
	payments.POST("/webhooks/:provider", paymentController.HandleWebhook)
	payments.POST("/refund", paymentController.Refund, requireAdminKey(cfg.App.AdminAPIKey))

	user := payments.Group("", requireUser())
	user.POST("/checkout", paymentController.Checkout)
	user.POST("/capture", paymentController.Capture)
	user.GET("/:id", paymentController.GetTransaction)

	return e
}

func requireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if strings.TrimSpace(ctx.Request().Header.Get(types.UserIDHeader)) == "" {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "x-user-id header is required"})
			}
			return next(ctx)
		}
	}
}

func requireAdminKey(adminKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			supplied := strings.TrimSpace(ctx.Request().Header.Get("X-Admin-Key"))
			if adminKey == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(adminKey)) != 1 {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "invalid admin key"})
			}
			return next(ctx)
		}
	}
}

func mustCreatePaymentService() (*config.Config, *service.PaymentService, *provider.Registry, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	txnRepo := repository.NewTransactionRepository(db)
	webhookRepo := repository.NewWebhookRecordRepository(db)
	ledgerRepo := repository.NewLedgerEventRepository(db)

	cardProvider := provider.NewCardProvider(provider.CardConfig{
		SecretKey:                 cfg.Card.SecretKey,
		WebhookSecret:             cfg.Card.WebhookSecret,
		APIBaseURL:                cfg.Card.APIBaseURL,
		SignatureToleranceSeconds: cfg.Card.SignatureToleranceSeconds,
		HTTPTimeout:               cfg.Card.HTTPTimeout,
	})
	walletProvider := provider.NewWalletProvider(provider.WalletConfig{
		BaseURL:       cfg.Wallet.BaseURL,
		ClientID:      cfg.Wallet.ClientID,
		ClientSecret:  cfg.Wallet.ClientSecret,
		WebhookSecret: cfg.Wallet.WebhookSecret,
		HTTPTimeout:   cfg.Wallet.HTTPTimeout,
	})
	providerRegistry := provider.NewRegistry(cardProvider, walletProvider)

	startupLogger := factory.NewModuleLogger("payments-startup")
	if !cfg.CardConfigured() {
		startupLogger.WithField("provider", cardProvider.Name()).
			Warn("provider credentials missing, its operations will fail until configured")
	}
	if !cfg.WalletConfigured() {
		startupLogger.WithField("provider", walletProvider.Name()).
			Warn("provider credentials missing, its operations will fail until configured")
	}

	calculator := pricing.NewCalculator(factory.NewModuleLogger("payments-pricing"))
	paymentService := service.NewPaymentService(
		txnRepo,
		webhookRepo,
		ledgerRepo,
		providerRegistry,
		calculator,
		cfg.Payments,
		factory.NewModuleLogger("payments-service"),
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, paymentService, providerRegistry, cleanup
}
