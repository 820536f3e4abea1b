package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	"servicehub/internal/adapter/api"
	"servicehub/internal/adapter/api/handler"
	apimiddleware "servicehub/internal/adapter/api/middleware"
	"servicehub/internal/adapter/api/router"
	"servicehub/internal/adapter/repository"
	domainrepo "servicehub/internal/domain/repository"
	"servicehub/internal/domain/service"
	"servicehub/internal/infrastructure/firebase"
	"servicehub/internal/infrastructure/metrics"
	"servicehub/internal/infrastructure/ratelimit"
	"servicehub/internal/infrastructure/websocket"
	"servicehub/internal/session"
	"servicehub/pkg/config"
	"servicehub/pkg/logger"
	"servicehub/pkg/response"
)

const (
	sessionIdleTimeout = 30 * time.Minute
	shutdownTimeout    = 10 * time.Second
)

// backend bundles what the gateway needs from the chosen store.
type backend struct {
	provider domainrepo.AuthProvider
	verifier apimiddleware.TokenVerifier
	issuer   handler.SessionIssuer
	sessions session.Backend
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger.Configure(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var b *backend
	switch cfg.StoreBackend {
	case "memory":
		b = memoryBackend(cfg)
	default:
		b, err = firestoreBackend(ctx, cfg)
		if err != nil {
			logger.Error("Failed to initialize Firebase: %v", err)
			os.Exit(1)
		}
	}

	m := metrics.New()

	limiter := ratelimit.NewRateLimiter(ratelimit.DefaultRules(cfg.MessageRatePerMin))
	limiter.StartCleanupRoutine(ctx)

	wsManager := websocket.NewManager(m)
	wsManager.Start(ctx)

	sessions := session.NewRegistry(session.Options{
		Provider:    b.provider,
		Backend:     b.sessions,
		Intents:     service.NewHTTPPaymentIntentService(cfg.PaymentFunctionURL, cfg.RequestTimeout),
		Limiter:     limiter,
		Metrics:     m,
		Notifier:    wsManager,
		Currency:    cfg.PaymentCurrency,
		IdleTimeout: sessionIdleTimeout,
	})
	sessions.StartCleanupRoutine(ctx)
	wsManager.SetCommandHandler(sessions.HandleCommand)

	handler.Setup(sessions, wsManager, m)
	if b.issuer != nil {
		handler.SetupDevTokenHandler(b.issuer, sessions)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = response.ErrorHandler

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == "/v1/ws" },
		Timeout: cfg.RequestTimeout,
	}))
	e.Use(apimiddleware.RateLimit(limiter))

	router.Setup(e, apimiddleware.NewAuthMiddleware(b.verifier, sessions))
	router.SetupDevRouter(e, cfg.Environment)

	go func() {
		logger.Info("Starting %s gateway on port %s (store: %s)", cfg.Environment, cfg.ServerPort, cfg.StoreBackend)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			logger.Error("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
	sessions.CloseAll()
}

func memoryBackend(cfg *config.Config) *backend {
	logger.Warn("Using the in-memory store; data is lost on restart")
	provider := repository.NewMemoryAuthProvider()
	return &backend{
		provider: provider,
		verifier: provider,
		issuer:   provider,
		sessions: session.NewMemoryBackend(repository.NewMemoryStore(), provider, cfg.Collections),
	}
}

func firestoreBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	var opt option.ClientOption
	if cfg.ServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		opt = option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON))
	} else {
		if _, err := os.Stat(cfg.ServiceAccountPath); err != nil {
			return nil, err
		}
		logger.Info("Using Firebase service account from file: %s", cfg.ServiceAccountPath)
		opt = option.WithCredentialsFile(cfg.ServiceAccountPath)
	}

	app, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
	if err != nil {
		return nil, err
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}

	provider, err := firebase.NewIdentityProvider(ctx, cfg.FirebaseAPIKey, nil,
		firebase.WithAdmin(authClient),
		firebase.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
	)
	if err != nil {
		return nil, err
	}

	b := &backend{
		provider: provider,
		verifier: firebase.NewFirebaseAuthClient(authClient),
		sessions: session.NewFirestoreBackend(cfg.FirebaseProject, cfg.Collections),
	}
	if cfg.IsDevelopment() {
		b.issuer = provider
	}
	return b, nil
}
