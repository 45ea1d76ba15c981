package app

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

	"hive-auth/internal/config"
	"hive-auth/internal/cookie"
	"hive-auth/internal/database"
	"hive-auth/internal/event"
	"hive-auth/internal/handler"
	"hive-auth/internal/logger"
	"hive-auth/internal/metrics"
	"hive-auth/internal/middleware"
	"hive-auth/internal/repository"
	"hive-auth/internal/repository/memory"
	"hive-auth/internal/router"
	"hive-auth/internal/security"
	"hive-auth/internal/service"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

// Server is the assembled HTTP surface plus the services that have
// background work to run beside it.
type Server struct {
	Handler  http.Handler
	Auth     *service.AuthService
	Passkeys *service.PasskeyService
	Audit    *service.AuditService
	Bus      *event.InMemoryBus
	Metrics  *metrics.Metrics

	cleanupInterval time.Duration
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	var (
		stores  service.Stores
		health  func(context.Context) error
		closeDB = func() {}
	)

	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store; sessions are lost on restart")
		stores = MemoryStores(memory.New())
	} else {
		slog.Info("connecting to PostgreSQL")
		db, err := database.Open(ctx, database.Options{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		stores = PostgresStores(db)
		health = db.Health
		closeDB = db.Close
		slog.Info("database ready")
	}

	rp, err := security.NewRelyingParty(security.RelyingPartyConfig{
		ID:          cfg.WebAuthnRPID,
		DisplayName: cfg.WebAuthnRPName,
		Origins:     cfg.WebAuthnRPOrigins,
	})
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("failed to initialize webauthn: %w", err)
	}

	srv, err := Build(cfg, stores, rp, health)
	if err != nil {
		closeDB()
		return nil, err
	}

	backgroundCtx, cancelBackground := context.WithCancel(ctx)
	srv.Start(backgroundCtx)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.Handler,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		cleanupFuncs: []func(){
			cancelBackground,
			closeDB,
		},
	}, nil
}

// Build wires services, handlers and middleware over the given stores. It
// starts nothing; call Start for the background loops.
func Build(cfg *config.Config, stores service.Stores, rp service.RelyingParty, health func(context.Context) error) (*Server, error) {
	issuer, err := security.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAccessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	m := metrics.New()
	bus := event.NewBus()

	authService := service.NewAuthService(service.AuthConfig{
		RefreshTTL:    cfg.RefreshTTL,
		ReuseGrace:    cfg.RefreshReuseGrace,
		InviteTTL:     cfg.InviteTTL,
		BcryptCost:    cfg.BcryptCost,
		DefaultLocale: cfg.DefaultLocale,
	}, stores, issuer, service.NewRoleAuthorizer(), bus)
	authService.SetMetrics(m)
	passkeyService := service.NewPasskeyService(authService, rp, cfg.PasskeyChallengeTTL)
	auditService := service.NewAuditService(stores.Audit, m)

	cookies := CookiePolicy(cfg)
	handlers := router.Handlers{
		Auth:    handler.NewAuthHandler(authService, cookies),
		Passkey: handler.NewPasskeyHandler(passkeyService, cookies),
		Audit:   handler.NewAuditHandler(auditService),
	}

	appRouter := router.New(cfg, router.Deps{
		AuthMiddleware: middleware.NewAuthMiddleware(authService),
		Cookies:        cookies,
		Metrics:        m,
		Health:         health,
	}, handlers)

	return &Server{
		Handler:         appRouter,
		Auth:            authService,
		Passkeys:        passkeyService,
		Audit:           auditService,
		Bus:             bus,
		Metrics:         m,
		cleanupInterval: cfg.CleanupInterval,
	}, nil
}

// Start runs the audit consumer and the expiry cleanup until ctx ends.
func (s *Server) Start(ctx context.Context) {
	go s.Audit.Run(ctx, s.Bus)
	go s.Auth.StartCleanupTicker(ctx, s.cleanupInterval)
}

func CookiePolicy(cfg *config.Config) cookie.Policy {
	return cookie.Policy{
		Secure:      cfg.CookieSecure,
		Domain:      cfg.CookieDomain,
		RefreshName: cfg.RefreshCookieName,
		CSRFName:    cfg.CSRFCookieName,
	}.WithDefaults()
}

func MemoryStores(m *memory.Store) service.Stores {
	return service.Stores{
		Users:       m.Users,
		Hives:       m.Hives,
		Sessions:    m.Sessions,
		Invitations: m.Invitations,
		Passkeys:    m.Passkeys,
		Challenges:  m.Challenges,
		Audit:       m.Audit,
	}
}

func PostgresStores(db *database.DB) service.Stores {
	pool := db.Pool
	return service.Stores{
		Users:       repository.NewUserRepository(pool),
		Hives:       repository.NewHiveRepository(pool),
		Sessions:    repository.NewSessionRepository(pool),
		Invitations: repository.NewInvitationRepository(pool),
		Passkeys:    repository.NewPasskeyRepository(pool),
		Challenges:  repository.NewChallengeRepository(pool),
		Audit:       repository.NewAuditRepository(pool),
	}
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
