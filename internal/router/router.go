package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"hive-auth/internal/config"
	"hive-auth/internal/cookie"
	"hive-auth/internal/handler"
	"hive-auth/internal/metrics"
	"hive-auth/internal/middleware"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	Passkey *handler.PasskeyHandler
	Audit   *handler.AuditHandler
}

type Deps struct {
	AuthMiddleware *middleware.AuthMiddleware
	Cookies        cookie.Policy
	Metrics        *metrics.Metrics
	Health         func(ctx context.Context) error
}

func New(cfg *config.Config, deps Deps, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)
	authMW := deps.AuthMiddleware

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
	}
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Health(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Metrics != nil && cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))
		api.Use(middleware.CSRF(deps.Cookies))

		api.Route("/auth", func(auth chi.Router) {
			auth.Get("/csrf", h.Auth.CSRF)
			auth.Post("/login", h.Auth.Login)
			auth.Post("/register", h.Auth.Register)
			auth.Post("/register-invite", h.Auth.RegisterWithInvitation)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.With(authMW.OptionalAuth).Post("/logout", h.Auth.Logout)

			auth.Group(func(protected chi.Router) {
				protected.Use(authMW.RequireAuth)
				protected.Post("/switch-hive", h.Auth.SwitchHive)
				protected.Post("/logout-all", h.Auth.LogoutAll)
				protected.Get("/me", h.Auth.Me)
				protected.Get("/sessions", h.Auth.Sessions)
				protected.Delete("/sessions/{id}", h.Auth.RevokeSession)
				protected.Post("/invitations", h.Auth.CreateInvitation)
				protected.Get("/passkeys", h.Passkey.List)
				protected.Delete("/passkeys/{id}", h.Passkey.Remove)
				protected.Post("/passkey/register/options", h.Passkey.RegOptions)
				protected.Post("/passkey/register/verify", h.Passkey.VerifyReg)
			})

			auth.Post("/passkey/auth/options", h.Passkey.AuthOptions)
			auth.Post("/passkey/auth/verify", h.Passkey.VerifyAuth)
		})

		api.With(authMW.RequireAuth, authMW.RequireSystemAdmin).Get("/admin/audit", h.Audit.List)
	})

	return r
}
