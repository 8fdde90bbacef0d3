package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/springboard/internal/auth"
	"github.com/BradenHooton/springboard/internal/handlers"
	"github.com/BradenHooton/springboard/internal/middleware"
	pkghttp "github.com/BradenHooton/springboard/pkg/http"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Health  *handlers.HealthHandler
	Auth    *handlers.AuthHandler
	OAuth   *handlers.OAuthHandler
	Users   *handlers.UserHandler
	Admin   *handlers.AdminHandler
	Project *handlers.ProjectHandler
}

// Options carries the cross-cutting settings for the router.
type Options struct {
	Env            string
	AllowedOrigins []string
	IPConfig       *pkghttp.IPConfig
	AuthRateLimit  int
	RequestTimeout time.Duration
}

// NewRouter builds the full HTTP surface. Health probes live at the root;
// everything else is under /api/v1.
func NewRouter(
	h Handlers,
	tm *auth.TokenManager,
	users auth.UserRepository,
	opts Options,
	logger *slog.Logger,
) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: opts.Env}))
	r.Use(middleware.CORS(middleware.NewCORSConfig(opts.AllowedOrigins)))
	r.Use(middleware.SecureLogger(logger, opts.IPConfig))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(opts.RequestTimeout))

	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		RegisterRoutes(r, h, tm, users, opts, logger)
	})

	return r
}

// RegisterRoutes mounts the API routes on router.
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tm *auth.TokenManager,
	users auth.UserRepository,
	opts Options,
	logger *slog.Logger,
) {
	authLimit := middleware.RateLimitByIP(middleware.AuthRateLimit(opts.AuthRateLimit, opts.IPConfig))

	// Public
	router.Route("/auth", func(r chi.Router) {
		r.With(authLimit).Post("/register", h.Auth.Register)
		r.With(authLimit).Post("/login", h.Auth.Login)
		r.With(authLimit).Post("/refresh", h.Auth.RefreshToken)
		r.Post("/logout", h.Auth.Logout)
		r.Get("/google/login", h.OAuth.GoogleLogin)
		r.Get("/google/callback", h.OAuth.GoogleCallback)
	})

	// Authenticated
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tm, users, logger))

		r.Post("/auth/add-password", h.Auth.AddPassword)
		r.Get("/users/me", h.Users.GetMe)
		r.Put("/users/me", h.Users.UpdateMe)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.Project.List)
			r.Post("/", h.Project.Create)
			r.Get("/{id}", h.Project.Get)
			r.Put("/{id}", h.Project.Update)
			r.Delete("/{id}", h.Project.Delete)
		})

		// Admin only
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Get("/users", h.Users.ListUsers)
			r.Get("/users/{id}", h.Users.GetUser)

			r.Route("/admin/users", func(r chi.Router) {
				r.Get("/", h.Admin.ListUsers)
				r.Get("/stats", h.Admin.GetStats)
				r.Put("/{id}/deactivate", h.Admin.Deactivate)
				r.Put("/{id}/activate", h.Admin.Activate)
				r.Put("/{id}/role", h.Admin.ChangeRole)
				r.Delete("/{id}", h.Admin.DeleteUser)
			})
		})
	})
}
