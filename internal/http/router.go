package http

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/foothill/blog/internal/auth"
	"github.com/foothill/blog/internal/config"
	"github.com/foothill/blog/internal/httputil"
	"github.com/foothill/blog/internal/logging"
	"github.com/foothill/blog/internal/metrics"
	"github.com/foothill/blog/internal/post"
)

// Handlers are the pieces the router mounts
type Handlers struct {
	Auth     *auth.Handler
	Posts    *post.Handler
	Identity *auth.Middleware
	Renderer *httputil.Renderer
	// Metrics may be nil, which disables /metrics and request observation
	Metrics *metrics.Collector
	// Static serves stylesheets under /static/
	Static fs.FS
	// PictureDir serves locally stored profile pictures; empty when pictures live in S3
	PictureDir string
}

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, h Handlers, logger *logging.Logger) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	var observer logging.RequestObserver
	if h.Metrics != nil {
		observer = h.Metrics
	}

	// Global middleware
	r.Use(SecurityHeaders)                         // Security headers on all responses
	r.Use(middleware.Recoverer)                    // Recover from panics
	r.Use(middleware.RequestID)                    // Add request ID
	r.Use(middleware.RealIP)                       // Set RemoteAddr to real IP
	r.Use(logging.RequestLogger(logger, observer)) // Structured logging with request context
	r.Use(middleware.Compress(5))                  // Compress responses

	r.NotFound(h.Renderer.NotFound)

	// Operational routes skip sessions and CSRF
	r.Get("/health", handleHealth)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())
	}
	if h.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(h.Static))))
	}
	if h.PictureDir != "" {
		r.Handle("/static/profile_pics/*", http.StripPrefix("/static/profile_pics/", http.FileServer(http.Dir(h.PictureDir))))
	}

	// Pages
	r.Group(func(r chi.Router) {
		r.Use(MaxBodyBytes(cfg.Server.MaxUploadBytes))
		r.Use(h.Identity.LoadIdentity)
		r.Use(httputil.CSRF(h.Renderer, cfg.Auth.SecureCookies))

		r.Get("/", h.Posts.Home)
		r.Get("/home", h.Posts.Home)
		r.Get("/about", h.Posts.About)
		r.Get("/post/new", h.Posts.NewPostPage)
		r.Post("/post/new", h.Posts.NewPost)
		r.Get("/post/{id}", h.Posts.Detail)
		r.Get("/user/{username}", h.Posts.UserPosts)

		r.Get("/register", h.Auth.RegisterPage)
		r.Post("/register", h.Auth.Register)
		r.Get("/login", h.Auth.LoginPage)
		r.Post("/login", h.Auth.Login)
		r.Get("/logout", h.Auth.Logout)
		r.Get("/account", h.Auth.AccountPage)
		r.Post("/account", h.Auth.Account)
		r.Get("/ResetPassword", h.Auth.ResetRequestPage)
		r.Post("/ResetPassword", h.Auth.ResetRequest)
		r.Get("/ResetPassword/{token}", h.Auth.ResetTokenPage)
		r.Post("/ResetPassword/{token}", h.Auth.ResetToken)
	})

	return r
}

// handleHealth is a simple health check endpoint
func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
