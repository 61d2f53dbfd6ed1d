// Package httpapi exposes the engine over HTTP: registration, OTP, password
// login, token refresh, logout, CSRF tokens and organizer assignments.
package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/middleware"
	"github.com/MrEthical07/phoneauth/permission"
	"github.com/MrEthical07/phoneauth/response"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Options configures [NewRouter].
type Options struct {
	Logger         *zap.Logger
	AllowedOrigins []string
	RatePolicies   middleware.RatePolicies
	// OTPLogin makes verify-otp issue tokens for the verified phone. It
	// needs an engine built with a user provider.
	OTPLogin bool
	// CSRF enables token checks on state-changing requests.
	CSRF bool
	// RequestTimeout bounds each request. Zero disables it.
	RequestTimeout time.Duration
	// Users enables POST /api/auth/register.
	Users phoneauth.UserRegistrar
}

// Handler serves the auth endpoints.
type Handler struct {
	engine   *phoneauth.Engine
	logger   *zap.Logger
	validate *validator.Validate
	otpLogin bool
	users    phoneauth.UserRegistrar
}

// NewHandler returns a Handler for engine.
func NewHandler(engine *phoneauth.Engine, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = engine.Logger()
	}
	return &Handler{
		engine:   engine,
		logger:   logger.Named("http"),
		validate: newValidator(),
		otpLogin: opts.OTPLogin,
		users:    opts.Users,
	}
}

// NewRouter returns a chi router with every endpoint and the standard
// middleware stack mounted.
func NewRouter(engine *phoneauth.Engine, opts Options) chi.Router {
	h := NewHandler(engine, opts)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	policies := opts.RatePolicies
	if policies.Default == "" && len(policies.Routes) == 0 {
		policies = middleware.DefaultRatePolicies()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Session-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-Rate-Limit-Remaining", "X-Rate-Limit-Reset", "X-Request-ID", "X-Session-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}
	r.Use(middleware.ClientInfo)
	r.Use(middleware.RateLimit(engine, policies, nil))
	if opts.CSRF {
		r.Use(middleware.RequireCSRF(engine, middleware.CSRFOptions{
			SkipPrefixes: []string{"/health", "/api/webhooks"},
		}))
	}

	r.Get("/health", h.Health)
	r.Get("/api/csrf-token", h.CSRFToken)

	r.Route("/api/auth", func(r chi.Router) {
		if h.users != nil {
			r.Post("/register", h.Register)
		}
		r.Post("/send-otp", h.SendOTP)
		r.Post("/verify-otp", h.VerifyOTP)
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(engine))
			r.Post("/logout", h.Logout)
			r.Get("/me", h.Me)
		})
	})

	r.Route("/api/events/{eventID}", func(r chi.Router) {
		r.Use(middleware.RequireAuth(engine))
		r.Get("/access", h.Access)
		r.With(middleware.RequirePermission(engine, "eventID", permission.ManageOrganizers)).
			Post("/organizers", h.AddOrganizer)
		r.With(middleware.RequirePermission(engine, "eventID", permission.ManageOrganizers)).
			Delete("/organizers/{userID}", h.RemoveOrganizer)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.WriteError(w, http.StatusNotFound, phoneauth.CodeNotFound, "Resource not found", nil)
	})

	return r
}
