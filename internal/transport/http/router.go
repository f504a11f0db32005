package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopnest-api/internal/application/auth"
	"github.com/shopnest-api/internal/application/notification"
	"github.com/shopnest-api/internal/application/session"
	"github.com/shopnest-api/internal/application/user"
	"github.com/shopnest-api/internal/config"
	"github.com/shopnest-api/internal/domain"
	"github.com/shopnest-api/internal/infrastructure/smtp"
	"github.com/shopnest-api/internal/infrastructure/sns"
	"github.com/shopnest-api/internal/otp"
	"github.com/shopnest-api/internal/transport/http/handler"
	appmiddleware "github.com/shopnest-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo    UserRepository
	SessionRepo SessionRepository
	OTPStore    otp.Store
	Mailer      smtp.Mailer
	SMSSender   sns.SMSSender // nil disables the SMS channel
	JWTProvider TokenProvider
	// RateLimiter guards the /auth endpoints. A default 5 req/s, burst 10
	// limiter is created when nil.
	RateLimiter *appmiddleware.RateLimiter
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(appmiddleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	otpRL := deps.RateLimiter
	if otpRL == nil {
		otpRL = appmiddleware.NewRateLimiter(rate.Limit(5), 10)
	}

	dispatcher := notification.NewDispatcher(deps.Mailer, deps.SMSSender)
	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:        deps.UserRepo,
		SessionRepo:     deps.SessionRepo,
		OTPStore:        deps.OTPStore,
		Dispatcher:      dispatcher,
		JWTProvider:     deps.JWTProvider,
		RefreshTokenDur: cfg.RefreshTokenExpiry(),
		OTPTTL:          cfg.OTPTTL,
	})
	sessionSvc := session.NewService(session.ServiceDeps{
		UserRepo:        deps.UserRepo,
		SessionRepo:     deps.SessionRepo,
		JWTProvider:     deps.JWTProvider,
		RefreshTokenDur: cfg.RefreshTokenExpiry(),
	})
	userSvc := user.NewService(deps.UserRepo)

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc)
	sessionH := handler.NewSessionHandler(sessionSvc)
	userH := handler.NewUserHandler(userSvc)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/sessions/refresh", sessionH.Refresh)

		r.Route("/auth", func(r chi.Router) {
			r.Use(otpRL.Limit)
			r.Post("/register", authH.Register)
			r.Post("/verify-register", authH.VerifyRegister)
			r.Post("/login", authH.Login)
			r.Post("/verify-login", authH.VerifyLogin)
			r.Post("/resend-otp", authH.ResendOTP)
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.JWTProvider))

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)
			r.Get("/users/me", userH.Me)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))
				r.Get("/users", userH.List)
			})
		})
	})

	return r
}
