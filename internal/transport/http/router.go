package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-verification-nosql/internal/application/notification"
	"github.com/go-verification-nosql/internal/application/registration"
	"github.com/go-verification-nosql/internal/application/verification"
	"github.com/go-verification-nosql/internal/config"
	"github.com/go-verification-nosql/internal/domain"
	jwtinfra "github.com/go-verification-nosql/internal/infrastructure/jwt"
	"github.com/go-verification-nosql/internal/transport/http/handler"
	appmiddleware "github.com/go-verification-nosql/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	Codes       CodeStore
	Accounts    AccountRepository
	Leaser      domain.Leaser // nil disables the AddCode lease
	Notifier    notification.Service
	JWTProvider *jwtinfra.Provider
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	codeSvc := verification.NewService(verification.ServiceDeps{
		Codes:       deps.Codes,
		Accounts:    deps.Accounts,
		Leaser:      deps.Leaser,
		ResendLimit: cfg.Verification.ResendLimit,
		LeaseTTL:    cfg.Verification.LeaseTTL,
	})
	regSvc := registration.NewService(registration.ServiceDeps{
		Accounts: deps.Accounts,
		Codes:    codeSvc,
	})

	healthH := handler.NewHealthHandler()
	codeH := handler.NewVerificationCodeHandler(codeSvc, deps.Notifier, deps.JWTProvider, cfg.PublicBaseURL)
	regH := handler.NewRegistrationHandler(regSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Get("/verification-codes/{key}", codeH.Get)

		r.Group(func(r chi.Router) {
			r.Use(sensitiveRL.Limit)

			r.Post("/verification-codes", codeH.Create)
			r.Post("/verification-codes/{key}/resend", codeH.Resend)
			r.Post("/verification-codes/{key}/verify", codeH.Verify)
			r.Delete("/verification-codes", codeH.DeleteByEmail)
		})

		// ── Ticket-authenticated routes ──────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.JWTProvider))

			r.Post("/registrations", regH.Complete)
		})
	})

	return r
}
