package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codequest/internal/api/handler"
	"codequest/internal/api/middleware"
	"codequest/internal/app/service"
	"codequest/internal/common/security"
)

func NewRouter(
	authService *service.AuthService,
	challengeService *service.ChallengeService,
	sessionService *service.SessionService,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	// Submissions block until grading finishes, so the request timeout has
	// to outlive the evaluation wait window.
	r.Use(chiMiddleware.Timeout(3 * time.Minute))

	r.Use(jwtauth.Verifier(security.TokenAuth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/languages", handler.ListLanguages)

		authHandler := handler.NewAuthHandler(authService)
		v1.Group(func(publicAuth chi.Router) {
			authHandler.RegisterRoutes(publicAuth)
		})

		challengeHandler := handler.NewChallengeHandler(challengeService)
		sessionHandler := handler.NewSessionHandler(sessionService)

		v1.Route("/challenges", func(cr chi.Router) {
			challengeHandler.RegisterRoutes(cr)
			cr.Group(func(authed chi.Router) {
				authed.Use(middleware.Authenticator)
				sessionHandler.RegisterChallengeRoutes(authed)
			})
		})

		v1.Group(func(authed chi.Router) {
			authed.Use(middleware.Authenticator)
			sessionHandler.RegisterRoutes(authed)
		})
	})

	return r
}
