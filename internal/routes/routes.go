package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/bastionsec/bastion/internal/auth"
	"github.com/bastionsec/bastion/internal/handlers"
	"github.com/bastionsec/bastion/internal/middleware"
)

// RegisterRoutes wires all application routes. Credential endpoints get
// rate limiting and the injection guard; the monitoring surface requires
// an authenticated admin.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	idsHandler *handlers.IDSHandler,
	authMiddleware *auth.Middleware,
	guard *middleware.InjectionGuard,
	users auth.UserFetcher,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public credential endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))
		r.Use(guard.Guard)

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/admin/login", authHandler.AdminLogin)
	})

	// Authenticated routes
	router.Group(func(r chi.Router) {
		r.Use(authMiddleware.RequireAuth)
		r.Use(guard.Guard)

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/profile", authHandler.Profile)

		r.Route("/2fa", func(r chi.Router) {
			r.Post("/setup", twoFactorHandler.Setup)
			r.Post("/verify", twoFactorHandler.Verify)
			r.Post("/disable", twoFactorHandler.Disable)
			r.Get("/status", twoFactorHandler.Status)
		})

		// Monitoring surface, admin only
		r.Route("/ids", func(r chi.Router) {
			r.Use(authMiddleware.RequireRole(users, "admin"))

			r.Get("/alerts", idsHandler.ListAlerts)
			r.Patch("/alerts/{id}", idsHandler.UpdateAlert)
			r.Get("/statistics", idsHandler.Statistics)
			r.Get("/analyze/{ip}", idsHandler.AnalyzeIP)
			r.Get("/honeypot/interactions", idsHandler.ListHoneypotInteractions)
		})
	})
}
