package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/tappay/internal/auth"
	"github.com/BradenHooton/tappay/internal/config"
	"github.com/BradenHooton/tappay/internal/handlers"
	"github.com/BradenHooton/tappay/internal/middleware"
	"github.com/BradenHooton/tappay/internal/models"
	pkghttp "github.com/BradenHooton/tappay/pkg/http"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Auth     *handlers.AuthHandler
	Payments *handlers.PaymentHandler
	Devices  *handlers.DeviceHandler
	Account  *handlers.AccountHandler
	Admin    *handlers.AdminHandler
	Health   *handlers.HealthHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	limits config.RateLimitConfig,
	ipConfig *pkghttp.IPConfig,
) {
	loginLimit := middleware.RateLimitByIP(middleware.RateLimitConfig{RequestsPerMinute: limits.LoginPerMinute}, ipConfig)
	authorizeLimit := middleware.RateLimitByUser(middleware.RateLimitConfig{RequestsPerMinute: limits.AuthorizePerMinute}, ipConfig)

	router.Get("/health", h.Health.Health)

	// Public routes
	router.With(loginLimit).Post("/auth/register", h.Auth.Register)
	router.With(loginLimit).Post("/auth/login", h.Auth.Login)

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		r.With(authorizeLimit).Post("/payments/authorize", h.Payments.Authorize)

		r.Get("/account/refresh", h.Account.Refresh)
		r.Put("/account/pin", h.Account.ChangePIN)
		r.Get("/transactions", h.Account.ListTransactions)
		r.Get("/transactions/{id}/verify", h.Account.VerifyTransaction)
		r.Get("/security-events", h.Account.ListSecurityEvents)

		r.Get("/devices", h.Devices.List)
		r.Delete("/devices/{id}", h.Devices.Deactivate)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Post("/admin/users/{id}/unlock", h.Admin.UnlockUser)
		})
	})
}
