package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/medsupply/internal/config"
	"github.com/example/medsupply/internal/handlers"
	"github.com/example/medsupply/internal/integrations"
	"github.com/example/medsupply/internal/middleware"
	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/internal/repository"
	"github.com/example/medsupply/internal/services"
	"github.com/example/medsupply/pkg/logger"
)

// Deps carries everything the route handlers need.
type Deps struct {
	Cfg       *config.Config
	Users     *repository.UserRepository
	Orders    *repository.OrderRepository
	Codes     *repository.ReferralCodeRepository
	Ledger    *repository.LedgerRepository
	Prospects *repository.ProspectRepository
	Settings  *repository.SettingsRepository

	OrderService    *services.OrderService
	ReferralService *services.ReferralService
	SyncService     *services.SyncService
	Payments        integrations.PaymentProvider

	Log logger.Logger
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, deps Deps) {
	authHandler := handlers.NewAuthHandler(deps.Users, deps.ReferralService, deps.Cfg)
	orderHandler := handlers.NewOrderHandler(deps.OrderService)
	webhookHandler := handlers.NewWebhookHandler(deps.Payments, deps.OrderService, deps.Log)
	referralHandler := handlers.NewReferralHandler(deps.ReferralService, deps.Codes, deps.Ledger)
	prospectHandler := handlers.NewProspectHandler(deps.Prospects)
	settingsHandler := handlers.NewSettingsHandler(deps.Settings)
	adminHandler := handlers.NewAdminHandler(deps.Orders, deps.OrderService, deps.SyncService)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Provider callbacks authenticate via signature, not JWT.
	api.Post("/webhooks/stripe", webhookHandler.Stripe)

	// Pre-checkout estimation is open so carts can show totals before
	// sign-in.
	api.Post("/orders/estimate", orderHandler.EstimateTotals)
	api.Post("/orders/rates", orderHandler.EstimateRates)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(deps.Cfg))

	protected.Get("/auth/me", authHandler.Me)

	protected.Post("/orders", orderHandler.CreateOrder)
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)
	protected.Post("/orders/:id/cancel", orderHandler.CancelOrder)
	protected.Post("/orders/:id/checkout", orderHandler.Checkout)

	protected.Get("/referrals/stats", referralHandler.Stats)
	protected.Get("/referrals/ledger", referralHandler.Ledger)

	// Sales-rep pipeline
	reps := protected.Group("/prospects", middleware.RequireRole(models.RoleSalesRep, models.RoleAdmin))
	reps.Get("/", prospectHandler.List)
	reps.Post("/", prospectHandler.Create)
	reps.Get("/:id", prospectHandler.Get)
	reps.Put("/:id", prospectHandler.Update)

	// Back office
	admin := protected.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	admin.Get("/orders", adminHandler.ListOrders)
	admin.Get("/orders/:id", adminHandler.GetOrder)
	admin.Post("/orders/:id/fulfill", adminHandler.MarkFulfilled)
	admin.Post("/sync", adminHandler.TriggerSync)

	admin.Get("/settings", settingsHandler.Get)
	admin.Put("/settings", settingsHandler.Update)

	admin.Get("/referral-codes", referralHandler.ListPoolCodes)
	admin.Post("/referral-codes", referralHandler.MintPoolCode)
	admin.Post("/referral-codes/:id/assign", referralHandler.AssignPoolCode)
	admin.Post("/referral-codes/:id/revoke", referralHandler.RevokePoolCode)
	admin.Post("/referral-codes/:id/retire", referralHandler.RetirePoolCode)
}
