package main

import (
	"errors"
	"log"
	"strings"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/apperr"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/approval"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/audit"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/auth"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/config"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/database"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/ledger"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/numbering"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/settings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)

	settingsSvc := settings.NewService(database.DB)
	gate := approval.NewGate(database.DB)
	numbers := numbering.New()
	ledgerSvc := ledger.NewService(database.DB, settingsSvc, gate, numbers)
	verifier := audit.NewVerifier(database.DB)

	// Approved requests re-enter the execution path directly, the gate is
	// never consulted twice for the same operation.
	gate.RegisterExecutor(ledger.OpCapitalEntry, ledgerSvc.ExecuteDeferred)

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Admin-only configuration surface
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	adminRoutes.Get("/settings", settings.ListSettingsHandler(settingsSvc))
	adminRoutes.Put("/settings/:key", settings.SetSettingHandler(settingsSvc))

	adminRoutes.Post("/approval-chains", approval.CreateChainHandler(gate))
	adminRoutes.Get("/approval-chains", approval.ListChainsHandler(gate))
	adminRoutes.Put("/approval-chains/:id", approval.UpdateChainHandler(gate))
	adminRoutes.Delete("/approval-chains/:id", approval.DeleteChainHandler(gate))

	adminRoutes.Get("/audit-logs/verify", audit.VerifyAuditLogsHandler(verifier))

	// Ledger
	protected.Post("/ledger/entries", auth.RequireRole(models.RoleAdmin, models.RoleFinance), ledger.CreateEntryHandler(ledgerSvc))
	protected.Get("/ledger/entries", ledger.ListEntriesHandler(ledgerSvc))
	protected.Get("/ledger/balance", ledger.BalanceHandler(ledgerSvc))
	protected.Post("/ledger/entries/:id/reverse", auth.RequireRole(models.RoleAdmin, models.RoleFinance), ledger.ReverseEntryHandler(ledgerSvc))
	protected.Delete("/ledger/entries/:id", auth.RequireRole(models.RoleAdmin, models.RoleFinance), ledger.DeleteEntryHandler(ledgerSvc))

	// Approval workflow
	protected.Get("/approval-requests", approval.ListRequestsHandler(gate))
	protected.Post("/approval-requests/:id/decide", approval.DecideHandler(gate))

	// Audit trail
	protected.Get("/audit-logs", auth.RequireRole(models.RoleAdmin), audit.ListAuditLogsHandler())

	log.Println("Server listening on port", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}

// errorHandler maps the domain error taxonomy to stable status/code pairs,
// once, at the boundary. Unexpected errors are logged with context and
// surfaced generically.
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiberErr.Message,
		})
	}

	var validationErr *apperr.ValidationError
	if errors.As(err, &validationErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"code":  "validation_error",
			"error": validationErr.Msg,
		})
	}

	var balanceErr *apperr.InsufficientBalanceError
	if errors.As(err, &balanceErr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"code":      "insufficient_balance",
			"error":     "Insufficient balance",
			"shortfall": balanceErr.Shortfall.StringFixed(2),
		})
	}

	switch {
	case errors.Is(err, apperr.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"code":  "conflict",
			"error": "The operation conflicted with a concurrent change, retry the whole request",
		})
	case errors.Is(err, apperr.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"code":  "forbidden",
			"error": "You are not allowed to perform this operation",
		})
	case errors.Is(err, apperr.ErrConfigurationMissing):
		log.Println("Configuration missing:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":  "configuration_missing",
			"error": "A required setting is not configured",
		})
	case errors.Is(err, apperr.ErrIntegrityViolation):
		log.Println("[CRITICAL] integrity violation:", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":  "integrity_violation",
			"error": "Audit integrity violation",
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"code":  "not_found",
			"error": "Record not found",
		})
	}

	log.Println("Unexpected error:", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Unexpected server error",
	})
}
