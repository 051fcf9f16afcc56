package settings

import (
	"github.com/Gha-mus/workflu-business-management-sub003/internal/auth"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"

	"github.com/gofiber/fiber/v2"
)

type SetSettingRequest struct {
	Value    string `json:"value"`
	Category string `json:"category"`
}

// GET /api/admin/settings?category=financial
func ListSettingsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := svc.db.Model(&models.Setting{})
		if category := c.Query("category"); category != "" {
			dbq = dbq.Where("category = ?", category)
		}

		var settings []models.Setting
		if err := dbq.Order("key ASC").Find(&settings).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list settings")
		}

		return c.JSON(settings)
	}
}

// PUT /api/admin/settings/:key
func SetSettingHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.FromCtx(c)
		if err != nil {
			return err
		}

		var body SetSettingRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		setting, err := svc.Set(c.Params("key"), body.Value, body.Category, p)
		if err != nil {
			return err
		}

		return c.JSON(setting)
	}
}
