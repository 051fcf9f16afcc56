package audit

import (
	"fmt"
	"log"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/database"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GET /api/audit-logs?entity_type=ledger_entry&entity_id=1&user_id=2&severity=critical
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := database.DB.Model(&models.AuditLog{})

		if entityType := c.Query("entity_type"); entityType != "" {
			dbq = dbq.Where("entity_type = ?", entityType)
		}

		if entityIDStr := c.Query("entity_id"); entityIDStr != "" {
			var eid uint
			if _, err := fmt.Sscan(entityIDStr, &eid); err == nil && eid > 0 {
				dbq = dbq.Where("entity_id = ?", eid)
			}
		}

		if userIDStr := c.Query("user_id"); userIDStr != "" {
			var uid uint
			if _, err := fmt.Sscan(userIDStr, &uid); err == nil && uid > 0 {
				dbq = dbq.Where("user_id = ?", uid)
			}
		}

		if severity := c.Query("severity"); severity != "" {
			dbq = dbq.Where("severity = ?", severity)
		}

		var logs []models.AuditLog
		if err := dbq.Order("id DESC").Limit(500).Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list audit logs")
		}

		return c.JSON(logs)
	}
}

// GET /api/admin/audit-logs/verify?after_id=0&limit=100
// Without parameters the whole trail is walked and only failures returned.
func VerifyAuditLogsHandler(verifier *Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		afterIDStr := c.Query("after_id")
		limitStr := c.Query("limit")

		if afterIDStr == "" && limitStr == "" {
			failures, err := verifier.VerifyAll()
			if err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, "Verification failed to complete")
			}
			if len(failures) > 0 {
				log.Printf("[CRITICAL] audit trail verification found %d tampered rows", len(failures))
			}
			return c.JSON(fiber.Map{
				"ok":       len(failures) == 0,
				"failures": failures,
			})
		}

		var afterID uint
		fmt.Sscan(afterIDStr, &afterID)
		limit := 100
		fmt.Sscan(limitStr, &limit)

		results, next, err := verifier.Verify(afterID, limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Verification failed to complete")
		}

		return c.JSON(fiber.Map{
			"results": results,
			"next_id": next,
		})
	}
}
