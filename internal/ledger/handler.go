package ledger

import (
	"fmt"
	"time"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/auth"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type CreateEntryRequest struct {
	Type        models.EntryType `json:"type"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	Reference   string           `json:"reference"`
	Description string           `json:"description"`

	// Clients sometimes send a rate; it is stripped here and never used.
	// The rate always comes from the central configuration.
	ExchangeRate *decimal.Decimal `json:"exchange_rate"`
}

// POST /api/ledger/entries
func CreateEntryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.FromCtx(c)
		if err != nil {
			return err
		}

		var body CreateEntryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		input := CreateEntryInput{
			Type:        body.Type,
			Amount:      body.Amount,
			Currency:    body.Currency,
			Reference:   body.Reference,
			Description: body.Description,
		}

		result, err := svc.Submit(input, p)
		if err != nil {
			return err
		}

		if result.Deferred {
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"status":              "pending_approval",
				"approval_request_id": result.RequestID,
			})
		}

		return c.Status(fiber.StatusCreated).JSON(result.Entry)
	}
}

// GET /api/ledger/entries?type=in&from=2026-01-01&to=2026-12-31
func ListEntriesHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := svc.db.Model(&models.LedgerEntry{})

		if entryType := c.Query("type"); entryType != "" {
			dbq = dbq.Where("type = ?", entryType)
		}
		if from := c.Query("from"); from != "" {
			d, err := time.Parse("2006-01-02", from)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid 'from' date, expected YYYY-MM-DD")
			}
			dbq = dbq.Where("created_at >= ?", d)
		}
		if to := c.Query("to"); to != "" {
			d, err := time.Parse("2006-01-02", to)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid 'to' date, expected YYYY-MM-DD")
			}
			dbq = dbq.Where("created_at < ?", d.AddDate(0, 0, 1))
		}

		var entries []models.LedgerEntry
		if err := dbq.Order("id DESC").Limit(500).Find(&entries).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list ledger entries")
		}

		return c.JSON(entries)
	}
}

// GET /api/ledger/balance
func BalanceHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		balance, err := svc.Balance()
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"currency": models.BaseCurrency,
			"balance":  balance.StringFixed(2),
		})
	}
}

type ReverseRequest struct {
	Reason string `json:"reason"`
}

// POST /api/ledger/entries/:id/reverse
func ReverseEntryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.FromCtx(c)
		if err != nil {
			return err
		}

		var entryID uint
		if _, err := fmt.Sscan(c.Params("id"), &entryID); err != nil || entryID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid entry id")
		}

		var body ReverseRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Reason == "" {
			return fiber.NewError(fiber.StatusBadRequest, "A reversal reason is required")
		}

		entry, err := svc.Reverse(entryID, body.Reason, p)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(entry)
	}
}

// DELETE /api/ledger/entries/:id
func DeleteEntryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.FromCtx(c)
		if err != nil {
			return err
		}

		var entryID uint
		if _, err := fmt.Sscan(c.Params("id"), &entryID); err != nil || entryID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid entry id")
		}

		if err := svc.Delete(entryID, p); err != nil {
			return err
		}

		return c.JSON(fiber.Map{"message": "Entry deleted"})
	}
}
