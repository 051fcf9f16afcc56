package approval

import (
	"fmt"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/audit"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/auth"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ChainRequest struct {
	OperationType         string           `json:"operation_type"`
	MinAmount             decimal.Decimal  `json:"min_amount"`
	MaxAmount             *decimal.Decimal `json:"max_amount"`
	IsActive              *bool            `json:"is_active"`
	Priority              int              `json:"priority"`
	RequiredApproverRoles models.RoleList  `json:"required_approver_roles"`
}

func (r *ChainRequest) validate() error {
	if r.OperationType == "" {
		return fiber.NewError(fiber.StatusBadRequest, "operation_type is required")
	}
	if len(r.RequiredApproverRoles) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "required_approver_roles must not be empty")
	}
	if r.MinAmount.IsNegative() {
		return fiber.NewError(fiber.StatusBadRequest, "min_amount must not be negative")
	}
	if r.MaxAmount != nil && r.MaxAmount.LessThan(r.MinAmount) {
		return fiber.NewError(fiber.StatusBadRequest, "max_amount must not be below min_amount")
	}
	return nil
}

// POST /api/admin/approval-chains
func CreateChainHandler(gate *Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.FromCtx(c)
		if err != nil {
			return err
		}

		var body ChainRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := body.validate(); err != nil {
			return err
		}

		chain := models.ApprovalChain{
			OperationType:         body.OperationType,
			MinAmount:             body.MinAmount,
			MaxAmount:             body.MaxAmount,
			IsActive:              body.IsActive == nil || *body.IsActive,
			Priority:              body.Priority,
			RequiredApproverRoles: body.RequiredApproverRoles,
		}

		err = gate.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&chain).Error; err != nil {
				return err
			}
			_, err := audit.Record(tx, p, audit.Event{
				Action:          models.AuditActionCreate,
				EntityType:      "approval_chain",
				EntityID:        chain.ID,
				NewValues:       chain,
				Severity:        models.SeverityWarning,
				BusinessContext: uuid.NewString() + " approval chain " + chain.OperationType,
			})
			return err
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(chain)
	}
}

// GET /api/admin/approval-chains
func ListChainsHandler(gate *Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := gate.db.Model(&models.ApprovalChain{})
		if opType := c.Query("operation_type"); opType != "" {
			dbq = dbq.Where("operation_type = ?", opType)
		}

		var chains []models.ApprovalChain
		if err := dbq.Order("priority DESC, id ASC").Find(&chains).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list approval chains")
		}

		return c.JSON(chains)
	}
}

// PUT /api/admin/approval-chains/:id
func UpdateChainHandler(gate *Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.FromCtx(c)
		if err != nil {
			return err
		}

		var chainID uint
		if _, err := fmt.Sscan(c.Params("id"), &chainID); err != nil || chainID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid chain id")
		}

		var body ChainRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := body.validate(); err != nil {
			return err
		}

		var chain models.ApprovalChain
		if err := gate.db.First(&chain, "id = ?", chainID).Error; err != nil {
			return fmt.Errorf("approval chain %d: %w", chainID, err)
		}
		prev := chain

		chain.OperationType = body.OperationType
		chain.MinAmount = body.MinAmount
		chain.MaxAmount = body.MaxAmount
		if body.IsActive != nil {
			chain.IsActive = *body.IsActive
		}
		chain.Priority = body.Priority
		chain.RequiredApproverRoles = body.RequiredApproverRoles

		err = gate.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Save(&chain).Error; err != nil {
				return err
			}
			_, err := audit.Record(tx, p, audit.Event{
				Action:          models.AuditActionUpdate,
				EntityType:      "approval_chain",
				EntityID:        chain.ID,
				OldValues:       prev,
				NewValues:       chain,
				Severity:        models.SeverityWarning,
				BusinessContext: uuid.NewString() + " approval chain " + chain.OperationType,
			})
			return err
		})
		if err != nil {
			return err
		}

		return c.JSON(chain)
	}
}

// DELETE /api/admin/approval-chains/:id
func DeleteChainHandler(gate *Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.FromCtx(c)
		if err != nil {
			return err
		}

		var chainID uint
		if _, err := fmt.Sscan(c.Params("id"), &chainID); err != nil || chainID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid chain id")
		}

		var chain models.ApprovalChain
		if err := gate.db.First(&chain, "id = ?", chainID).Error; err != nil {
			return fmt.Errorf("approval chain %d: %w", chainID, err)
		}

		err = gate.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(&models.ApprovalChain{}, "id = ?", chainID).Error; err != nil {
				return err
			}
			_, err := audit.Record(tx, p, audit.Event{
				Action:          models.AuditActionDelete,
				EntityType:      "approval_chain",
				EntityID:        chainID,
				OldValues:       chain,
				Severity:        models.SeverityWarning,
				BusinessContext: uuid.NewString() + " approval chain " + chain.OperationType,
			})
			return err
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{"message": "Approval chain deleted"})
	}
}

// GET /api/approval-requests?status=pending
func ListRequestsHandler(gate *Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq := gate.db.Model(&models.ApprovalRequest{})
		if status := c.Query("status"); status != "" {
			dbq = dbq.Where("status = ?", status)
		}
		if opType := c.Query("operation_type"); opType != "" {
			dbq = dbq.Where("operation_type = ?", opType)
		}

		var requests []models.ApprovalRequest
		if err := dbq.Order("id DESC").Limit(200).Find(&requests).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list approval requests")
		}

		return c.JSON(requests)
	}
}

type DecideRequest struct {
	Decision string `json:"decision"` // "approve" | "reject"
	Comments string `json:"comments"`
}

// POST /api/approval-requests/:id/decide
func DecideHandler(gate *Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := auth.FromCtx(c)
		if err != nil {
			return err
		}

		var requestID uint
		if _, err := fmt.Sscan(c.Params("id"), &requestID); err != nil || requestID == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request id")
		}

		var body DecideRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		var approve bool
		switch body.Decision {
		case "approve":
			approve = true
		case "reject":
			approve = false
		default:
			return fiber.NewError(fiber.StatusBadRequest, "decision must be 'approve' or 'reject'")
		}

		request, err := gate.Decide(requestID, approve, body.Comments, p)
		if err != nil {
			return err
		}

		return c.JSON(request)
	}
}
