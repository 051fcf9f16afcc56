package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/apperr"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/audit"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/auth"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Decision is the outcome of evaluating an operation against the configured
// approval chains.
type Decision struct {
	// Deferred means a pending ApprovalRequest was persisted and the
	// mutating effect has NOT happened yet.
	Deferred  bool
	RequestID uint
}

// ExecutorFunc runs a deferred operation on approval, inside the deciding
// transaction, bypassing the gate so approval cannot recurse. It returns the
// id of the entity the operation created.
type ExecutorFunc func(tx *gorm.DB, operationData []byte, requester auth.Principal) (uint, error)

// Gate intercepts requested operations and decides immediate execution vs.
// deferred approval, based on the configured chains.
type Gate struct {
	db        *gorm.DB
	executors map[string]ExecutorFunc
}

func NewGate(db *gorm.DB) *Gate {
	return &Gate{
		db:        db,
		executors: make(map[string]ExecutorFunc),
	}
}

// RegisterExecutor binds the execution path for one operation type. Wired at
// startup, before any request is served.
func (g *Gate) RegisterExecutor(operationType string, fn ExecutorFunc) {
	g.executors[operationType] = fn
}

// Evaluate matches the operation against active chains. Zero matches means
// execute immediately; otherwise the winning chain defers the operation
// behind a pending ApprovalRequest carrying a serialized copy of it.
func (g *Gate) Evaluate(operationType string, amount decimal.Decimal, operationData any, requester auth.Principal) (Decision, error) {
	chain, err := g.matchChain(g.db, operationType, amount)
	if err != nil {
		return Decision{}, err
	}
	if chain == nil {
		return Decision{}, nil
	}

	data, err := json.Marshal(operationData)
	if err != nil {
		return Decision{}, fmt.Errorf("could not serialize deferred operation: %w", err)
	}

	request := models.ApprovalRequest{
		ChainID:       chain.ID,
		OperationType: operationType,
		OperationData: string(data),
		Amount:        amount,
		RequestedBy:   requester.ID,
		Status:        models.ApprovalStatusPending,
	}

	err = g.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&request).Error; err != nil {
			return fmt.Errorf("could not persist approval request: %w", err)
		}

		_, err := audit.Record(tx, requester, audit.Event{
			Action:          models.AuditActionCreate,
			EntityType:      "approval_request",
			EntityID:        request.ID,
			NewValues:       request,
			Severity:        models.SeverityInfo,
			BusinessContext: uuid.NewString() + " deferred " + operationType,
		})
		return err
	})
	if err != nil {
		return Decision{}, err
	}

	return Decision{Deferred: true, RequestID: request.ID}, nil
}

// matchChain returns the winning chain for (operationType, amount), or nil
// when no active chain covers the amount. Highest priority wins, ties break
// toward the lowest id.
func (g *Gate) matchChain(tx *gorm.DB, operationType string, amount decimal.Decimal) (*models.ApprovalChain, error) {
	var chain models.ApprovalChain
	err := tx.
		Where("operation_type = ? AND is_active = ?", operationType, true).
		Where("min_amount <= ?", amount).
		Where("max_amount IS NULL OR max_amount >= ?", amount).
		Order("priority DESC, id ASC").
		First(&chain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not match approval chains: %w", err)
	}
	return &chain, nil
}

// Decide settles a pending request exactly once. Approval re-invokes the
// registered executor with the deferred operation; rejection discards it.
// A second decision on the same request fails with a conflict, never a
// silent no-op.
func (g *Gate) Decide(requestID uint, approve bool, comments string, decider auth.Principal) (*models.ApprovalRequest, error) {
	var request models.ApprovalRequest

	err := g.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&request, "id = ?", requestID).Error; err != nil {
			return fmt.Errorf("approval request %d: %w", requestID, err)
		}
		prev := request

		var chain models.ApprovalChain
		if err := tx.First(&chain, "id = ?", request.ChainID).Error; err != nil {
			return fmt.Errorf("approval chain %d: %w", request.ChainID, err)
		}
		if !chain.RequiredApproverRoles.Contains(decider.Role) {
			return fmt.Errorf("role %q may not decide this request: %w", decider.Role, apperr.ErrForbidden)
		}

		newStatus := models.ApprovalStatusRejected
		if approve {
			newStatus = models.ApprovalStatusApproved
		}

		// The pending->decided transition happens exactly once; a guarded
		// UPDATE makes double submission visible as a conflict.
		now := time.Now()
		res := tx.Model(&models.ApprovalRequest{}).
			Where("id = ? AND status = ?", request.ID, models.ApprovalStatusPending).
			Updates(map[string]interface{}{
				"status":     newStatus,
				"decided_by": decider.ID,
				"decided_at": now,
				"comments":   comments,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("request %d is already decided: %w", request.ID, apperr.ErrConflict)
		}

		request.Status = newStatus
		request.DecidedBy = &decider.ID
		request.DecidedAt = &now
		request.Comments = comments

		if approve {
			executor, ok := g.executors[request.OperationType]
			if !ok {
				return fmt.Errorf("no executor registered for operation type %q", request.OperationType)
			}

			// The originally requesting principal stays the author of the
			// deferred mutation; the decider is recorded on the request.
			requester := auth.Principal{ID: request.RequestedBy}
			if err := tx.Model(&models.User{}).
				Select("name").
				Where("id = ?", request.RequestedBy).
				Scan(&requester.Name).Error; err != nil {
				return err
			}

			entityID, err := executor(tx, []byte(request.OperationData), requester)
			if err != nil {
				return err
			}

			request.ResultEntityID = &entityID
			if err := tx.Model(&models.ApprovalRequest{}).
				Where("id = ?", request.ID).
				Update("result_entity_id", entityID).Error; err != nil {
				return err
			}
		}

		_, err := audit.Record(tx, decider, audit.Event{
			Action:          models.AuditActionUpdate,
			EntityType:      "approval_request",
			EntityID:        request.ID,
			OldValues:       prev,
			NewValues:       request,
			Severity:        models.SeverityWarning,
			BusinessContext: uuid.NewString() + " decision " + string(request.Status),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &request, nil
}
