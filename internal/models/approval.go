package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RoleList is a jsonb-backed list of roles allowed to decide a request.
type RoleList []UserRole

func (r RoleList) Value() (driver.Value, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *RoleList) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	case nil:
		*r = nil
		return nil
	default:
		return fmt.Errorf("unsupported role list source %T", src)
	}
}

func (r RoleList) Contains(role UserRole) bool {
	for _, v := range r {
		if v == role {
			return true
		}
	}
	return false
}

// ApprovalChain maps an operation type and amount range to a required
// approval step. At most one chain wins per (operationType, amount):
// highest priority, tie-break lowest id.
type ApprovalChain struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	OperationType string           `gorm:"size:50;index;not null" json:"operation_type"`
	MinAmount     decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"min_amount"`
	MaxAmount     *decimal.Decimal `gorm:"type:decimal(20,4)" json:"max_amount"` // nil = unbounded
	IsActive      bool             `gorm:"not null;default:true" json:"is_active"`
	Priority      int              `gorm:"not null;default:0" json:"priority"`

	RequiredApproverRoles RoleList `gorm:"type:jsonb;not null" json:"required_approver_roles"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// ApprovalRequest carries a deferred operation. Created pending, transitions
// exactly once to approved or rejected, terminal thereafter.
type ApprovalRequest struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	ChainID       uint            `gorm:"index;not null" json:"chain_id"`
	OperationType string          `gorm:"size:50;index;not null" json:"operation_type"`
	OperationData string          `gorm:"type:jsonb;not null" json:"operation_data"` // serialized deferred operation
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`

	RequestedBy uint           `gorm:"index;not null" json:"requested_by"`
	Status      ApprovalStatus `gorm:"size:20;index;not null;default:'pending'" json:"status"`

	DecidedBy *uint      `json:"decided_by"`
	DecidedAt *time.Time `json:"decided_at"`
	Comments  string     `gorm:"size:500" json:"comments"`

	// Entity created when the deferred operation executed on approval.
	ResultEntityID *uint `json:"result_entity_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
