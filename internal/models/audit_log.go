package models

import "time"

type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
)

type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityCritical AuditSeverity = "critical"
)

// AuditLog is one immutable record per mutation. The audit_logs table carries
// database triggers rejecting every UPDATE and DELETE, and a CHECK constraint
// rejecting inserts whose checksum is not 32 lowercase hex chars.
type AuditLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Action     AuditAction `gorm:"size:20;not null" json:"action"`
	EntityType string      `gorm:"size:50;index;not null" json:"entity_type"`
	EntityID   uint        `gorm:"index;not null" json:"entity_id"`

	// Before and after snapshots as JSON ("null" when absent).
	OldValues string `gorm:"type:jsonb;not null" json:"old_values"`
	NewValues string `gorm:"type:jsonb;not null" json:"new_values"`

	UserID   uint   `gorm:"index;not null" json:"user_id"`
	UserName string `gorm:"size:100;not null" json:"user_name"`

	Severity AuditSeverity `gorm:"size:20;index;not null" json:"severity"`

	// Timestamp is set by the writer, truncated to microseconds, and is part
	// of the checksum input.
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`

	// Checksum is the first 32 hex chars of SHA-256 over the canonical
	// encoding of {action, entityType, entityID, oldValues, newValues,
	// userID, timestamp}.
	Checksum string `gorm:"size:32;not null" json:"checksum"`

	// BusinessContext groups the audit rows of one request (correlation id
	// plus a short human summary).
	BusinessContext string `gorm:"size:255" json:"business_context"`
}
