package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/apperr"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/auth"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"

	"gorm.io/gorm"
)

// Event describes one mutation to be recorded on the trail.
type Event struct {
	Action          models.AuditAction
	EntityType      string
	EntityID        uint
	OldValues       any
	NewValues       any
	Severity        models.AuditSeverity
	BusinessContext string
}

// Checksum computes the audit checksum: first 32 hex chars of SHA-256 over
// the canonical pipe-joined encoding. The timestamp enters as unix
// microseconds, matching Postgres timestamp precision, so the digest is
// reproducible from the stored row.
func Checksum(action models.AuditAction, entityType string, entityID uint, oldJSON, newJSON string, userID uint, ts time.Time) string {
	canonical := fmt.Sprintf("%s|%s|%d|%s|%s|%d|%d",
		action, entityType, entityID, oldJSON, newJSON, userID, ts.UnixMicro())
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:32]
}

// Record writes one immutable audit row inside the caller's transaction, so
// the mutation and its audit record commit atomically or neither does.
func Record(tx *gorm.DB, p auth.Principal, e Event) (*models.AuditLog, error) {
	// jsonb columns need the JSON literal "null", not an empty string.
	oldStr := marshalSnapshot(e.OldValues)
	newStr := marshalSnapshot(e.NewValues)

	if e.Severity == "" {
		e.Severity = models.SeverityInfo
	}

	ts := time.Now().UTC().Truncate(time.Microsecond)

	row := models.AuditLog{
		Action:          e.Action,
		EntityType:      e.EntityType,
		EntityID:        e.EntityID,
		OldValues:       oldStr,
		NewValues:       newStr,
		UserID:          p.ID,
		UserName:        p.Name,
		Severity:        e.Severity,
		Timestamp:       ts,
		Checksum:        Checksum(e.Action, e.EntityType, e.EntityID, oldStr, newStr, p.ID, ts),
		BusinessContext: e.BusinessContext,
	}

	if err := tx.Create(&row).Error; err != nil {
		return nil, fmt.Errorf("audit record rejected: %w (%w)", err, apperr.ErrIntegrityViolation)
	}

	return &row, nil
}

func marshalSnapshot(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
