package audit

import (
	"fmt"
	"regexp"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"

	"gorm.io/gorm"
)

var checksumShape = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Result is the verification outcome for one audit row.
type Result struct {
	ID    uint   `json:"id"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Verifier recomputes audit checksums out of band, for a periodic compliance
// job. It never runs on the write path.
type Verifier struct {
	db *gorm.DB
}

func NewVerifier(db *gorm.DB) *Verifier {
	return &Verifier{db: db}
}

// Verify checks one batch of rows with id > afterID, in id order, and returns
// the results plus the cursor to resume from. A caller can stop and restart
// at any batch boundary.
func (v *Verifier) Verify(afterID uint, limit int) ([]Result, uint, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []models.AuditLog
	if err := v.db.
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, afterID, fmt.Errorf("could not load audit rows: %w", err)
	}

	results := make([]Result, 0, len(rows))
	next := afterID
	for _, row := range rows {
		results = append(results, verifyRow(row))
		next = row.ID
	}

	return results, next, nil
}

// VerifyAll walks every audit row batch by batch and returns only the
// failures. An empty slice means the whole trail checks out.
func (v *Verifier) VerifyAll() ([]Result, error) {
	var failures []Result
	var cursor uint

	for {
		batch, next, err := v.Verify(cursor, 500)
		if err != nil {
			return failures, err
		}
		if len(batch) == 0 {
			return failures, nil
		}
		for _, r := range batch {
			if !r.Valid {
				failures = append(failures, r)
			}
		}
		cursor = next
	}
}

func verifyRow(row models.AuditLog) Result {
	if !checksumShape.MatchString(row.Checksum) {
		return Result{ID: row.ID, Valid: false, Error: "malformed checksum"}
	}

	want := Checksum(row.Action, row.EntityType, row.EntityID,
		row.OldValues, row.NewValues, row.UserID, row.Timestamp)
	if row.Checksum != want {
		return Result{ID: row.ID, Valid: false, Error: "checksum mismatch"}
	}

	return Result{ID: row.ID, Valid: true}
}
