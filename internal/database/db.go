package database

import (
	"log"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/config"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		TranslateError: true, // unique violations surface as gorm.ErrDuplicatedKey
	})
	if err != nil {
		log.Fatalf("Could not connect to the database: %v", err)
	}

	err = DB.AutoMigrate(
		&models.User{},
		&models.Setting{},
		&models.LedgerEntry{},
		&models.ApprovalChain{},
		&models.ApprovalRequest{},
		&models.AuditLog{},
	)
	if err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	// The audit table is append-only at the storage layer, not just by
	// application discipline. AutoMigrate cannot express triggers or CHECK
	// constraints, so they are installed by hand here.
	installAuditGuards(DB)

	log.Println("Database connected, migrations complete.")
}

// installAuditGuards makes audit_logs immutable for every database role short
// of a schema migration: unconditional-reject triggers on UPDATE and DELETE,
// and a CHECK constraint rejecting inserts with a malformed checksum.
func installAuditGuards(db *gorm.DB) {
	if err := db.Exec(`
		CREATE OR REPLACE FUNCTION reject_audit_log_change() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'audit logs are immutable';
		END;
		$$ LANGUAGE plpgsql
	`).Error; err != nil {
		log.Fatalf("Could not create audit guard function: %v", err)
	}

	for _, stmt := range []string{
		`DROP TRIGGER IF EXISTS audit_logs_no_update ON audit_logs`,
		`CREATE TRIGGER audit_logs_no_update BEFORE UPDATE ON audit_logs
			FOR EACH ROW EXECUTE FUNCTION reject_audit_log_change()`,
		`DROP TRIGGER IF EXISTS audit_logs_no_delete ON audit_logs`,
		`CREATE TRIGGER audit_logs_no_delete BEFORE DELETE ON audit_logs
			FOR EACH ROW EXECUTE FUNCTION reject_audit_log_change()`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			log.Fatalf("Could not install audit trigger: %v", err)
		}
	}

	// Well-formedness only; checksums are recomputed out of band by the
	// integrity verifier, never on the write path.
	var constraintExists bool
	db.Raw(`
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.table_constraints
			WHERE table_name = 'audit_logs'
			AND constraint_name = 'chk_audit_logs_checksum'
		)
	`).Scan(&constraintExists)

	if !constraintExists {
		if err := db.Exec(`
			ALTER TABLE audit_logs
			ADD CONSTRAINT chk_audit_logs_checksum
			CHECK (checksum ~ '^[0-9a-f]{32}$')
		`).Error; err != nil {
			log.Fatalf("Could not install audit checksum constraint: %v", err)
		}
	}
}
