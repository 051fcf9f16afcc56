// Package testutil provides an isolated sqlite-backed database per test,
// migrated to the same schema and fitted with the same audit-table
// immutability guards the Postgres migrations install.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	// _txlock=immediate makes writers take the write lock at BEGIN, so
	// concurrent transactions queue instead of deadlocking on upgrade.
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") +
		"?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Setting{},
		&models.LedgerEntry{},
		&models.ApprovalChain{},
		&models.ApprovalRequest{},
		&models.AuditLog{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	for _, stmt := range []string{
		`CREATE TRIGGER audit_logs_no_update BEFORE UPDATE ON audit_logs
			BEGIN SELECT RAISE(ABORT, 'audit logs are immutable'); END`,
		`CREATE TRIGGER audit_logs_no_delete BEFORE DELETE ON audit_logs
			BEGIN SELECT RAISE(ABORT, 'audit logs are immutable'); END`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("install audit trigger: %v", err)
		}
	}

	return db
}

// SeedUser inserts a user and returns it, for flows that resolve the
// requesting user from the database.
func SeedUser(t *testing.T, db *gorm.DB, name string, role models.UserRole) models.User {
	t.Helper()

	user := models.User{
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "x",
		Role:         role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}
