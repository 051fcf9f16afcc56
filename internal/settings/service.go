package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/apperr"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/audit"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/auth"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service is the single source of configuration for the whole subsystem.
// Callers never accept a client-supplied exchange rate; they resolve it here.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Get(key string) (*models.Setting, error) {
	var setting models.Setting
	if err := s.db.Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("setting %q: %w", key, apperr.ErrConfigurationMissing)
		}
		return nil, err
	}
	return &setting, nil
}

// Set upserts a setting and records the old/new value on the audit trail in
// the same transaction.
func (s *Service) Set(key, value, category string, p auth.Principal) (*models.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.TrimSpace(value) == "" {
		return nil, apperr.Validation("setting key and value are required")
	}
	if category == "" {
		category = models.SettingCategoryFinancial
	}

	var setting models.Setting
	err := s.db.Transaction(func(tx *gorm.DB) error {
		action := models.AuditActionUpdate
		var old *models.Setting

		if err := tx.Where("key = ?", key).First(&setting).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			action = models.AuditActionCreate
			setting = models.Setting{Key: key}
		} else {
			prev := setting
			old = &prev
		}

		setting.Value = value
		setting.Category = category
		if err := tx.Save(&setting).Error; err != nil {
			return fmt.Errorf("could not save setting: %w", err)
		}

		_, err := audit.Record(tx, p, audit.Event{
			Action:          action,
			EntityType:      "setting",
			EntityID:        setting.ID,
			OldValues:       snapshotOrNil(old),
			NewValues:       setting,
			Severity:        models.SeverityWarning,
			BusinessContext: uuid.NewString() + " setting change: " + key,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return &setting, nil
}

// CentralExchangeRate resolves the one canonical FX rate. Absent or
// non-positive values fail hard; there is no fallback rate.
func (s *Service) CentralExchangeRate() (decimal.Decimal, error) {
	setting, err := s.Get(models.SettingCentralExchangeRate)
	if err != nil {
		return decimal.Zero, err
	}

	rate, err := decimal.NewFromString(setting.Value)
	if err != nil || rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("setting %q has invalid value %q: %w",
			models.SettingCentralExchangeRate, setting.Value, apperr.ErrConfigurationMissing)
	}

	return rate, nil
}

// NegativeBalanceAllowed reports whether out entries may drive the running
// balance negative. Default false when unset.
func (s *Service) NegativeBalanceAllowed() bool {
	setting, err := s.Get(models.SettingAllowNegativeBalance)
	if err != nil {
		return false
	}
	allowed, err := strconv.ParseBool(setting.Value)
	if err != nil {
		return false
	}
	return allowed
}

func snapshotOrNil(s *models.Setting) any {
	if s == nil {
		return nil
	}
	return *s
}
