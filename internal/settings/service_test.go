package settings

import (
	"errors"
	"testing"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/apperr"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/auth"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/testutil"
)

func principal() auth.Principal {
	return auth.Principal{ID: 1, Name: "Admin", Role: models.RoleAdmin}
}

func TestCentralExchangeRateMissing(t *testing.T) {
	svc := NewService(testutil.NewDB(t))

	_, err := svc.CentralExchangeRate()
	if !errors.Is(err, apperr.ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
}

func TestCentralExchangeRateInvalid(t *testing.T) {
	svc := NewService(testutil.NewDB(t))

	for _, value := range []string{"0", "-5", "not-a-number"} {
		if _, err := svc.Set(models.SettingCentralExchangeRate, value, "", principal()); err != nil {
			t.Fatalf("set %q: %v", value, err)
		}

		_, err := svc.CentralExchangeRate()
		if !errors.Is(err, apperr.ErrConfigurationMissing) {
			t.Fatalf("value %q: expected ErrConfigurationMissing, got %v", value, err)
		}
	}
}

func TestCentralExchangeRateResolves(t *testing.T) {
	svc := NewService(testutil.NewDB(t))

	if _, err := svc.Set(models.SettingCentralExchangeRate, "57.5", "", principal()); err != nil {
		t.Fatal(err)
	}

	rate, err := svc.CentralExchangeRate()
	if err != nil {
		t.Fatal(err)
	}
	if rate.String() != "57.5" {
		t.Fatalf("expected rate 57.5, got %s", rate)
	}
}

func TestSetWritesAuditRecord(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)

	if _, err := svc.Set(models.SettingAllowNegativeBalance, "false", "", principal()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Set(models.SettingAllowNegativeBalance, "true", "", principal()); err != nil {
		t.Fatal(err)
	}

	var logs []models.AuditLog
	if err := db.Where("entity_type = ?", "setting").Order("id ASC").Find(&logs).Error; err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(logs))
	}

	if logs[0].Action != models.AuditActionCreate || logs[0].OldValues != "null" {
		t.Fatalf("first mutation should be an audited create with null old values, got %s / %s",
			logs[0].Action, logs[0].OldValues)
	}
	if logs[1].Action != models.AuditActionUpdate || logs[1].OldValues == "null" {
		t.Fatalf("second mutation should be an audited update carrying the old value, got %s / %s",
			logs[1].Action, logs[1].OldValues)
	}
}

func TestNegativeBalanceAllowed(t *testing.T) {
	svc := NewService(testutil.NewDB(t))

	if svc.NegativeBalanceAllowed() {
		t.Fatal("negative balance must default to disallowed")
	}

	if _, err := svc.Set(models.SettingAllowNegativeBalance, "true", "", principal()); err != nil {
		t.Fatal(err)
	}
	if !svc.NegativeBalanceAllowed() {
		t.Fatal("expected negative balance to be allowed after setting")
	}

	if _, err := svc.Set(models.SettingAllowNegativeBalance, "garbage", "", principal()); err != nil {
		t.Fatal(err)
	}
	if svc.NegativeBalanceAllowed() {
		t.Fatal("unparsable value must fall back to disallowed")
	}
}

func TestSetValidation(t *testing.T) {
	svc := NewService(testutil.NewDB(t))

	var validationErr *apperr.ValidationError
	if _, err := svc.Set("", "1", "", principal()); !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error for empty key, got %v", err)
	}
	if _, err := svc.Set("SOME_KEY", " ", "", principal()); !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error for blank value, got %v", err)
	}
}
