package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/apperr"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/approval"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/audit"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/auth"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/numbering"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/settings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OpCapitalEntry is the approval operation type for ledger entry creation.
const OpCapitalEntry = "capital_entry"

// EntityLedgerEntry keys the number pattern and the audit entity type.
const EntityLedgerEntry = "ledger_entry"

type Service struct {
	db       *gorm.DB
	settings *settings.Service
	gate     *approval.Gate
	numbers  *numbering.Generator
}

func NewService(db *gorm.DB, cfg *settings.Service, gate *approval.Gate, numbers *numbering.Generator) *Service {
	numbers.Register(EntityLedgerEntry, numbering.Pattern{
		Table:  "ledger_entries",
		Column: "number",
		Prefix: "CAP",
		Width:  4,
	})
	return &Service{db: db, settings: cfg, gate: gate, numbers: numbers}
}

// CreateEntryInput is the validated operation payload. It doubles as the
// serialized deferred operation carried by an approval request. It has no
// exchange-rate field on purpose: the rate is always resolved server-side.
type CreateEntryInput struct {
	Type        models.EntryType `json:"type"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	Reference   string           `json:"reference"`
	Description string           `json:"description"`
}

// SubmitResult is either a created entry or a deferred approval request id.
type SubmitResult struct {
	Entry     *models.LedgerEntry
	Deferred  bool
	RequestID uint
}

// Submit validates and normalizes the input, then routes it through the
// approval gate. Deferred submissions leave no ledger row behind.
func (s *Service) Submit(input CreateEntryInput, requester auth.Principal) (*SubmitResult, error) {
	if err := s.validate(&input); err != nil {
		return nil, err
	}

	amountBase, _, err := s.normalize(input)
	if err != nil {
		return nil, err
	}

	decision, err := s.gate.Evaluate(OpCapitalEntry, amountBase, input, requester)
	if err != nil {
		return nil, err
	}
	if decision.Deferred {
		return &SubmitResult{Deferred: true, RequestID: decision.RequestID}, nil
	}

	entry, err := s.Execute(input, requester)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Entry: entry}, nil
}

// Execute creates the entry immediately, bypassing the gate. Used for
// gate-cleared submissions and by the approval executor.
func (s *Service) Execute(input CreateEntryInput, requester auth.Principal) (*models.LedgerEntry, error) {
	return s.executeTx(s.db, input, requester)
}

// ExecuteDeferred is the approval gate executor: it deserializes the
// operation carried by an approved request and runs the normal execution
// path inside the deciding transaction.
func (s *Service) ExecuteDeferred(tx *gorm.DB, operationData []byte, requester auth.Principal) (uint, error) {
	var input CreateEntryInput
	if err := json.Unmarshal(operationData, &input); err != nil {
		return 0, fmt.Errorf("could not deserialize deferred operation: %w", err)
	}
	if err := s.validate(&input); err != nil {
		return 0, err
	}

	entry, err := s.executeTx(tx, input, requester)
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}

func (s *Service) validate(input *CreateEntryInput) error {
	switch input.Type {
	case models.EntryTypeIn, models.EntryTypeOut, models.EntryTypeOpening, models.EntryTypeReclass:
		// ok; reverse entries are only created through Reverse
	default:
		return apperr.Validation("invalid entry type %q", input.Type)
	}
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return apperr.Validation("amount must be greater than zero")
	}
	if input.Currency == "" {
		input.Currency = models.BaseCurrency
	}
	if len(input.Description) > 500 {
		return apperr.Validation("description too long")
	}
	return nil
}

// normalize resolves the amount into base currency using the one central
// exchange rate. Client-supplied rates never reach this point.
func (s *Service) normalize(input CreateEntryInput) (amountBase, rate decimal.Decimal, err error) {
	if input.Currency == models.BaseCurrency {
		return input.Amount.Round(2), decimal.NewFromInt(1), nil
	}

	rate, err = s.settings.CentralExchangeRate()
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return input.Amount.DivRound(rate, 2), rate, nil
}

// executeTx performs the atomic create: authoritative balance check, number
// allocation, row insert and audit record, all in one transaction. The
// number allocation is optimistic; a losing writer retries a bounded number
// of times before surfacing a conflict.
func (s *Service) executeTx(db *gorm.DB, input CreateEntryInput, requester auth.Principal) (*models.LedgerEntry, error) {
	amountBase, rate, err := s.normalize(input)
	if err != nil {
		return nil, err
	}

	var entry models.LedgerEntry
	for attempt := 0; attempt < numbering.MaxAttempts; attempt++ {
		err = db.Transaction(func(tx *gorm.DB) error {
			if input.Type == models.EntryTypeOut && !s.settings.NegativeBalanceAllowed() {
				balance, err := s.balanceTx(tx)
				if err != nil {
					return err
				}
				if balance.LessThan(amountBase) {
					return &apperr.InsufficientBalanceError{Shortfall: amountBase.Sub(balance)}
				}
			}

			number, err := s.numbers.Next(tx, EntityLedgerEntry)
			if err != nil {
				return err
			}

			entry = models.LedgerEntry{
				Number:           number,
				Type:             input.Type,
				AmountBase:       amountBase,
				OriginalAmount:   input.Amount,
				OriginalCurrency: input.Currency,
				ExchangeRateUsed: rate,
				Reference:        input.Reference,
				Description:      input.Description,
				CreatedBy:        requester.ID,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}

			_, err = audit.Record(tx, requester, audit.Event{
				Action:          models.AuditActionCreate,
				EntityType:      EntityLedgerEntry,
				EntityID:        entry.ID,
				NewValues:       entry,
				Severity:        models.SeverityInfo,
				BusinessContext: uuid.NewString() + " entry " + number,
			})
			return err
		})

		if err == nil {
			return &entry, nil
		}
		if !numbering.IsDuplicate(err) {
			return nil, err
		}
		// another writer consumed the number, re-read and retry
	}

	return nil, fmt.Errorf("entry number allocation lost %d races: %w", numbering.MaxAttempts, apperr.ErrConflict)
}

// Reverse offsets an entry with a new reverse entry. Only entries carrying a
// reference are reversible; the original row is never touched.
func (s *Service) Reverse(originalID uint, reason string, requester auth.Principal) (*models.LedgerEntry, error) {
	var original models.LedgerEntry
	if err := s.db.First(&original, "id = ?", originalID).Error; err != nil {
		return nil, fmt.Errorf("ledger entry %d: %w", originalID, err)
	}

	if original.Reference == "" {
		return nil, apperr.Validation("entry %s has no reference and cannot be reversed, delete it instead", original.Number)
	}

	var entry models.LedgerEntry
	var err error
	for attempt := 0; attempt < numbering.MaxAttempts; attempt++ {
		err = s.db.Transaction(func(tx *gorm.DB) error {
			number, err := s.numbers.Next(tx, EntityLedgerEntry)
			if err != nil {
				return err
			}

			entry = models.LedgerEntry{
				Number:           number,
				Type:             models.EntryTypeReverse,
				AmountBase:       contribution(original).Neg(),
				OriginalAmount:   original.OriginalAmount,
				OriginalCurrency: original.OriginalCurrency,
				ExchangeRateUsed: original.ExchangeRateUsed,
				Reference:        original.Number,
				Description:      fmt.Sprintf("Reversal of %s: %s", original.Number, reason),
				CreatedBy:        requester.ID,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}

			_, err = audit.Record(tx, requester, audit.Event{
				Action:          models.AuditActionCreate,
				EntityType:      EntityLedgerEntry,
				EntityID:        entry.ID,
				NewValues:       entry,
				Severity:        models.SeverityWarning,
				BusinessContext: uuid.NewString() + " reversal of " + original.Number,
			})
			return err
		})

		if err == nil {
			return &entry, nil
		}
		if !numbering.IsDuplicate(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("entry number allocation lost %d races: %w", numbering.MaxAttempts, apperr.ErrConflict)
}

// Delete removes an entry that has no reference. Referenced entries are
// immutable history and may only be offset by Reverse.
func (s *Service) Delete(id uint, requester auth.Principal) error {
	var entry models.LedgerEntry
	if err := s.db.First(&entry, "id = ?", id).Error; err != nil {
		return fmt.Errorf("ledger entry %d: %w", id, err)
	}

	if entry.Reference != "" {
		return apperr.Validation("entry %s carries a reference and must be reversed, not deleted", entry.Number)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.LedgerEntry{}, "id = ?", id).Error; err != nil {
			return err
		}

		_, err := audit.Record(tx, requester, audit.Event{
			Action:          models.AuditActionDelete,
			EntityType:      EntityLedgerEntry,
			EntityID:        entry.ID,
			OldValues:       entry,
			Severity:        models.SeverityWarning,
			BusinessContext: uuid.NewString() + " deleted entry " + entry.Number,
		})
		return err
	})
}

// Balance derives the running balance by summing entries, never from a
// stored total.
func (s *Service) Balance() (decimal.Decimal, error) {
	return s.balanceTx(s.db)
}

func (s *Service) balanceTx(tx *gorm.DB) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.Model(&models.LedgerEntry{}).
		Select(`COALESCE(SUM(CASE
			WHEN type IN ('in', 'opening') THEN amount_base
			WHEN type = 'out' THEN -amount_base
			WHEN type = 'reverse' THEN amount_base
			ELSE 0
		END), 0)`).
		Scan(&balance).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("could not compute balance: %w", err)
	}
	return balance, nil
}

// contribution is an entry's signed effect on the balance, mirroring the SQL
// in balanceTx.
func contribution(e models.LedgerEntry) decimal.Decimal {
	switch e.Type {
	case models.EntryTypeIn, models.EntryTypeOpening:
		return e.AmountBase
	case models.EntryTypeOut:
		return e.AmountBase.Neg()
	case models.EntryTypeReverse:
		return e.AmountBase // already signed
	default:
		return decimal.Zero
	}
}
