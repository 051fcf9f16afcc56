package approval

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gha-mus/workflu-business-management-sub003/internal/apperr"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/auth"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/models"
	"github.com/Gha-mus/workflu-business-management-sub003/internal/testutil"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const opType = "capital_entry"

func seedChain(t *testing.T, db *gorm.DB, min string, max *string, priority int, roles ...models.UserRole) models.ApprovalChain {
	t.Helper()

	chain := models.ApprovalChain{
		OperationType:         opType,
		MinAmount:             decimal.RequireFromString(min),
		IsActive:              true,
		Priority:              priority,
		RequiredApproverRoles: models.RoleList(roles),
	}
	if max != nil {
		m := decimal.RequireFromString(*max)
		chain.MaxAmount = &m
	}
	if err := db.Create(&chain).Error; err != nil {
		t.Fatal(err)
	}
	return chain
}

func strptr(s string) *string { return &s }

func TestEvaluateNoChainsExecutes(t *testing.T) {
	db := testutil.NewDB(t)
	gate := NewGate(db)
	requester := auth.Principal{ID: 1, Name: "Worker", Role: models.RoleWorker}

	decision, err := gate.Evaluate(opType, decimal.NewFromInt(100), map[string]int{"x": 1}, requester)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Deferred {
		t.Fatal("zero matching chains must execute immediately")
	}

	var count int64
	db.Model(&models.ApprovalRequest{}).Count(&count)
	if count != 0 {
		t.Fatalf("no request may be persisted on immediate execution, found %d", count)
	}
}

func TestEvaluateOutOfRangeExecutes(t *testing.T) {
	db := testutil.NewDB(t)
	gate := NewGate(db)
	seedChain(t, db, "1000", strptr("5000"), 0, models.RoleAdmin)

	decision, err := gate.Evaluate(opType, decimal.NewFromInt(999), nil,
		auth.Principal{ID: 1, Role: models.RoleWorker})
	if err != nil {
		t.Fatal(err)
	}
	if decision.Deferred {
		t.Fatal("amount below min_amount must not match the chain")
	}

	decision, err = gate.Evaluate(opType, decimal.NewFromInt(5001), nil,
		auth.Principal{ID: 1, Role: models.RoleWorker})
	if err != nil {
		t.Fatal(err)
	}
	if decision.Deferred {
		t.Fatal("amount above max_amount must not match the chain")
	}
}

func TestEvaluateMatchDefersExactlyOnce(t *testing.T) {
	db := testutil.NewDB(t)
	gate := NewGate(db)
	chain := seedChain(t, db, "0", nil, 0, models.RoleAdmin)
	requester := auth.Principal{ID: 4, Name: "Worker", Role: models.RoleWorker}

	payload := map[string]string{"amount": "1000", "currency": "ETB"}
	decision, err := gate.Evaluate(opType, decimal.NewFromInt(17), payload, requester)
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Deferred || decision.RequestID == 0 {
		t.Fatalf("expected a deferred decision, got %+v", decision)
	}

	var requests []models.ApprovalRequest
	if err := db.Find(&requests).Error; err != nil {
		t.Fatal(err)
	}
	if len(requests) != 1 {
		t.Fatalf("expected exactly one approval request, got %d", len(requests))
	}

	req := requests[0]
	if req.Status != models.ApprovalStatusPending || req.ChainID != chain.ID || req.RequestedBy != 4 {
		t.Fatalf("unexpected request: %+v", req)
	}

	var stored map[string]string
	if err := json.Unmarshal([]byte(req.OperationData), &stored); err != nil {
		t.Fatal(err)
	}
	if stored["amount"] != "1000" || stored["currency"] != "ETB" {
		t.Fatalf("operation data did not round-trip: %v", stored)
	}
}

func TestEvaluatePicksHighestPriorityLowestID(t *testing.T) {
	db := testutil.NewDB(t)
	gate := NewGate(db)

	seedChain(t, db, "0", nil, 1, models.RoleFinance)
	winner := seedChain(t, db, "0", nil, 5, models.RoleAdmin)
	seedChain(t, db, "0", nil, 5, models.RoleWorker) // same priority, higher id
	inactive := seedChain(t, db, "0", nil, 9, models.RoleAdmin)
	db.Model(&inactive).Update("is_active", false)

	decision, err := gate.Evaluate(opType, decimal.NewFromInt(10), nil,
		auth.Principal{ID: 1, Role: models.RoleWorker})
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Deferred {
		t.Fatal("expected a deferred decision")
	}

	var req models.ApprovalRequest
	if err := db.First(&req, "id = ?", decision.RequestID).Error; err != nil {
		t.Fatal(err)
	}
	if req.ChainID != winner.ID {
		t.Fatalf("expected chain %d to win, got %d", winner.ID, req.ChainID)
	}
}

func TestDecideRejectDiscardsOperation(t *testing.T) {
	db := testutil.NewDB(t)
	gate := NewGate(db)
	seedChain(t, db, "0", nil, 0, models.RoleAdmin)
	requester := testutil.SeedUser(t, db, "worker", models.RoleWorker)

	executed := false
	gate.RegisterExecutor(opType, func(tx *gorm.DB, data []byte, p auth.Principal) (uint, error) {
		executed = true
		return 1, nil
	})

	decision, err := gate.Evaluate(opType, decimal.NewFromInt(10), map[string]int{"x": 1},
		auth.Principal{ID: requester.ID, Name: requester.Name, Role: requester.Role})
	if err != nil {
		t.Fatal(err)
	}

	decider := auth.Principal{ID: 2, Name: "Boss", Role: models.RoleAdmin}
	req, err := gate.Decide(decision.RequestID, false, "not now", decider)
	if err != nil {
		t.Fatal(err)
	}

	if req.Status != models.ApprovalStatusRejected {
		t.Fatalf("expected rejected, got %s", req.Status)
	}
	if executed {
		t.Fatal("rejection must not execute the deferred operation")
	}
	if req.DecidedBy == nil || *req.DecidedBy != decider.ID || req.Comments != "not now" {
		t.Fatalf("decision metadata missing: %+v", req)
	}
}

func TestDecideApproveExecutes(t *testing.T) {
	db := testutil.NewDB(t)
	gate := NewGate(db)
	seedChain(t, db, "0", nil, 0, models.RoleAdmin, models.RoleFinance)
	requester := testutil.SeedUser(t, db, "worker", models.RoleWorker)

	var gotData []byte
	var gotRequester auth.Principal
	gate.RegisterExecutor(opType, func(tx *gorm.DB, data []byte, p auth.Principal) (uint, error) {
		gotData = data
		gotRequester = p
		return 42, nil
	})

	decision, err := gate.Evaluate(opType, decimal.NewFromInt(10), map[string]int{"x": 1},
		auth.Principal{ID: requester.ID, Name: requester.Name, Role: requester.Role})
	if err != nil {
		t.Fatal(err)
	}

	req, err := gate.Decide(decision.RequestID, true, "ok", auth.Principal{ID: 9, Name: "CFO", Role: models.RoleFinance})
	if err != nil {
		t.Fatal(err)
	}

	if req.Status != models.ApprovalStatusApproved {
		t.Fatalf("expected approved, got %s", req.Status)
	}
	if req.ResultEntityID == nil || *req.ResultEntityID != 42 {
		t.Fatalf("result entity id not recorded: %+v", req.ResultEntityID)
	}
	if string(gotData) != `{"x":1}` {
		t.Fatalf("executor received wrong data: %s", gotData)
	}
	// The original requester stays the author of the deferred mutation.
	if gotRequester.ID != requester.ID || gotRequester.Name != requester.Name {
		t.Fatalf("executor received wrong principal: %+v", gotRequester)
	}
}

func TestDecideTwiceConflicts(t *testing.T) {
	db := testutil.NewDB(t)
	gate := NewGate(db)
	seedChain(t, db, "0", nil, 0, models.RoleAdmin)
	requester := testutil.SeedUser(t, db, "worker", models.RoleWorker)

	gate.RegisterExecutor(opType, func(tx *gorm.DB, data []byte, p auth.Principal) (uint, error) {
		return 1, nil
	})

	decision, err := gate.Evaluate(opType, decimal.NewFromInt(10), nil,
		auth.Principal{ID: requester.ID, Name: requester.Name, Role: requester.Role})
	if err != nil {
		t.Fatal(err)
	}

	decider := auth.Principal{ID: 2, Name: "Boss", Role: models.RoleAdmin}
	if _, err := gate.Decide(decision.RequestID, true, "", decider); err != nil {
		t.Fatal(err)
	}

	_, err = gate.Decide(decision.RequestID, false, "", decider)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second decision must be a visible conflict, got %v", err)
	}
}

func TestDecideRequiresApproverRole(t *testing.T) {
	db := testutil.NewDB(t)
	gate := NewGate(db)
	seedChain(t, db, "0", nil, 0, models.RoleAdmin)
	requester := testutil.SeedUser(t, db, "worker", models.RoleWorker)

	decision, err := gate.Evaluate(opType, decimal.NewFromInt(10), nil,
		auth.Principal{ID: requester.ID, Name: requester.Name, Role: requester.Role})
	if err != nil {
		t.Fatal(err)
	}

	_, err = gate.Decide(decision.RequestID, true, "", auth.Principal{ID: 3, Role: models.RoleFinance})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a non-approver role, got %v", err)
	}

	// The failed decision must leave the request pending.
	var req models.ApprovalRequest
	if err := db.First(&req, "id = ?", decision.RequestID).Error; err != nil {
		t.Fatal(err)
	}
	if req.Status != models.ApprovalStatusPending {
		t.Fatalf("request must stay pending, got %s", req.Status)
	}
}

func TestDecideExecutorFailureRollsBack(t *testing.T) {
	db := testutil.NewDB(t)
	gate := NewGate(db)
	seedChain(t, db, "0", nil, 0, models.RoleAdmin)
	requester := testutil.SeedUser(t, db, "worker", models.RoleWorker)

	gate.RegisterExecutor(opType, func(tx *gorm.DB, data []byte, p auth.Principal) (uint, error) {
		return 0, errors.New("downstream refused")
	})

	decision, err := gate.Evaluate(opType, decimal.NewFromInt(10), nil,
		auth.Principal{ID: requester.ID, Name: requester.Name, Role: requester.Role})
	if err != nil {
		t.Fatal(err)
	}

	_, err = gate.Decide(decision.RequestID, true, "", auth.Principal{ID: 2, Role: models.RoleAdmin})
	if err == nil {
		t.Fatal("executor failure must fail the decision")
	}

	var req models.ApprovalRequest
	if err := db.First(&req, "id = ?", decision.RequestID).Error; err != nil {
		t.Fatal(err)
	}
	if req.Status != models.ApprovalStatusPending {
		t.Fatalf("failed decision must roll back to pending, got %s", req.Status)
	}
}
