package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"app/internal/model"
)

func TestDebitFailsClosed(t *testing.T) {
	t.Parallel()

	repo := NewMemLedgerRepo(model.PlanFree, 10)
	ctx := context.Background()

	remaining, err := repo.Debit(ctx, "a@example.com", 4)
	if err != nil {
		t.Fatalf("Debit error: %v", err)
	}
	if remaining != 6 {
		t.Fatalf("remaining = %d, want 6", remaining)
	}

	remaining, err = repo.Debit(ctx, "a@example.com", 7)
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if remaining != 6 {
		t.Fatalf("failed debit changed balance: remaining = %d, want 6", remaining)
	}
}

func TestDebitExactBalance(t *testing.T) {
	t.Parallel()

	repo := NewMemLedgerRepo(model.PlanFree, 5)
	remaining, err := repo.Debit(context.Background(), "a@example.com", 5)
	if err != nil {
		t.Fatalf("Debit error: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("remaining = %d, want 0", remaining)
	}
}

func TestConcurrentDebitsNeverOverspend(t *testing.T) {
	t.Parallel()

	const balance = 10
	const workers = 25
	repo := NewMemLedgerRepo(model.PlanFree, balance)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Debit(ctx, "a@example.com", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != balance {
		t.Fatalf("succeeded = %d, want %d", succeeded, balance)
	}
	account, err := repo.Get(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if account.Credits != 0 {
		t.Fatalf("final balance = %d, want 0", account.Credits)
	}
}

func TestApplyPlanOverwrites(t *testing.T) {
	t.Parallel()

	repo := NewMemLedgerRepo(model.PlanFree, 10)
	ctx := context.Background()

	if err := repo.ApplyPlan(ctx, "a@example.com", model.PlanCreatorMonth, 100, model.SubStatusActive, "cus_123"); err != nil {
		t.Fatalf("ApplyPlan error: %v", err)
	}
	if _, err := repo.Debit(ctx, "a@example.com", 30); err != nil {
		t.Fatalf("Debit error: %v", err)
	}

	// Replaying the same grant restores the allotment, it does not stack.
	if err := repo.ApplyPlan(ctx, "a@example.com", model.PlanCreatorMonth, 100, model.SubStatusActive, ""); err != nil {
		t.Fatalf("ApplyPlan replay error: %v", err)
	}
	account, err := repo.Get(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if account.Credits != 100 {
		t.Fatalf("credits = %d, want 100", account.Credits)
	}
	if account.PaymentCustomerRef == nil || *account.PaymentCustomerRef != "cus_123" {
		t.Fatal("empty customerRef on replay must preserve the bound customer")
	}
}

func TestClaimInviteBonusOnce(t *testing.T) {
	t.Parallel()

	repo := NewMemLedgerRepo(model.PlanFree, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, claimed, err := repo.ClaimInviteBonus(ctx, "a@example.com", 20)
			if err != nil {
				t.Errorf("ClaimInviteBonus error: %v", err)
				return
			}
			if claimed {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claims != 1 {
		t.Fatalf("claims = %d, want exactly 1", claims)
	}
	account, err := repo.Get(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if account.Credits != 30 {
		t.Fatalf("credits = %d, want 30", account.Credits)
	}
	if !account.InviteUsed {
		t.Fatal("InviteUsed not set")
	}
}

func TestGetByCustomerRef(t *testing.T) {
	t.Parallel()

	repo := NewMemLedgerRepo(model.PlanFree, 10)
	ctx := context.Background()

	if err := repo.ApplyPlan(ctx, "a@example.com", model.PlanStudioMonth, 500, model.SubStatusActive, "cus_abc"); err != nil {
		t.Fatalf("ApplyPlan error: %v", err)
	}

	account, err := repo.GetByCustomerRef(ctx, "cus_abc")
	if err != nil {
		t.Fatalf("GetByCustomerRef error: %v", err)
	}
	if account == nil || account.Email != "a@example.com" {
		t.Fatalf("GetByCustomerRef = %+v, want a@example.com", account)
	}

	missing, err := repo.GetByCustomerRef(ctx, "cus_unknown")
	if err != nil {
		t.Fatalf("GetByCustomerRef error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown customer, got %+v", missing)
	}
}
