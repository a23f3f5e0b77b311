package repository

import (
	"context"
	"sync"
	"time"

	"app/internal/model"
)

// memLedgerRepo is an in-memory LedgerRepository for local development and
// tests. All operations run under one mutex, so the per-email linearization
// contract holds here too; it just does not survive a restart.
type memLedgerRepo struct {
	mu             sync.Mutex
	accounts       map[string]*model.UserAccount
	defaultPlan    model.Plan
	defaultCredits int
}

// NewMemLedgerRepo creates an in-memory LedgerRepository. Not for
// production use.
func NewMemLedgerRepo(defaultPlan model.Plan, defaultCredits int) LedgerRepository {
	return &memLedgerRepo{
		accounts:       make(map[string]*model.UserAccount),
		defaultPlan:    defaultPlan,
		defaultCredits: defaultCredits,
	}
}

// materialize must be called with mu held.
func (r *memLedgerRepo) materialize(email string) *model.UserAccount {
	a, ok := r.accounts[email]
	if !ok {
		a = &model.UserAccount{
			Email:              email,
			Credits:            r.defaultCredits,
			Plan:               r.defaultPlan,
			SubscriptionStatus: model.SubStatusInactive,
			UpdatedAt:          time.Now(),
		}
		r.accounts[email] = a
	}
	return a
}

func (r *memLedgerRepo) GetOrCreate(_ context.Context, email string) (*model.UserAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.materialize(email)
	cp := *a
	return &cp, nil
}

func (r *memLedgerRepo) Get(_ context.Context, email string) (*model.UserAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[email]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *memLedgerRepo) GetByCustomerRef(_ context.Context, customerRef string) (*model.UserAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.PaymentCustomerRef != nil && *a.PaymentCustomerRef == customerRef {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memLedgerRepo) Debit(_ context.Context, email string, amount int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.materialize(email)
	if a.Credits-amount < 0 {
		return a.Credits, ErrInsufficientCredits
	}
	a.Credits -= amount
	a.UpdatedAt = time.Now()
	return a.Credits, nil
}

func (r *memLedgerRepo) Credit(_ context.Context, email string, amount int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.materialize(email)
	a.Credits += amount
	a.UpdatedAt = time.Now()
	return a.Credits, nil
}

func (r *memLedgerRepo) ApplyPlan(_ context.Context, email string, plan model.Plan, credits int, status, customerRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.materialize(email)
	a.Plan = plan
	a.Credits = credits
	a.SubscriptionStatus = status
	if customerRef != "" {
		ref := customerRef
		a.PaymentCustomerRef = &ref
	}
	a.UpdatedAt = time.Now()
	return nil
}

func (r *memLedgerRepo) ClaimInviteBonus(_ context.Context, email string, bonus int) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.materialize(email)
	if a.InviteUsed {
		return a.Credits, false, nil
	}
	a.InviteUsed = true
	a.Credits += bonus
	a.UpdatedAt = time.Now()
	return a.Credits, true, nil
}
