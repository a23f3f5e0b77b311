package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInsufficientCredits is returned when a debit would overdraw the account.
var ErrInsufficientCredits = errors.New("insufficient_credits")

// LedgerRepository is the storage port for per-user credit balances. Debit,
// Credit, ClaimInviteBonus and ApplyPlan must be linearized per email:
// concurrent calls for the same account may never both observe the same
// starting balance.
type LedgerRepository interface {
	// GetOrCreate returns the account, lazily materializing it with the
	// repository's default plan and starting credits.
	GetOrCreate(ctx context.Context, email string) (*model.UserAccount, error)
	// Get returns the account or nil when none exists.
	Get(ctx context.Context, email string) (*model.UserAccount, error)
	// GetByCustomerRef resolves the account bound to a payment-provider
	// customer id, or nil when no account is bound to it.
	GetByCustomerRef(ctx context.Context, customerRef string) (*model.UserAccount, error)
	// Debit atomically subtracts amount and returns the remaining balance.
	// Returns ErrInsufficientCredits (and applies nothing) when the balance
	// is too low. The account is lazily created first, so a brand-new user
	// debits against the plan-default allotment.
	Debit(ctx context.Context, email string, amount int) (int, error)
	// Credit atomically adds amount and returns the remaining balance.
	Credit(ctx context.Context, email string, amount int) (int, error)
	// ApplyPlan overwrites plan, credits and subscription status. Overwrite
	// semantics make repeated application of the same billing event
	// idempotent. customerRef is stored when non-empty.
	ApplyPlan(ctx context.Context, email string, plan model.Plan, credits int, status, customerRef string) error
	// ClaimInviteBonus grants bonus credits once per account. The second
	// return is false when the bonus was already claimed.
	ClaimInviteBonus(ctx context.Context, email string, bonus int) (int, bool, error)
}

type postgresLedgerRepo struct {
	pool           *pgxpool.Pool
	defaultPlan    model.Plan
	defaultCredits int
}

// NewLedgerRepo creates a Postgres-backed LedgerRepository. New accounts
// start on defaultPlan with defaultCredits.
func NewLedgerRepo(pool *pgxpool.Pool, defaultPlan model.Plan, defaultCredits int) LedgerRepository {
	return &postgresLedgerRepo{pool: pool, defaultPlan: defaultPlan, defaultCredits: defaultCredits}
}

const insertAccountQ = `
        INSERT INTO user_accounts (email, credits, plan, subscription_status, invite_used, updated_at)
        VALUES ($1, $2, $3, 'inactive', FALSE, NOW())
        ON CONFLICT (email) DO NOTHING
    `

const selectAccountQ = `
        SELECT email, credits, plan, subscription_status, invite_used, payment_customer_ref, updated_at
        FROM user_accounts
        WHERE email = $1
    `

func scanAccount(row pgx.Row) (*model.UserAccount, error) {
	var a model.UserAccount
	err := row.Scan(&a.Email, &a.Credits, &a.Plan, &a.SubscriptionStatus, &a.InviteUsed, &a.PaymentCustomerRef, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *postgresLedgerRepo) GetOrCreate(ctx context.Context, email string) (*model.UserAccount, error) {
	if _, err := r.pool.Exec(ctx, insertAccountQ, email, r.defaultCredits, r.defaultPlan); err != nil {
		return nil, fmt.Errorf("materialize account %s: %w", email, err)
	}
	a, err := scanAccount(r.pool.QueryRow(ctx, selectAccountQ, email))
	if err != nil {
		return nil, fmt.Errorf("fetch account %s: %w", email, err)
	}
	return a, nil
}

func (r *postgresLedgerRepo) Get(ctx context.Context, email string) (*model.UserAccount, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, selectAccountQ, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch account %s: %w", email, err)
	}
	return a, nil
}

func (r *postgresLedgerRepo) GetByCustomerRef(ctx context.Context, customerRef string) (*model.UserAccount, error) {
	const q = `
        SELECT email, credits, plan, subscription_status, invite_used, payment_customer_ref, updated_at
        FROM user_accounts
        WHERE payment_customer_ref = $1
    `
	a, err := scanAccount(r.pool.QueryRow(ctx, q, customerRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch account by customer ref %s: %w", customerRef, err)
	}
	return a, nil
}

// Debit runs the read-check-write inside a serializable transaction with the
// account row locked, so two concurrent debits of a one-credit account yield
// exactly one success.
func (r *postgresLedgerRepo) Debit(ctx context.Context, email string, amount int) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, fmt.Errorf("starting transaction for debit: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, insertAccountQ, email, r.defaultCredits, r.defaultPlan); err != nil {
		return 0, fmt.Errorf("materialize account %s: %w", email, err)
	}
	var credits int
	const lockQ = `SELECT credits FROM user_accounts WHERE email = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, lockQ, email).Scan(&credits); err != nil {
		return 0, fmt.Errorf("locking account %s for debit: %w", email, err)
	}
	if credits-amount < 0 {
		return credits, ErrInsufficientCredits
	}
	remaining := credits - amount
	const updateQ = `UPDATE user_accounts SET credits = $2, updated_at = NOW() WHERE email = $1`
	if _, err := tx.Exec(ctx, updateQ, email, remaining); err != nil {
		return 0, fmt.Errorf("debiting account %s: %w", email, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing debit for %s: %w", email, err)
	}
	return remaining, nil
}

func (r *postgresLedgerRepo) Credit(ctx context.Context, email string, amount int) (int, error) {
	if _, err := r.pool.Exec(ctx, insertAccountQ, email, r.defaultCredits, r.defaultPlan); err != nil {
		return 0, fmt.Errorf("materialize account %s: %w", email, err)
	}
	var remaining int
	const q = `
        UPDATE user_accounts SET credits = credits + $2, updated_at = NOW()
        WHERE email = $1
        RETURNING credits
    `
	if err := r.pool.QueryRow(ctx, q, email, amount).Scan(&remaining); err != nil {
		return 0, fmt.Errorf("crediting account %s: %w", email, err)
	}
	return remaining, nil
}

func (r *postgresLedgerRepo) ApplyPlan(ctx context.Context, email string, plan model.Plan, credits int, status, customerRef string) error {
	const q = `
        INSERT INTO user_accounts (email, credits, plan, subscription_status, invite_used, payment_customer_ref, updated_at)
        VALUES ($1, $2, $3, $4, FALSE, NULLIF($5, ''), NOW())
        ON CONFLICT (email) DO UPDATE
        SET credits = EXCLUDED.credits,
            plan = EXCLUDED.plan,
            subscription_status = EXCLUDED.subscription_status,
            payment_customer_ref = COALESCE(NULLIF($5, ''), user_accounts.payment_customer_ref),
            updated_at = NOW();
    `
	if _, err := r.pool.Exec(ctx, q, email, credits, plan, status, customerRef); err != nil {
		return fmt.Errorf("applying plan %s to account %s: %w", plan, email, err)
	}
	return nil
}

func (r *postgresLedgerRepo) ClaimInviteBonus(ctx context.Context, email string, bonus int) (int, bool, error) {
	if _, err := r.pool.Exec(ctx, insertAccountQ, email, r.defaultCredits, r.defaultPlan); err != nil {
		return 0, false, fmt.Errorf("materialize account %s: %w", email, err)
	}
	// The invite_used guard in the WHERE clause makes the grant at-most-once
	// even under webhook/login races.
	var remaining int
	const q = `
        UPDATE user_accounts SET credits = credits + $2, invite_used = TRUE, updated_at = NOW()
        WHERE email = $1 AND invite_used = FALSE
        RETURNING credits
    `
	err := r.pool.QueryRow(ctx, q, email, bonus).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			a, gerr := r.Get(ctx, email)
			if gerr != nil {
				return 0, false, gerr
			}
			return a.Credits, false, nil
		}
		return 0, false, fmt.Errorf("claiming invite bonus for %s: %w", email, err)
	}
	return remaining, true, nil
}
