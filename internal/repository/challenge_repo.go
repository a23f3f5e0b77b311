package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChallengeRepository stores at most one pending login challenge per email.
type ChallengeRepository interface {
	// Put stores the challenge, superseding any prior one for the email.
	Put(ctx context.Context, ch *model.AuthChallenge) error
	// Get returns the pending challenge or nil when none exists.
	Get(ctx context.Context, email string) (*model.AuthChallenge, error)
	// Delete removes the pending challenge. Deleting an absent challenge is
	// not an error.
	Delete(ctx context.Context, email string) error
	// IncrementAttempts bumps the failed-attempt counter and returns the new
	// value.
	IncrementAttempts(ctx context.Context, email string) (int, error)
}

type postgresChallengeRepo struct {
	pool *pgxpool.Pool
}

// NewChallengeRepo creates a Postgres-backed ChallengeRepository.
func NewChallengeRepo(pool *pgxpool.Pool) ChallengeRepository {
	return &postgresChallengeRepo{pool: pool}
}

func (r *postgresChallengeRepo) Put(ctx context.Context, ch *model.AuthChallenge) error {
	const q = `
        INSERT INTO auth_challenges (email, code, invitation_code, attempts, issued_at, expires_at)
        VALUES ($1, $2, $3, 0, $4, $5)
        ON CONFLICT (email) DO UPDATE
        SET code = EXCLUDED.code,
            invitation_code = EXCLUDED.invitation_code,
            attempts = 0,
            issued_at = EXCLUDED.issued_at,
            expires_at = EXCLUDED.expires_at;
    `
	if _, err := r.pool.Exec(ctx, q, ch.Email, ch.Code, ch.InvitationCode, ch.IssuedAt, ch.ExpiresAt); err != nil {
		return fmt.Errorf("store challenge for %s: %w", ch.Email, err)
	}
	return nil
}

func (r *postgresChallengeRepo) Get(ctx context.Context, email string) (*model.AuthChallenge, error) {
	const q = `
        SELECT email, code, invitation_code, attempts, issued_at, expires_at
        FROM auth_challenges
        WHERE email = $1
    `
	var ch model.AuthChallenge
	err := r.pool.QueryRow(ctx, q, email).Scan(&ch.Email, &ch.Code, &ch.InvitationCode, &ch.Attempts, &ch.IssuedAt, &ch.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch challenge for %s: %w", email, err)
	}
	return &ch, nil
}

func (r *postgresChallengeRepo) Delete(ctx context.Context, email string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM auth_challenges WHERE email = $1`, email); err != nil {
		return fmt.Errorf("delete challenge for %s: %w", email, err)
	}
	return nil
}

func (r *postgresChallengeRepo) IncrementAttempts(ctx context.Context, email string) (int, error) {
	var attempts int
	const q = `UPDATE auth_challenges SET attempts = attempts + 1 WHERE email = $1 RETURNING attempts`
	if err := r.pool.QueryRow(ctx, q, email).Scan(&attempts); err != nil {
		// A concurrent verify may have consumed the challenge; that is the
		// caller's not-found case, not a storage error.
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("increment attempts for %s: %w", email, err)
	}
	return attempts, nil
}
