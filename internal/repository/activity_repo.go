package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityRepository is the append-only, capped per-user event log. It is
// bounded at model.ActivityLogCap entries per email; the oldest entries are
// evicted first.
type ActivityRepository interface {
	Append(ctx context.Context, email, typ string, meta map[string]any) (*model.ActivityRecord, error)
	// List returns records most-recent-first, at most limit entries.
	List(ctx context.Context, email string, limit int) ([]model.ActivityRecord, error)
}

type postgresActivityRepo struct {
	pool *pgxpool.Pool
}

// NewActivityRepo creates a Postgres-backed ActivityRepository.
func NewActivityRepo(pool *pgxpool.Pool) ActivityRepository {
	return &postgresActivityRepo{pool: pool}
}

func (r *postgresActivityRepo) Append(ctx context.Context, email, typ string, meta map[string]any) (*model.ActivityRecord, error) {
	rec := &model.ActivityRecord{
		ID:        uuid.NewString(),
		Email:     email,
		Type:      typ,
		Timestamp: time.Now(),
		Meta:      meta,
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal activity meta for %s: %w", email, err)
	}
	const insertQ = `
        INSERT INTO activity_records (id, email, type, meta, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	if _, err := r.pool.Exec(ctx, insertQ, rec.ID, rec.Email, rec.Type, rawMeta, rec.Timestamp); err != nil {
		return nil, fmt.Errorf("append activity for %s: %w", email, err)
	}
	const trimQ = `
        DELETE FROM activity_records
        WHERE email = $1 AND id NOT IN (
            SELECT id FROM activity_records
            WHERE email = $1
            ORDER BY created_at DESC
            LIMIT $2
        )
    `
	if _, err := r.pool.Exec(ctx, trimQ, email, model.ActivityLogCap); err != nil {
		return nil, fmt.Errorf("trim activity log for %s: %w", email, err)
	}
	return rec, nil
}

func (r *postgresActivityRepo) List(ctx context.Context, email string, limit int) ([]model.ActivityRecord, error) {
	if limit <= 0 || limit > model.ActivityLogCap {
		limit = model.ActivityLogCap
	}
	const q = `
        SELECT id, email, type, meta, created_at
        FROM activity_records
        WHERE email = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.pool.Query(ctx, q, email, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity for %s: %w", email, err)
	}
	defer rows.Close()

	var recs []model.ActivityRecord
	for rows.Next() {
		var rec model.ActivityRecord
		var rawMeta []byte
		if err := rows.Scan(&rec.ID, &rec.Email, &rec.Type, &rawMeta, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity for %s: %w", email, err)
		}
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &rec.Meta); err != nil {
				return nil, fmt.Errorf("unmarshal activity meta for %s: %w", email, err)
			}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activity rows for %s: %w", email, err)
	}
	return recs, nil
}
