package repository

import (
	"context"
	"sync"
	"time"

	"app/internal/model"

	"github.com/google/uuid"
)

// memActivityRepo keeps per-user activity slices, newest first.
type memActivityRepo struct {
	mu      sync.Mutex
	records map[string][]model.ActivityRecord
}

// NewMemActivityRepo creates an in-memory ActivityRepository. Not for
// production use.
func NewMemActivityRepo() ActivityRepository {
	return &memActivityRepo{records: make(map[string][]model.ActivityRecord)}
}

func (r *memActivityRepo) Append(_ context.Context, email, typ string, meta map[string]any) (*model.ActivityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := model.ActivityRecord{
		ID:        uuid.NewString(),
		Email:     email,
		Type:      typ,
		Timestamp: time.Now(),
		Meta:      meta,
	}
	list := append([]model.ActivityRecord{rec}, r.records[email]...)
	if len(list) > model.ActivityLogCap {
		list = list[:model.ActivityLogCap]
	}
	r.records[email] = list
	return &rec, nil
}

func (r *memActivityRepo) List(_ context.Context, email string, limit int) ([]model.ActivityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.records[email]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]model.ActivityRecord, limit)
	copy(out, list[:limit])
	return out, nil
}
