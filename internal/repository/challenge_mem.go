package repository

import (
	"context"
	"sync"

	"app/internal/model"
)

// memChallengeRepo keeps challenges in a mutex-guarded map. TTL enforcement
// stays in the verifier, which checks ExpiresAt on every read.
type memChallengeRepo struct {
	mu         sync.Mutex
	challenges map[string]*model.AuthChallenge
}

// NewMemChallengeRepo creates an in-memory ChallengeRepository. Not for
// production use.
func NewMemChallengeRepo() ChallengeRepository {
	return &memChallengeRepo{challenges: make(map[string]*model.AuthChallenge)}
}

func (r *memChallengeRepo) Put(_ context.Context, ch *model.AuthChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ch
	cp.Attempts = 0
	r.challenges[ch.Email] = &cp
	return nil
}

func (r *memChallengeRepo) Get(_ context.Context, email string) (*model.AuthChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.challenges[email]
	if !ok {
		return nil, nil
	}
	cp := *ch
	return &cp, nil
}

func (r *memChallengeRepo) Delete(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.challenges, email)
	return nil
}

func (r *memChallengeRepo) IncrementAttempts(_ context.Context, email string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.challenges[email]
	if !ok {
		return 0, nil
	}
	ch.Attempts++
	return ch.Attempts, nil
}
