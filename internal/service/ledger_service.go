package service

import (
	"context"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/pubsub"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// LedgerService wraps the ledger repository with activity logging and event
// publishing. Balance changes commit first; a failed activity append or
// event publish is logged, never allowed to undo or mask a committed debit.
type LedgerService interface {
	// GetBalance returns the account, creating it lazily with the free-plan
	// default allotment.
	GetBalance(ctx context.Context, email string) (*model.UserAccount, error)
	// GetByCustomerRef resolves the account bound to a payment-provider
	// customer id, or nil when none is bound.
	GetByCustomerRef(ctx context.Context, customerRef string) (*model.UserAccount, error)
	// Debit consumes credits; repository.ErrInsufficientCredits when the
	// balance is too low, in which case nothing is appended to the log.
	Debit(ctx context.Context, email string, amount int, activityType string) (int, error)
	// Credit adds credits; activityType should be one of the model.Activity*
	// constants and drives the log entry written.
	Credit(ctx context.Context, email string, amount int, activityType string) (int, error)
	// ApplyPlan overwrites the plan and balance with the plan's fixed
	// allotment. Replaying the same billing event is therefore a no-op.
	ApplyPlan(ctx context.Context, email string, plan model.Plan, status, customerRef string) error
	// GrantInviteBonus credits the one-time invitation bonus; the bool is
	// false when the account had already claimed it.
	GrantInviteBonus(ctx context.Context, email string) (int, bool, error)
	RecordLogin(ctx context.Context, email string) error
	RecordLogout(ctx context.Context, email string) error
	ListActivity(ctx context.Context, email string, limit int) ([]model.ActivityRecord, error)
}

type ledgerService struct {
	ledger    repository.LedgerRepository
	activity  repository.ActivityRepository
	publisher pubsub.Publisher
	topic     string
	cfg       *config.Config
	logger    zerolog.Logger
}

// NewLedgerService creates a LedgerService with a scoped logger.
func NewLedgerService(ledger repository.LedgerRepository, activity repository.ActivityRepository, publisher pubsub.Publisher, cfg *config.Config, logger zerolog.Logger) LedgerService {
	return &ledgerService{
		ledger:    ledger,
		activity:  activity,
		publisher: publisher,
		topic:     cfg.AccountEventsTopic,
		cfg:       cfg,
		logger:    logger.With().Str("service", "LedgerService").Logger(),
	}
}

// record appends an activity entry and publishes the matching event. The
// ledger mutation has already committed when this runs.
func (s *ledgerService) record(ctx context.Context, email, typ string, meta map[string]any) {
	if _, err := s.activity.Append(ctx, email, typ, meta); err != nil {
		s.logger.Error().Err(err).Str("email", email).Str("type", typ).Msg("Failed to append activity record")
	}
	payload, err := pubsub.AccountEvent{Email: email, Type: typ, Meta: meta, At: time.Now()}.Encode()
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("Failed to encode account event")
		return
	}
	if _, err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
		s.logger.Error().Err(err).Str("email", email).Str("type", typ).Msg("Failed to publish account event")
	}
}

func (s *ledgerService) GetBalance(ctx context.Context, email string) (*model.UserAccount, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.ledger.GetOrCreate(ctx, email)
}

func (s *ledgerService) GetByCustomerRef(ctx context.Context, customerRef string) (*model.UserAccount, error) {
	return s.ledger.GetByCustomerRef(ctx, customerRef)
}

func (s *ledgerService) Debit(ctx context.Context, email string, amount int, activityType string) (int, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return 0, err
	}
	remaining, err := s.ledger.Debit(ctx, email, amount)
	if err != nil {
		return remaining, err
	}
	s.record(ctx, email, activityType, map[string]any{"delta": -amount})
	return remaining, nil
}

func (s *ledgerService) Credit(ctx context.Context, email string, amount int, activityType string) (int, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return 0, err
	}
	remaining, err := s.ledger.Credit(ctx, email, amount)
	if err != nil {
		return remaining, err
	}
	s.record(ctx, email, activityType, map[string]any{"delta": amount})
	return remaining, nil
}

func (s *ledgerService) ApplyPlan(ctx context.Context, email string, plan model.Plan, status, customerRef string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	credits := s.cfg.CreditsForPlan(plan)
	if plan == model.PlanFree && status == model.SubStatusCanceled {
		credits = s.cfg.GraceCredits
	}
	if err := s.ledger.ApplyPlan(ctx, email, plan, credits, status, customerRef); err != nil {
		return err
	}
	s.record(ctx, email, model.ActivityUpgrade, map[string]any{"plan": string(plan), "credits": credits, "status": status})
	return nil
}

func (s *ledgerService) GrantInviteBonus(ctx context.Context, email string) (int, bool, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return 0, false, err
	}
	remaining, claimed, err := s.ledger.ClaimInviteBonus(ctx, email, s.cfg.InviteBonusCredits)
	if err != nil {
		return 0, false, err
	}
	if claimed {
		s.record(ctx, email, model.ActivityInvite, map[string]any{"bonus": s.cfg.InviteBonusCredits})
	}
	return remaining, claimed, nil
}

func (s *ledgerService) RecordLogin(ctx context.Context, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	s.record(ctx, email, model.ActivityLogin, nil)
	return nil
}

func (s *ledgerService) RecordLogout(ctx context.Context, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	s.record(ctx, email, model.ActivityLogout, nil)
	return nil
}

func (s *ledgerService) ListActivity(ctx context.Context, email string, limit int) ([]model.ActivityRecord, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.activity.List(ctx, email, limit)
}
