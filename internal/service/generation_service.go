package service

import (
	"context"
	"fmt"
	"time"

	"app/internal/config"
	"app/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobQueue is the subset of the queue client the generation service needs.
type JobQueue interface {
	Send(ctx context.Context, queue string, v any) error
}

// GenerationService fronts the media collaborators with credit accounting.
// The contract is debit first, generate second, refund on failure: an
// account is never left paying for media it did not receive, and never
// receives media it could not pay for.
type GenerationService struct {
	cfg    *config.Config
	ledger LedgerService
	client GenerationClient
	assets AssetStore
	queue  JobQueue
	logger zerolog.Logger
}

// NewGenerationService creates a GenerationService with a scoped logger.
func NewGenerationService(cfg *config.Config, ledger LedgerService, client GenerationClient, assets AssetStore, queue JobQueue, logger zerolog.Logger) *GenerationService {
	return &GenerationService{
		cfg:    cfg,
		ledger: ledger,
		client: client,
		assets: assets,
		queue:  queue,
		logger: logger.With().Str("service", "GenerationService").Logger(),
	}
}

// GenerateImage debits the image cost, calls the image collaborator, stores
// the result and returns a time-limited URL plus the remaining balance. Any
// failure after the debit credits the cost back before returning.
func (s *GenerationService) GenerateImage(ctx context.Context, email, prompt string, image []byte, mimeType string) (string, int, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", 0, err
	}
	cost := s.cfg.ImageCost
	remaining, err := s.ledger.Debit(ctx, email, cost, model.ActivityImage)
	if err != nil {
		return "", remaining, err
	}

	generated, err := s.client.GenerateImage(ctx, prompt, image, mimeType)
	if err != nil {
		return "", s.refund(ctx, email, cost), fmt.Errorf("generate image: %w", err)
	}

	key := "assets/" + uuid.NewString()
	url, err := s.assets.Put(ctx, key, generated, "image/png")
	if err != nil {
		return "", s.refund(ctx, email, cost), fmt.Errorf("store generated image: %w", err)
	}
	s.logger.Info().Str("email", email).Str("key", key).Int("remaining", remaining).Msg("Image generated")
	return url, remaining, nil
}

// EnqueueVideoJob debits the video cost and queues the job for the worker.
// A failed enqueue credits the cost back.
func (s *GenerationService) EnqueueVideoJob(ctx context.Context, email, prompt string) (int, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return 0, err
	}
	cost := s.cfg.VideoCost
	remaining, err := s.ledger.Debit(ctx, email, cost, model.ActivityVideo)
	if err != nil {
		return remaining, err
	}

	job := model.VideoJob{Email: email, Prompt: prompt, Cost: cost, RequestedAt: time.Now()}
	if err := s.queue.Send(ctx, s.cfg.VideoQueueName, job); err != nil {
		return s.refund(ctx, email, cost), fmt.Errorf("enqueue video job: %w", err)
	}
	s.logger.Info().Str("email", email).Int("remaining", remaining).Msg("Video job enqueued")
	return remaining, nil
}

// refund credits back a failed operation's debit and returns the resulting
// balance. A refund failure is logged loudly; the debit has committed and
// needs operator attention.
func (s *GenerationService) refund(ctx context.Context, email string, amount int) int {
	remaining, err := s.ledger.Credit(ctx, email, amount, model.ActivityRefund)
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Int("amount", amount).Msg("Refund failed after generation error")
	}
	return remaining
}
