package videojob

import (
	"context"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/pgmq"
	"app/internal/pubsub"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// Queue is the part of the pgmq client the worker uses.
type Queue interface {
	Send(ctx context.Context, queue string, v any) error
	ReadWithPoll(ctx context.Context, queue string, timeout time.Duration, max int) ([]pgmq.Message, error)
	Delete(ctx context.Context, queue string, id int64) error
}

// Run starts the video generation worker. It polls the video queue, calls
// the video collaborator with exponential backoff, and on exhausted retries
// refunds the job's debit and dead-letters the payload.
func Run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, client Queue, ledger service.LedgerService, generator service.GenerationClient, publisher pubsub.Publisher) error {
	queue := cfg.VideoQueueName
	pollTimeout := time.Duration(cfg.VideoPollTimeoutSec) * time.Second
	logger.Info().Str("queue", queue).Msg("Starting video job worker")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down video job worker")
			return nil
		default:
		}

		msgs, err := client.ReadWithPoll(ctx, queue, pollTimeout, cfg.VideoPollMaxMsg)
		if err != nil {
			logger.Error().Err(err).Msg("Error reading video queue")
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		msg := msgs[0]
		logger.Info().Int64("msg_id", msg.ID).Msg("Received video job")

		var job model.VideoJob
		if err := msg.Decode(&job); err != nil {
			// Unparseable payloads can never succeed; drop them.
			logger.Error().Err(err).Msg("Failed to decode video job; deleting message")
			if err := client.Delete(ctx, queue, msg.ID); err != nil {
				logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Error deleting unparseable video job message")
			}
			continue
		}

		videoURL, genErr := generateWithRetry(ctx, cfg, logger, generator, job)
		if genErr != nil {
			handleFailure(ctx, cfg, logger, client, ledger, job, msg.ID, genErr)
			continue
		}

		if err := client.Delete(ctx, queue, msg.ID); err != nil {
			logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Error deleting video job message")
		}

		publishCompletion(ctx, cfg, logger, publisher, job, videoURL)
		logger.Info().Str("email", job.Email).Msg("Video job completed")
	}
}

func generateWithRetry(ctx context.Context, cfg *config.Config, logger zerolog.Logger, generator service.GenerationClient, job model.VideoJob) (string, error) {
	backoff := time.Duration(cfg.VideoBackoffInitialSec) * time.Second
	maxBackoff := time.Duration(cfg.VideoBackoffMaxSec) * time.Second
	var lastErr error
	for attempt := 1; attempt <= cfg.VideoMaxRetries; attempt++ {
		url, err := generator.GenerateVideo(ctx, job.Prompt)
		if err == nil {
			return url, nil
		}
		lastErr = err
		logger.Error().Err(err).Int("attempt", attempt).Str("email", job.Email).Msg("Video generation failed, retrying")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return "", lastErr
}

// handleFailure acknowledges the message first, then dead-letters the payload
// and refunds the enqueue-time debit. The ordering matters: a refund before a
// failed Delete would be paid out again on redelivery, while deleting first
// merely costs another retry round when the refund must wait.
func handleFailure(ctx context.Context, cfg *config.Config, logger zerolog.Logger, client Queue, ledger service.LedgerService, job model.VideoJob, msgID int64, genErr error) {
	if err := client.Delete(ctx, cfg.VideoQueueName, msgID); err != nil {
		logger.Error().Err(err).Int64("msg_id", msgID).Msg("Error deleting failed video job message; leaving for redelivery")
		return
	}

	if err := client.Send(ctx, cfg.VideoDeadLetterQueue, job); err != nil {
		logger.Error().Err(err).Str("dlq", cfg.VideoDeadLetterQueue).Msg("Failed to send video job to dead-letter queue")
	}

	if _, err := ledger.Credit(ctx, job.Email, job.Cost, model.ActivityRefund); err != nil {
		logger.Error().Err(err).Str("email", job.Email).Int("amount", job.Cost).Msg("Failed to refund video job debit")
	}
	logger.Warn().
		Int("attempts", cfg.VideoMaxRetries).
		Str("email", job.Email).
		Err(genErr).
		Msg("Exhausted all video generation retries; refunded and moved job to DLQ")
}

func publishCompletion(ctx context.Context, cfg *config.Config, logger zerolog.Logger, publisher pubsub.Publisher, job model.VideoJob, videoURL string) {
	event := pubsub.AccountEvent{
		Email: job.Email,
		Type:  model.ActivityVideo,
		Meta:  map[string]any{"url": videoURL, "prompt": job.Prompt},
		At:    time.Now(),
	}
	payload, err := event.Encode()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode video completion event")
		return
	}
	if _, err := publisher.Publish(ctx, cfg.AccountEventsTopic, payload); err != nil {
		logger.Error().Err(err).Str("email", job.Email).Msg("Failed to publish video completion event")
	}
}
