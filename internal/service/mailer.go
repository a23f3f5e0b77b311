package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"app/internal/config"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

const resendEmailsEndpoint = "/emails"

// ErrDeliveryUnconfirmed means the provider did not confirm acceptance of
// the send. The login challenge still exists and can be verified, but the
// caller should tell the user delivery could not be confirmed.
var ErrDeliveryUnconfirmed = errors.New("delivery_unconfirmed")

// MailMessage is the outbound mail contract.
type MailMessage struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer is the mail-sending port. Implementations only guarantee that the
// provider accepted the send request, never synchronous delivery.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// NewMailer returns the Resend-backed mailer, or the logging fallback when
// no API key is configured (local development).
func NewMailer(cfg *config.Config, logger zerolog.Logger) Mailer {
	if cfg.ResendAPIKey == "" {
		logger.Warn().Msg("RESEND_API_KEY not set, outbound mail will be logged instead of sent")
		return &logMailer{logger: logger.With().Str("service", "LogMailer").Logger()}
	}
	return &resendMailer{
		client: &http.Client{
			Timeout: time.Duration(cfg.MailSendTimeoutSec) * time.Second,
		},
		baseURL:    cfg.MailBaseURL,
		apiKey:     cfg.ResendAPIKey,
		from:       cfg.MailFrom,
		maxRetries: cfg.MailSendMaxRetries,
		logger:     logger.With().Str("service", "ResendMailer").Logger(),
	}
}

// resendMailer sends through the Resend HTTP API.
type resendMailer struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	from       string
	maxRetries uint64
	logger     zerolog.Logger
}

func (m *resendMailer) Send(ctx context.Context, msg MailMessage) error {
	requestBody := map[string]any{
		"from":    m.from,
		"to":      []string{msg.To},
		"subject": msg.Subject,
	}
	if msg.HTML != "" {
		requestBody["html"] = msg.HTML
	}
	if msg.Text != "" {
		requestBody["text"] = msg.Text
	}
	bodyJSON, err := json.Marshal(requestBody)
	if err != nil {
		return fmt.Errorf("failed to marshal mail request: %w", err)
	}

	backoff := retry.WithMaxRetries(m.maxRetries, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+resendEmailsEndpoint, bytes.NewReader(bodyJSON))
		if err != nil {
			return fmt.Errorf("failed to create mail request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.client.Do(req)
		if err != nil {
			// Network errors and timeouts are worth another attempt.
			return retry.RetryableError(err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(resp.Body)
			return retry.RetryableError(fmt.Errorf("mail provider returned %d: %s", resp.StatusCode, string(body)))
		}
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("mail send rejected with %d: %s", resp.StatusCode, string(body))
		}
		return nil
	})
	if err != nil {
		m.logger.Error().Err(err).Str("to", msg.To).Msg("Failed to send mail")
		return fmt.Errorf("%w: %v", ErrDeliveryUnconfirmed, err)
	}
	return nil
}

// logMailer writes the message to the log. The dev fallback from the spec:
// the code is visible server-side but must never be treated as delivered.
type logMailer struct {
	logger zerolog.Logger
}

func (m *logMailer) Send(_ context.Context, msg MailMessage) error {
	m.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Str("text", msg.Text).Msg("Mail fallback (not delivered)")
	return ErrDeliveryUnconfirmed
}
