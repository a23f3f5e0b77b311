package service

import (
	"context"
	"fmt"

	"app/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// SecretResolver fills in signing and API secrets that were not provided
// through the environment. Production deployments keep them in GCP Secret
// Manager; local development sets them in .env and never touches this.
type SecretResolver interface {
	Resolve(ctx context.Context, cfg *config.Config) error
	Close() error
}

type gcpSecretResolver struct {
	client    *secretmanager.Client
	projectID string
	prefix    string
	logger    zerolog.Logger
}

// NewSecretResolver creates a Secret Manager backed resolver. Requires a
// configured GCP project.
func NewSecretResolver(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (SecretResolver, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP project ID is not set for the current environment")
	}
	// Note: Secret Manager requires a real GCP project even for local use;
	// development deployments set secrets in .env and skip the resolver.
	var opts []option.ClientOption
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &gcpSecretResolver{
		client:    client,
		projectID: cfg.GCPProjectID,
		prefix:    cfg.SecretNamePrefix,
		logger:    logger.With().Str("service", "SecretResolver").Logger(),
	}, nil
}

// Resolve fetches each secret the environment left empty. Env values win so
// an operator can always override a managed secret locally.
func (r *gcpSecretResolver) Resolve(ctx context.Context, cfg *config.Config) error {
	targets := []struct {
		name string
		dst  *string
	}{
		{"session-secret", &cfg.SessionSecret},
		{"stripe-secret-key", &cfg.StripeSecretKey},
		{"stripe-webhook-secret", &cfg.StripeWebhookSecret},
		{"resend-api-key", &cfg.ResendAPIKey},
	}
	for _, t := range targets {
		if *t.dst != "" {
			continue
		}
		value, err := r.access(ctx, t.name)
		if err != nil {
			return fmt.Errorf("resolve secret %s: %w", t.name, err)
		}
		*t.dst = value
		r.logger.Info().Str("secret", t.name).Msg("Secret resolved from Secret Manager")
	}
	return nil
}

func (r *gcpSecretResolver) access(ctx context.Context, name string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s-%s/versions/latest", r.projectID, r.prefix, name)
	result, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}
	return string(result.Payload.Data), nil
}

func (r *gcpSecretResolver) Close() error {
	return r.client.Close()
}
