package config

import (
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`
	AppBaseURL  string `envconfig:"APP_BASE_URL" default:"https://boostugc.app"`

	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`

	// Session / auth secrets. Left non-required here because production may
	// resolve them through Secret Manager; ValidateSecrets enforces presence
	// before the server starts taking traffic.
	SessionSecret    string `envconfig:"SESSION_SECRET"`
	SessionCookie    string `envconfig:"SESSION_COOKIE_NAME" default:"boostugc_session"`
	SessionTTLDays   int    `envconfig:"SESSION_TTL_DAYS" default:"14"`
	ChallengeTTLMin  int    `envconfig:"CHALLENGE_TTL_MIN" default:"10"`
	LinkTokenTTLMin  int    `envconfig:"LINK_TOKEN_TTL_MIN" default:"15"`
	AdminEmails      string `envconfig:"ADMIN_EMAILS"`
	SecureCookies    bool   `envconfig:"SECURE_COOKIES" default:"true"`
	AllowedOrigins   string `envconfig:"ALLOWED_ORIGINS" default:"*"`
	SecretNamePrefix string `envconfig:"SECRET_NAME_PREFIX" default:"boostugc"`

	// Stripe settings
	StripeSecretKey          string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret      string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripePriceCreatorMonth  string `envconfig:"STRIPE_PRICE_CREATOR_MONTHLY"`
	StripePriceCreatorAnnual string `envconfig:"STRIPE_PRICE_CREATOR_ANNUAL"`
	StripePriceStudioMonth   string `envconfig:"STRIPE_PRICE_STUDIO_MONTHLY"`
	StripePriceStudioAnnual  string `envconfig:"STRIPE_PRICE_STUDIO_ANNUAL"`
	StripePortalReturnURL    string `envconfig:"STRIPE_PORTAL_RETURN_URL" default:"https://boostugc.app/account"`

	// Mail settings
	ResendAPIKey string `envconfig:"RESEND_API_KEY"`
	MailFrom     string `envconfig:"MAIL_FROM" default:"BoostUGC <login@boostugc.app>"`
	MailBaseURL  string `envconfig:"MAIL_BASE_URL" default:"https://api.resend.com"`

	// Generated asset storage (S3-compatible)
	S3URL       string `envconfig:"S3_URL"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"boostugc-assets"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`

	// Event publishing
	GCPProjectID       string `envconfig:"GCP_PROJECT_ID"`
	AccountEventsTopic string `envconfig:"ACCOUNT_EVENTS_TOPIC" default:"account-events"`

	// Generation collaborators
	ImageServiceURL       string `envconfig:"IMAGE_SERVICE_URL"`
	VideoServiceURL       string `envconfig:"VIDEO_SERVICE_URL"`
	GenerationTimeoutSec  int    `envconfig:"GENERATION_TIMEOUT_SEC" default:"60"`
	MailSendTimeoutSec    int    `envconfig:"MAIL_SEND_TIMEOUT_SEC" default:"10"`
	MailSendMaxRetries    uint64 `envconfig:"MAIL_SEND_MAX_RETRIES" default:"3"`
	PresignedURLExpirySec int    `envconfig:"PRESIGNED_URL_EXPIRY_SEC" default:"3600"`

	// Video job queue settings
	VideoQueueName         string `envconfig:"VIDEO_QUEUE_NAME" default:"video_queue"`
	VideoDeadLetterQueue   string `envconfig:"VIDEO_DEAD_LETTER_QUEUE_NAME" default:"video_queue_dlq"`
	VideoPollTimeoutSec    int    `envconfig:"VIDEO_POLL_TIMEOUT_SEC" default:"30"`
	VideoPollMaxMsg        int    `envconfig:"VIDEO_POLL_MAX_MSG" default:"1"`
	VideoMaxRetries        int    `envconfig:"VIDEO_MAX_RETRIES" default:"5"`
	VideoBackoffInitialSec int    `envconfig:"VIDEO_BACKOFF_INITIAL_SEC" default:"1"`
	VideoBackoffMaxSec     int    `envconfig:"VIDEO_BACKOFF_MAX_SEC" default:"60"`

	// Credit allotments per plan; grants replace (not add to) the balance.
	FreeCredits          int `envconfig:"FREE_CREDITS" default:"10"`
	CreatorMonthCredits  int `envconfig:"CREATOR_MONTHLY_CREDITS" default:"100"`
	CreatorAnnualCredits int `envconfig:"CREATOR_ANNUAL_CREDITS" default:"1200"`
	StudioMonthCredits   int `envconfig:"STUDIO_MONTHLY_CREDITS" default:"500"`
	StudioAnnualCredits  int `envconfig:"STUDIO_ANNUAL_CREDITS" default:"6000"`
	GraceCredits         int `envconfig:"GRACE_CREDITS" default:"2"`
	InviteBonusCredits   int `envconfig:"INVITE_BONUS_CREDITS" default:"20"`
	ImageCost            int `envconfig:"IMAGE_COST" default:"1"`
	VideoCost            int `envconfig:"VIDEO_COST" default:"5"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateSecrets fails fast when a signing or webhook secret is still
// missing after env and Secret Manager resolution. Running without them
// would silently degrade into unsigned sessions or unverified webhooks.
func (c *Config) ValidateSecrets() error {
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is not configured")
	}
	if c.StripeWebhookSecret == "" && c.Environment != "development" {
		return errors.New("STRIPE_WEBHOOK_SECRET is not configured")
	}
	return nil
}

// CreditsForPlan returns the credit allotment granted when the given plan is
// (re)applied.
func (c *Config) CreditsForPlan(p model.Plan) int {
	switch p {
	case model.PlanFree:
		return c.FreeCredits
	case model.PlanCreatorMonth:
		return c.CreatorMonthCredits
	case model.PlanCreatorAnnual:
		return c.CreatorAnnualCredits
	case model.PlanStudioMonth:
		return c.StudioMonthCredits
	case model.PlanStudioAnnual:
		return c.StudioAnnualCredits
	default:
		return 0
	}
}

// PriceForPlan maps an internal plan to the configured Stripe price ID.
func (c *Config) PriceForPlan(p model.Plan) (string, error) {
	switch p {
	case model.PlanCreatorMonth:
		return c.StripePriceCreatorMonth, nil
	case model.PlanCreatorAnnual:
		return c.StripePriceCreatorAnnual, nil
	case model.PlanStudioMonth:
		return c.StripePriceStudioMonth, nil
	case model.PlanStudioAnnual:
		return c.StripePriceStudioAnnual, nil
	default:
		return "", fmt.Errorf("plan %q is not purchasable", p)
	}
}

// PlanForPrice maps a Stripe price ID from a webhook event back to the
// internal plan.
func (c *Config) PlanForPrice(priceID string) (model.Plan, bool) {
	switch priceID {
	case "":
		return model.PlanNone, false
	case c.StripePriceCreatorMonth:
		return model.PlanCreatorMonth, true
	case c.StripePriceCreatorAnnual:
		return model.PlanCreatorAnnual, true
	case c.StripePriceStudioMonth:
		return model.PlanStudioMonth, true
	case c.StripePriceStudioAnnual:
		return model.PlanStudioAnnual, true
	default:
		return model.PlanNone, false
	}
}
