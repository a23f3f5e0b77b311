package config

import (
	"os"
	"testing"

	"app/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/boostugc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.SessionTTLDays != 14 || cfg.ChallengeTTLMin != 10 {
		t.Fatalf("unexpected TTL defaults: %+v", cfg)
	}
	if cfg.FreeCredits != 10 || cfg.GraceCredits != 2 || cfg.InviteBonusCredits != 20 {
		t.Fatalf("unexpected credit defaults: %+v", cfg)
	}
	if cfg.ImageCost != 1 || cfg.VideoCost != 5 {
		t.Fatalf("unexpected cost defaults: %+v", cfg)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	// t.Setenv registers restoration; the variable must be truly absent for
	// the required check to trip.
	t.Setenv("DATABASE_URL", "placeholder")
	os.Unsetenv("DATABASE_URL")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestValidateSecrets(t *testing.T) {
	t.Parallel()

	cfg := &Config{Environment: "production", StripeWebhookSecret: "whsec"}
	if err := cfg.ValidateSecrets(); err == nil {
		t.Fatal("expected error for missing session secret")
	}

	cfg.SessionSecret = "s"
	if err := cfg.ValidateSecrets(); err != nil {
		t.Fatalf("ValidateSecrets error: %v", err)
	}

	cfg.StripeWebhookSecret = ""
	if err := cfg.ValidateSecrets(); err == nil {
		t.Fatal("expected error for missing webhook secret outside development")
	}

	cfg.Environment = "development"
	if err := cfg.ValidateSecrets(); err != nil {
		t.Fatalf("development must tolerate a missing webhook secret: %v", err)
	}
}

func TestCreditsForPlan(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		FreeCredits:          10,
		CreatorMonthCredits:  100,
		CreatorAnnualCredits: 1200,
		StudioMonthCredits:   500,
		StudioAnnualCredits:  6000,
	}
	cases := map[model.Plan]int{
		model.PlanFree:          10,
		model.PlanCreatorMonth:  100,
		model.PlanCreatorAnnual: 1200,
		model.PlanStudioMonth:   500,
		model.PlanStudioAnnual:  6000,
		model.PlanNone:          0,
	}
	for plan, want := range cases {
		if got := cfg.CreditsForPlan(plan); got != want {
			t.Fatalf("CreditsForPlan(%s) = %d, want %d", plan, got, want)
		}
	}
}

func TestPlanPriceMapping(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		StripePriceCreatorMonth:  "price_cm",
		StripePriceCreatorAnnual: "price_ca",
		StripePriceStudioMonth:   "price_sm",
		StripePriceStudioAnnual:  "price_sa",
	}

	for _, plan := range []model.Plan{model.PlanCreatorMonth, model.PlanCreatorAnnual, model.PlanStudioMonth, model.PlanStudioAnnual} {
		price, err := cfg.PriceForPlan(plan)
		if err != nil {
			t.Fatalf("PriceForPlan(%s) error: %v", plan, err)
		}
		back, ok := cfg.PlanForPrice(price)
		if !ok || back != plan {
			t.Fatalf("PlanForPrice(%s) = (%s, %v), want %s", price, back, ok, plan)
		}
	}

	if _, err := cfg.PriceForPlan(model.PlanFree); err == nil {
		t.Fatal("free plan must not be purchasable")
	}
	if _, ok := cfg.PlanForPrice("price_unknown"); ok {
		t.Fatal("unknown price must not map to a plan")
	}
	if _, ok := cfg.PlanForPrice(""); ok {
		t.Fatal("empty price must not map to a plan")
	}
}
