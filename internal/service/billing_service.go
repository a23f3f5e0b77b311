package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"app/internal/config"
	"app/internal/model"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrInvalidSignature rejects webhook payloads that fail signature
// verification; no state is touched for them and the provider must not
// retry.
var ErrInvalidSignature = errors.New("invalid_signature")

// BillingService manages Stripe checkout/portal sessions and applies
// inbound webhook events to the ledger. Every plan-driven grant is a
// replace (ApplyPlan overwrites to the plan's allotment), which is what
// makes redelivered webhook events idempotent.
type BillingService struct {
	cfg    *config.Config
	ledger LedgerService
	logger zerolog.Logger
}

// NewBillingService initializes the Stripe key and returns the service with
// a scoped logger.
func NewBillingService(cfg *config.Config, ledger LedgerService, logger zerolog.Logger) *BillingService {
	stripe.Key = cfg.StripeSecretKey
	return &BillingService{
		cfg:    cfg,
		ledger: ledger,
		logger: logger.With().Str("service", "BillingService").Logger(),
	}
}

// CreateCheckoutSession creates a Stripe Checkout session for a plan
// purchase. Email and plan ride along in metadata so the webhook applier
// can resolve them without extra API round-trips.
func (s *BillingService) CreateCheckoutSession(ctx context.Context, email string, plan model.Plan) (string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	priceID, err := s.cfg.PriceForPlan(plan)
	if err != nil {
		return "", err
	}
	if priceID == "" {
		return "", fmt.Errorf("no price configured for plan %q", plan)
	}
	params := &stripe.CheckoutSessionParams{
		CustomerEmail:      stripe.String(email),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(priceID), Quantity: stripe.Int64(1)}},
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:         stripe.String(s.cfg.StripePortalReturnURL + "?status=success"),
		CancelURL:          stripe.String(s.cfg.StripePortalReturnURL + "?status=cancel"),
		Metadata:           map[string]string{"email": email, "plan": string(plan)},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"email": email, "plan": string(plan)},
		},
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("plan", string(plan)).Msg("Failed to create Stripe checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession creates a Stripe Customer Portal session for the
// account's bound customer.
func (s *BillingService) CreatePortalSession(ctx context.Context, email string) (string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	account, err := s.ledger.GetBalance(ctx, email)
	if err != nil {
		return "", err
	}
	if account.PaymentCustomerRef == nil || *account.PaymentCustomerRef == "" {
		return "", fmt.Errorf("no billing customer for account %s", email)
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*account.PaymentCustomerRef),
		ReturnURL: stripe.String(s.cfg.StripePortalReturnURL),
	}
	sess, err := billingsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("Failed to create Stripe billing portal session")
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// VerifyWebhook checks the Stripe signature and decodes the event. API
// version mismatches are tolerated; the applier only reads stable fields.
func (s *BillingService) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.StripeWebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// HandleWebhook processes Stripe webhook deliveries. Invalid signatures get
// a 400 with no side effects; applier failures get a 500 so Stripe retries;
// unknown event kinds are logged and acknowledged.
func (s *BillingService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	event, err := s.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	s.logger.Info().Str("event_type", string(event.Type)).Msg("Stripe webhook received")

	if err := s.ApplyEvent(r.Context(), event); err != nil {
		s.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to apply Stripe event")
		http.Error(w, "failed to apply event", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ApplyEvent maps one verified Stripe event onto the ledger. Exported
// separately from HandleWebhook so the state machine can be exercised
// without HTTP plumbing.
func (s *BillingService) ApplyEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return fmt.Errorf("invalid checkout.session payload: %w", err)
		}
		return s.applyCheckoutCompleted(ctx, &cs)
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("invalid subscription payload: %w", err)
		}
		return s.applySubscriptionChange(ctx, &sub)
	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("invalid invoice payload: %w", err)
		}
		return s.applyRenewal(ctx, &invoice)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("invalid subscription payload: %w", err)
		}
		return s.applySubscriptionDeleted(ctx, &sub)
	default:
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
		return nil
	}
}

func (s *BillingService) applyCheckoutCompleted(ctx context.Context, cs *stripe.CheckoutSession) error {
	email := cs.Metadata["email"]
	if email == "" && cs.CustomerDetails != nil {
		email = cs.CustomerDetails.Email
	}
	if email == "" {
		return errors.New("checkout session carries no email")
	}
	plan, err := s.resolvePlan(cs.Metadata, cs.Subscription)
	if err != nil {
		return err
	}
	customerRef := ""
	if cs.Customer != nil {
		customerRef = cs.Customer.ID
	}
	return s.ledger.ApplyPlan(ctx, email, plan, model.SubStatusActive, customerRef)
}

func (s *BillingService) applySubscriptionChange(ctx context.Context, sub *stripe.Subscription) error {
	email, err := s.resolveEmail(ctx, sub.Metadata, sub.Customer)
	if err != nil {
		return err
	}
	plan, err := s.resolvePlan(sub.Metadata, sub)
	if err != nil {
		return err
	}
	customerRef := ""
	if sub.Customer != nil {
		customerRef = sub.Customer.ID
	}
	return s.ledger.ApplyPlan(ctx, email, plan, mapSubscriptionStatus(sub.Status), customerRef)
}

// applyRenewal replenishes (not adds to) the account's current plan
// allotment for the new billing period.
func (s *BillingService) applyRenewal(ctx context.Context, invoice *stripe.Invoice) error {
	email, err := s.resolveEmail(ctx, invoice.Metadata, invoice.Customer)
	if err != nil {
		return err
	}
	account, err := s.ledger.GetBalance(ctx, email)
	if err != nil {
		return err
	}
	plan := account.Plan
	if plan == model.PlanNone || plan == model.PlanFree {
		// A paid invoice for an account we have no paid plan for; nothing
		// to replenish until a subscription event names the price.
		s.logger.Warn().Str("email", email).Str("invoice_id", invoice.ID).Msg("Renewal invoice for account without a paid plan")
		return nil
	}
	customerRef := ""
	if invoice.Customer != nil {
		customerRef = invoice.Customer.ID
	}
	return s.ledger.ApplyPlan(ctx, email, plan, model.SubStatusActive, customerRef)
}

func (s *BillingService) applySubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	email, err := s.resolveEmail(ctx, sub.Metadata, sub.Customer)
	if err != nil {
		return err
	}
	return s.ledger.ApplyPlan(ctx, email, model.PlanFree, model.SubStatusCanceled, "")
}

// resolveEmail finds the account email from event metadata, falling back to
// the bound customer ref.
func (s *BillingService) resolveEmail(ctx context.Context, metadata map[string]string, customer *stripe.Customer) (string, error) {
	if email, ok := metadata["email"]; ok && email != "" {
		return email, nil
	}
	if customer == nil || customer.ID == "" {
		return "", errors.New("cannot determine account: missing metadata and customer id")
	}
	account, err := s.ledger.GetByCustomerRef(ctx, customer.ID)
	if err != nil {
		return "", fmt.Errorf("lookup account by customer ref: %w", err)
	}
	if account == nil {
		return "", fmt.Errorf("no account bound to customer %s", customer.ID)
	}
	return account.Email, nil
}

// resolvePlan prefers the plan carried in metadata, then the subscription's
// price id, then a live subscription fetch as a last resort.
func (s *BillingService) resolvePlan(metadata map[string]string, sub *stripe.Subscription) (model.Plan, error) {
	if p, ok := metadata["plan"]; ok && model.ValidPlan(model.Plan(p)) {
		return model.Plan(p), nil
	}
	if sub != nil && sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		if plan, ok := s.cfg.PlanForPrice(sub.Items.Data[0].Price.ID); ok {
			return plan, nil
		}
		return model.PlanNone, fmt.Errorf("unknown price id %s", sub.Items.Data[0].Price.ID)
	}
	if sub != nil && sub.ID != "" {
		full, err := subscriptionpkg.Get(sub.ID, nil)
		if err != nil {
			return model.PlanNone, fmt.Errorf("fetch subscription %s: %w", sub.ID, err)
		}
		if len(full.Items.Data) > 0 && full.Items.Data[0].Price != nil {
			if plan, ok := s.cfg.PlanForPrice(full.Items.Data[0].Price.ID); ok {
				return plan, nil
			}
			return model.PlanNone, fmt.Errorf("unknown price id %s", full.Items.Data[0].Price.ID)
		}
	}
	return model.PlanNone, errors.New("could not determine plan from event")
}

func mapSubscriptionStatus(status stripe.SubscriptionStatus) string {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return model.SubStatusActive
	case stripe.SubscriptionStatusCanceled:
		return model.SubStatusCanceled
	default:
		return model.SubStatusInactive
	}
}
