package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"app/internal/config"
	"app/internal/logger"
	"app/internal/model"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func testBillingConfig() *config.Config {
	cfg := testLedgerConfig()
	cfg.StripeSecretKey = "sk_test_123"
	cfg.StripeWebhookSecret = "whsec_test_secret"
	cfg.StripePriceCreatorMonth = "price_creator_m"
	cfg.StripePriceCreatorAnnual = "price_creator_a"
	cfg.StripePriceStudioMonth = "price_studio_m"
	cfg.StripePriceStudioAnnual = "price_studio_a"
	cfg.StripePortalReturnURL = "https://boostugc.test/account"
	return cfg
}

func newTestBillingService(t *testing.T) (*BillingService, LedgerService) {
	t.Helper()
	cfg := testBillingConfig()
	ledger, _ := newTestLedgerService(cfg)
	return NewBillingService(cfg, ledger, logger.New()), ledger
}

func checkoutCompletedEvent(t *testing.T, email, plan string) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":       "cs_test_1",
		"metadata": map[string]string{"email": email, "plan": plan},
		"customer": map[string]string{"id": "cus_1"},
	})
	require.NoError(t, err)
	return stripe.Event{Type: "checkout.session.completed", Data: &stripe.EventData{Raw: raw}}
}

func TestApplyCheckoutCompleted(t *testing.T) {
	t.Parallel()

	svc, ledger := newTestBillingService(t)
	ctx := context.Background()

	event := checkoutCompletedEvent(t, "user@example.com", "creator-monthly")
	require.NoError(t, svc.ApplyEvent(ctx, event))

	account, err := ledger.GetBalance(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, model.PlanCreatorMonth, account.Plan)
	require.Equal(t, 100, account.Credits)
	require.Equal(t, model.SubStatusActive, account.SubscriptionStatus)
	require.NotNil(t, account.PaymentCustomerRef)
	require.Equal(t, "cus_1", *account.PaymentCustomerRef)
}

func TestApplyEventRedeliveryIdempotent(t *testing.T) {
	t.Parallel()

	svc, ledger := newTestBillingService(t)
	ctx := context.Background()

	event := checkoutCompletedEvent(t, "user@example.com", "creator-monthly")
	require.NoError(t, svc.ApplyEvent(ctx, event))
	require.NoError(t, svc.ApplyEvent(ctx, event))
	require.NoError(t, svc.ApplyEvent(ctx, event))

	account, err := ledger.GetBalance(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, 100, account.Credits, "redelivered grant must not stack")
}

func TestApplyRenewalReplenishes(t *testing.T) {
	t.Parallel()

	svc, ledger := newTestBillingService(t)
	ctx := context.Background()

	require.NoError(t, svc.ApplyEvent(ctx, checkoutCompletedEvent(t, "user@example.com", "creator-monthly")))
	_, err := ledger.Debit(ctx, "user@example.com", 60, model.ActivityImage)
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]any{
		"id":       "in_1",
		"metadata": map[string]string{"email": "user@example.com"},
		"customer": map[string]string{"id": "cus_1"},
	})
	require.NoError(t, err)
	event := stripe.Event{Type: "invoice.payment_succeeded", Data: &stripe.EventData{Raw: raw}}
	require.NoError(t, svc.ApplyEvent(ctx, event))

	account, err := ledger.GetBalance(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, 100, account.Credits, "renewal replenishes to the plan allotment")
}

func TestApplySubscriptionDeleted(t *testing.T) {
	t.Parallel()

	svc, ledger := newTestBillingService(t)
	ctx := context.Background()

	require.NoError(t, svc.ApplyEvent(ctx, checkoutCompletedEvent(t, "user@example.com", "studio-monthly")))

	raw, err := json.Marshal(map[string]any{
		"id":       "sub_1",
		"metadata": map[string]string{"email": "user@example.com"},
	})
	require.NoError(t, err)
	event := stripe.Event{Type: "customer.subscription.deleted", Data: &stripe.EventData{Raw: raw}}
	require.NoError(t, svc.ApplyEvent(ctx, event))

	account, err := ledger.GetBalance(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, model.PlanFree, account.Plan)
	require.Equal(t, model.SubStatusCanceled, account.SubscriptionStatus)
	require.Equal(t, 2, account.Credits)
}

func TestApplySubscriptionChangeByPrice(t *testing.T) {
	t.Parallel()

	svc, ledger := newTestBillingService(t)
	ctx := context.Background()

	// No plan in metadata; the price id on the subscription item decides.
	raw, err := json.Marshal(map[string]any{
		"id":       "sub_1",
		"status":   "active",
		"metadata": map[string]string{"email": "user@example.com"},
		"customer": map[string]string{"id": "cus_1"},
		"items": map[string]any{
			"data": []map[string]any{{"price": map[string]string{"id": "price_studio_a"}}},
		},
	})
	require.NoError(t, err)
	event := stripe.Event{Type: "customer.subscription.updated", Data: &stripe.EventData{Raw: raw}}
	require.NoError(t, svc.ApplyEvent(ctx, event))

	account, err := ledger.GetBalance(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, model.PlanStudioAnnual, account.Plan)
	require.Equal(t, 6000, account.Credits)
}

func TestApplyEventUnknownTypeIsNoop(t *testing.T) {
	t.Parallel()

	svc, ledger := newTestBillingService(t)
	ctx := context.Background()

	event := stripe.Event{Type: "customer.created", Data: &stripe.EventData{Raw: json.RawMessage(`{}`)}}
	require.NoError(t, svc.ApplyEvent(ctx, event))

	// Nothing was created as a side effect.
	account, err := ledger.GetByCustomerRef(ctx, "cus_1")
	require.NoError(t, err)
	require.Nil(t, account)
}

func TestApplyEventUnknownPriceFails(t *testing.T) {
	t.Parallel()

	svc, _ := newTestBillingService(t)
	ctx := context.Background()

	raw, err := json.Marshal(map[string]any{
		"id":       "sub_1",
		"status":   "active",
		"metadata": map[string]string{"email": "user@example.com"},
		"items": map[string]any{
			"data": []map[string]any{{"price": map[string]string{"id": "price_unknown"}}},
		},
	})
	require.NoError(t, err)
	event := stripe.Event{Type: "customer.subscription.updated", Data: &stripe.EventData{Raw: raw}}
	require.Error(t, svc.ApplyEvent(ctx, event))
}

// signStripePayload builds a Stripe-Signature header the way the provider
// does: v1 = HMAC-SHA256(secret, "<timestamp>.<payload>").
func signStripePayload(secret string, payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignature(t *testing.T) {
	t.Parallel()

	svc, _ := newTestBillingService(t)
	payload := []byte(`{"id":"evt_1","object":"event","type":"customer.created","data":{"object":{}}}`)

	header := signStripePayload("whsec_test_secret", payload, time.Now())
	event, err := svc.VerifyWebhook(payload, header)
	require.NoError(t, err)
	require.Equal(t, stripe.EventType("customer.created"), event.Type)

	// Signed under the wrong secret.
	badHeader := signStripePayload("whsec_other", payload, time.Now())
	_, err = svc.VerifyWebhook(payload, badHeader)
	require.True(t, errors.Is(err, ErrInvalidSignature))

	// Garbage header.
	_, err = svc.VerifyWebhook(payload, "t=0,v1=deadbeef")
	require.True(t, errors.Is(err, ErrInvalidSignature))

	// Payload altered after signing.
	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'X'
	_, err = svc.VerifyWebhook(tampered, header)
	require.True(t, errors.Is(err, ErrInvalidSignature))
}
