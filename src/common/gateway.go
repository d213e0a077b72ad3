package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"booth/src/lib"
	"booth/src/types"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// ErrGateway wraps vendor failures creating or querying invoices. Fatal to
// entering the payment phase, surfaced to the operator.
var ErrGateway = errors.New("payment gateway error")

// Invoice is one checkout attempt at the vendor.
type Invoice struct {
	ID        string
	PayURL    string
	ExpiresAt time.Time
}

// CallbackEvent is a vendor push notification already verified and reduced
// to the closed internal status set.
type CallbackEvent struct {
	InvoiceID string
	SessionID string
	Status    types.PaymentStatus
}

// PaymentGateway is the capability the session machine consumes. The
// adapter never mutates Payment rows, interpreting results is the
// machine's job.
type PaymentGateway interface {
	CreateInvoice(ctx context.Context, externalID string, amount int64, description string, ttl time.Duration) (*Invoice, error)
	GetInvoiceStatus(ctx context.Context, invoiceID string) (types.PaymentStatus, error)
	VerifyCallback(payload []byte, signature string) (*CallbackEvent, error)
}

// StripeGateway implements PaymentGateway on Stripe checkout sessions.
type StripeGateway struct{}

func NewStripeGateway() *StripeGateway {
	return &StripeGateway{}
}

func (g *StripeGateway) CreateInvoice(ctx context.Context, externalID string, amount int64, description string, ttl time.Duration) (*Invoice, error) {
	sc := lib.GetStripeClient()
	currency := os.Getenv("BOOTH_CURRENCY")
	if currency == "" {
		currency = "usd"
	}
	successUrl := fmt.Sprintf("%s/payment/done", os.Getenv("APP_HOST"))
	expiresAt := time.Now().Add(ttl)
	// Stripe enforces a minimum checkout lifetime of 30 minutes; the local
	// payment countdown stays shorter and advisory.
	if ttl < 30*time.Minute {
		expiresAt = time.Now().Add(30 * time.Minute)
	}
	params := stripe.CheckoutSessionCreateParams{
		SuccessURL: stripe.String(successUrl),
		UIMode:     stripe.String("hosted"),
		Mode:       stripe.String("payment"),
		ExpiresAt:  stripe.Int64(expiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{"sessionId": externalID},
	}
	cs, err := sc.V1CheckoutSessions.Create(ctx, &params)
	if err != nil {
		log.Printf("[gateway] Error creating checkout session: %s\n", err.Error())
		return nil, fmt.Errorf("%w: %s", ErrGateway, err.Error())
	}
	log.Printf("[gateway] CheckoutSessionID: %s\n", cs.ID)
	return &Invoice{
		ID:        cs.ID,
		PayURL:    cs.URL,
		ExpiresAt: time.Unix(cs.ExpiresAt, 0),
	}, nil
}

func (g *StripeGateway) GetInvoiceStatus(ctx context.Context, invoiceID string) (types.PaymentStatus, error) {
	sc := lib.GetStripeClient()
	cs, err := sc.V1CheckoutSessions.Retrieve(ctx, invoiceID, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return types.PAYMENT_PENDING, fmt.Errorf("%w: %s", ErrGateway, err.Error())
	}
	return mapCheckoutStatus(cs), nil
}

func (g *StripeGateway) VerifyCallback(payload []byte, signature string) (*CallbackEvent, error) {
	whsecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	event, err := webhook.ConstructEvent(payload, signature, whsecret)
	if err != nil {
		return nil, err
	}
	log.Printf("[StripeEvent] %s\n", event.Type)
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded", "checkout.session.expired":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			log.Printf("[Stripe] Error parsing CheckoutSession: %s\n", err.Error())
			return nil, err
		}
		return &CallbackEvent{
			InvoiceID: cs.ID,
			SessionID: cs.Metadata["sessionId"],
			Status:    mapCheckoutStatus(&cs),
		}, nil
	}
	// Event verified but not one the booth acts on.
	return nil, nil
}

// mapCheckoutStatus reduces vendor state to the internal closed set. An
// unrecognized combination is pending, never silently paid.
func mapCheckoutStatus(cs *stripe.CheckoutSession) types.PaymentStatus {
	if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		return types.PAYMENT_PAID
	}
	switch cs.Status {
	case stripe.CheckoutSessionStatusComplete:
		return types.PAYMENT_PAID
	case stripe.CheckoutSessionStatusExpired:
		return types.PAYMENT_EXPIRED
	case stripe.CheckoutSessionStatusOpen:
		return types.PAYMENT_PENDING
	}
	return types.PAYMENT_PENDING
}
