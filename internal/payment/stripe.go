package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

// NewStripeGateway creates a gateway backed by the Stripe API
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, webhookSecret: webhookSecret}
}

// CreateCheckoutSession opens a hosted checkout for one class booking
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(req.Title),
	}
	if req.Description != "" {
		product.Description = stripe.String(req.Description)
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(strings.ToLower(req.Currency)),
					ProductData: product,
					UnitAmount:  stripe.Int64(MinorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Booking.PaymentID),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Booking.Map() {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ConstructEvent verifies the signature over the raw payload and decodes the event
func (g *StripeGateway) ConstructEvent(payload []byte, signature string) (*Event, error) {
	return parseEvent(payload, signature, g.webhookSecret)
}

func parseEvent(payload []byte, signature, secret string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, err.Error())
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Type != stripe.EventTypeCheckoutSessionCompleted || evt.Data == nil {
		return out, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
		// verified but undecodable: surfaces as a checkout without booking metadata
		id, _ := evt.Data.Object["id"].(string)
		out.Checkout = &CheckoutCompleted{SessionID: id}
		return out, nil
	}

	completed := &CheckoutCompleted{
		SessionID: sess.ID,
		Booking:   MetadataFromMap(sess.Metadata),
	}
	if sess.PaymentIntent != nil {
		completed.PaymentIntentID = sess.PaymentIntent.ID
	}
	out.Checkout = completed
	return out, nil
}

// SessionStatus reports the provider-side state of a checkout session
func (g *StripeGateway) SessionStatus(ctx context.Context, sessionID string) (SessionState, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return SessionMissing, nil
		}
		return "", fmt.Errorf("get checkout session: %w", err)
	}

	switch sess.Status {
	case stripe.CheckoutSessionStatusComplete:
		return SessionComplete, nil
	case stripe.CheckoutSessionStatusExpired:
		return SessionExpired, nil
	default:
		return SessionOpen, nil
	}
}

// Refund returns the full amount of a payment intent
func (g *StripeGateway) Refund(ctx context.Context, paymentIntentID string) (string, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx

	r, err := g.api.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("create refund: %w", err)
	}
	return r.ID, nil
}
