package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Metadata keys carried on a checkout session so the webhook can recover the booking
const (
	MetaUserID     = "userId"
	MetaClassID    = "classId"
	MetaScheduleID = "scheduleId"
	MetaPaymentID  = "paymentId"
)

// EventCheckoutCompleted is the only provider event that changes state here
const EventCheckoutCompleted = "checkout.session.completed"

// ErrInvalidSignature is returned when a webhook payload fails verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ConstructEvent(payload []byte, signature string) (*Event, error)
	SessionStatus(ctx context.Context, sessionID string) (SessionState, error)
	Refund(ctx context.Context, paymentIntentID string) (string, error)
}

// CheckoutRequest describes the single line item of a class booking
type CheckoutRequest struct {
	Booking       Metadata
	Title         string
	Description   string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Metadata identifies the booking behind a checkout session
type Metadata struct {
	UserID     string
	ClassID    string
	ScheduleID string
	PaymentID  string
}

// Complete reports whether every identifier is present
func (m Metadata) Complete() bool {
	return m.UserID != "" && m.ClassID != "" && m.ScheduleID != "" && m.PaymentID != ""
}

// Map renders the metadata as provider key/value pairs
func (m Metadata) Map() map[string]string {
	return map[string]string{
		MetaUserID:     m.UserID,
		MetaClassID:    m.ClassID,
		MetaScheduleID: m.ScheduleID,
		MetaPaymentID:  m.PaymentID,
	}
}

// MetadataFromMap reads the booking identifiers back from provider key/value pairs
func MetadataFromMap(m map[string]string) Metadata {
	return Metadata{
		UserID:     m[MetaUserID],
		ClassID:    m[MetaClassID],
		ScheduleID: m[MetaScheduleID],
		PaymentID:  m[MetaPaymentID],
	}
}

// Event is a verified webhook delivery. Checkout is set only for completed checkouts.
type Event struct {
	ID       string
	Type     string
	Checkout *CheckoutCompleted
}

type CheckoutCompleted struct {
	SessionID       string
	PaymentIntentID string
	Booking         Metadata
}

type SessionState string

const (
	SessionOpen     SessionState = "open"
	SessionComplete SessionState = "complete"
	SessionExpired  SessionState = "expired"
	SessionMissing  SessionState = "missing"
)

// MinorUnits converts a decimal amount to integer cents
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
