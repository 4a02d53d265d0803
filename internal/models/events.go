package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeEnrollmentConfirmed = "ENROLLMENT_CONFIRMED"
	EventTypePaymentSucceeded    = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed       = "PAYMENT_FAILED"
	EventTypePaymentRefunded     = "PAYMENT_REFUNDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// EnrollmentConfirmedEvent published when a paid checkout produces an enrollment
type EnrollmentConfirmedEvent struct {
	BaseEvent
	EnrollmentID string `json:"enrollment_id"`
	UserID       string `json:"user_id"`
	ClassID      string `json:"class_id"`
	ScheduleID   string `json:"schedule_id"`
	PaymentID    string `json:"payment_id"`
}

// PaymentSucceededEvent published when the webhook marks a payment paid
type PaymentSucceededEvent struct {
	BaseEvent
	PaymentID       string `json:"payment_id"`
	UserID          string `json:"user_id"`
	ClassID         string `json:"class_id"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// PaymentFailedEvent published when a stale pending payment is expired
type PaymentFailedEvent struct {
	BaseEvent
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

// PaymentRefundedEvent published when an admin refunds a payment
type PaymentRefundedEvent struct {
	BaseEvent
	PaymentID    string `json:"payment_id"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
	ScheduleID   string `json:"schedule_id,omitempty"`
	RefundID     string `json:"refund_id"`
}
