package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"class-booking/internal/models"
	"class-booking/internal/util"
)

// EventWriter is the write side of a topic
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer EventWriter
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer EventWriter) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishEnrollmentConfirmed publishes EnrollmentConfirmed event keyed by schedule,
// so capacity updates for one schedule stay ordered
func (ep *EventPublisher) PublishEnrollmentConfirmed(ctx context.Context, event *models.EnrollmentConfirmedEvent) error {
	key := fmt.Sprintf("schedule-%s", event.ScheduleID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentSucceeded publishes PaymentSucceeded event
func (ep *EventPublisher) PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	key := fmt.Sprintf("payment-%s", event.PaymentID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentFailed publishes PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	key := fmt.Sprintf("payment-%s", event.PaymentID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentRefunded publishes PaymentRefunded event keyed by schedule when known
func (ep *EventPublisher) PublishPaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error {
	key := fmt.Sprintf("payment-%s", event.PaymentID)
	if event.ScheduleID != "" {
		key = fmt.Sprintf("schedule-%s", event.ScheduleID)
	}
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onEnrollmentConfirmed func(context.Context, *models.EnrollmentConfirmedEvent) error
	onPaymentRefunded     func(context.Context, *models.PaymentRefundedEvent) error
	logger                *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnEnrollmentConfirmed registers a handler for EnrollmentConfirmed events
func (eh *EventHandler) OnEnrollmentConfirmed(handler func(context.Context, *models.EnrollmentConfirmedEvent) error) {
	eh.onEnrollmentConfirmed = handler
}

// OnPaymentRefunded registers a handler for PaymentRefunded events
func (eh *EventHandler) OnPaymentRefunded(handler func(context.Context, *models.PaymentRefundedEvent) error) {
	eh.onPaymentRefunded = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: base event: %v", ErrMalformedMessage, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeEnrollmentConfirmed:
		if eh.onEnrollmentConfirmed != nil {
			var event models.EnrollmentConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: EnrollmentConfirmed event: %v", ErrMalformedMessage, err)
			}
			return eh.onEnrollmentConfirmed(ctx, &event)
		}

	case models.EventTypePaymentRefunded:
		if eh.onPaymentRefunded != nil {
			var event models.PaymentRefundedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: PaymentRefunded event: %v", ErrMalformedMessage, err)
			}
			return eh.onPaymentRefunded(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
