package service

import (
	"context"
	"errors"
	"time"

	"class-booking/internal/mailer"
	"class-booking/internal/models"
	"class-booking/internal/payment"
	"class-booking/internal/store"
	"class-booking/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Webhook outcomes, used as the metric label and in logs
const (
	outcomeInvalidSignature = "invalid_signature"
	outcomeIgnored          = "ignored"
	outcomeDuplicate        = "duplicate"
	outcomeMissingMetadata  = "missing_metadata"
	outcomeProcessed        = "processed"
	outcomeFailed           = "failed"
)

// WebhookService reconciles payment provider notifications into payments and enrollments
type WebhookService struct {
	repo      Repository
	gateway   payment.Gateway
	mailer    mailer.Mailer
	cache     Cache
	publisher Publisher
	seats     SeatCounter
	logger    *zap.Logger
}

// NewWebhookService creates a new webhook service
func NewWebhookService(
	repo Repository,
	gateway payment.Gateway,
	m mailer.Mailer,
	cache Cache,
	publisher Publisher,
	seats SeatCounter,
) *WebhookService {
	return &WebhookService{
		repo:      repo,
		gateway:   gateway,
		mailer:    m,
		cache:     cache,
		publisher: publisher,
		seats:     seats,
		logger:    util.GetLogger(),
	}
}

// HandleEvent verifies and applies one webhook delivery. The only error it returns is a
// signature failure; everything after verification is logged and absorbed so the
// provider gets an acknowledgement.
func (s *WebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	ctx, span := util.StartSpan(ctx, "WebhookService.HandleEvent")
	defer span.End()

	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	evt, err := s.gateway.ConstructEvent(payload, signature)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", outcomeInvalidSignature).Inc()
		s.logger.Warn("Webhook signature verification failed", zap.Error(err))
		util.EndSpan(span, err)
		return err
	}

	span.SetAttributes(attribute.String("event_id", evt.ID), attribute.String("event_type", evt.Type))

	if evt.Type != payment.EventCheckoutCompleted || evt.Checkout == nil {
		util.WebhookEventsTotal.WithLabelValues(evt.Type, outcomeIgnored).Inc()
		s.logger.Debug("Ignoring webhook event", zap.String("event_id", evt.ID), zap.String("type", evt.Type))
		return nil
	}

	outcome := s.process(ctx, evt)
	util.WebhookEventsTotal.WithLabelValues(evt.Type, outcome).Inc()
	return nil
}

func (s *WebhookService) process(ctx context.Context, evt *payment.Event) string {
	if s.seen(ctx, evt.ID) {
		s.logger.Info("Event already processed", zap.String("event_id", evt.ID))
		return outcomeDuplicate
	}

	claimed, err := s.repo.ClaimEvent(ctx, evt.ID, evt.Type)
	if err != nil {
		s.logger.Error("Failed to claim event, processing anyway",
			zap.String("event_id", evt.ID), zap.Error(err))
		claimed = true
	}
	if !claimed {
		s.logger.Info("Event already claimed", zap.String("event_id", evt.ID))
		s.markSeen(ctx, evt.ID)
		return outcomeDuplicate
	}

	booking := evt.Checkout.Booking
	if !booking.Complete() {
		s.logger.Error("Missing metadata in checkout session",
			zap.String("event_id", evt.ID),
			zap.String("session_id", evt.Checkout.SessionID),
			zap.Any("metadata", booking))
		s.markSeen(ctx, evt.ID)
		return outcomeMissingMetadata
	}

	if !s.reconcile(ctx, evt.Checkout) {
		if err := s.repo.ReleaseEvent(ctx, evt.ID); err != nil {
			s.logger.Error("Failed to release event claim", zap.String("event_id", evt.ID), zap.Error(err))
		}
		return outcomeFailed
	}

	s.markSeen(ctx, evt.ID)
	return outcomeProcessed
}

// reconcile applies a completed checkout. It reports false when nothing could be written,
// so the claim can be released for a later redelivery.
func (s *WebhookService) reconcile(ctx context.Context, checkout *payment.CheckoutCompleted) bool {
	ctx, span := util.StartSpan(ctx, "WebhookService.reconcile",
		attribute.String("payment_id", checkout.Booking.PaymentID))
	defer span.End()

	booking := checkout.Booking
	wrote := false

	pay, err := s.repo.MarkPaymentSucceeded(ctx, booking.PaymentID, checkout.PaymentIntentID)
	switch {
	case errors.Is(err, store.ErrInvalidTransition):
		if pay == nil || pay.Status != models.PaymentStatusSucceeded {
			s.logger.Warn("Payment not pending or succeeded, skipping enrollment",
				zap.String("payment_id", booking.PaymentID), zap.Error(err))
			return true
		}
		wrote = true
		s.logger.Info("Payment already succeeded",
			zap.String("payment_id", booking.PaymentID))
	case errors.Is(err, store.ErrNotFound):
		s.logger.Error("Payment referenced by checkout not found", zap.String("payment_id", booking.PaymentID))
	case err != nil:
		s.logger.Error("Failed to update payment", zap.String("payment_id", booking.PaymentID), zap.Error(err))
	default:
		wrote = true
		util.PaymentsTotal.WithLabelValues(string(models.PaymentStatusSucceeded)).Inc()
		s.logger.Info("Payment succeeded",
			zap.String("payment_id", pay.ID),
			zap.String("payment_intent_id", checkout.PaymentIntentID))

		event := &models.PaymentSucceededEvent{
			BaseEvent:       models.NewBaseEvent(models.EventTypePaymentSucceeded),
			PaymentID:       pay.ID,
			UserID:          pay.UserID,
			ClassID:         pay.ClassID,
			PaymentIntentID: checkout.PaymentIntentID,
		}
		if err := s.publisher.PublishPaymentSucceeded(ctx, event); err != nil {
			s.logger.Error("Failed to publish PaymentSucceeded event", zap.Error(err))
		}
	}

	enrollment := &models.Enrollment{
		UserID:     booking.UserID,
		ClassID:    booking.ClassID,
		ScheduleID: booking.ScheduleID,
		PaymentID:  booking.PaymentID,
		Status:     models.EnrollmentStatusConfirmed,
	}
	created, err := s.repo.CreateEnrollment(ctx, enrollment)
	if err != nil {
		s.logger.Error("Error creating enrollment",
			zap.String("payment_id", booking.PaymentID), zap.Error(err))
		return wrote
	}
	if !created {
		s.logger.Info("Enrollment already exists, skipping confirmation email",
			zap.String("payment_id", booking.PaymentID),
			zap.String("schedule_id", booking.ScheduleID))
		return true
	}

	util.EnrollmentsCreatedTotal.Inc()
	s.logger.Info("Enrollment confirmed",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("user_id", booking.UserID),
		zap.String("schedule_id", booking.ScheduleID))

	event := &models.EnrollmentConfirmedEvent{
		BaseEvent:    models.NewBaseEvent(models.EventTypeEnrollmentConfirmed),
		EnrollmentID: enrollment.ID,
		UserID:       enrollment.UserID,
		ClassID:      enrollment.ClassID,
		ScheduleID:   enrollment.ScheduleID,
		PaymentID:    enrollment.PaymentID,
	}
	if err := s.publisher.PublishEnrollmentConfirmed(ctx, event); err != nil {
		s.logger.Error("Failed to publish EnrollmentConfirmed event, counting seat directly",
			zap.String("enrollment_id", enrollment.ID), zap.Error(err))
		// same event id as the message, so a late delivery is deduplicated
		if err := s.seats.HandleEnrollmentConfirmed(ctx, event); err != nil {
			s.logger.Error("Failed to count seat", zap.String("schedule_id", enrollment.ScheduleID), zap.Error(err))
		}
	}

	s.sendConfirmation(ctx, booking)
	return true
}

// sendConfirmation emails the student. Failures are logged only.
func (s *WebhookService) sendConfirmation(ctx context.Context, booking payment.Metadata) {
	user, err := s.repo.GetUserByID(ctx, booking.UserID)
	if err != nil {
		s.logger.Warn("Skipping confirmation email, user not loaded", zap.String("user_id", booking.UserID), zap.Error(err))
		return
	}
	class, err := s.repo.GetClassByID(ctx, booking.ClassID)
	if err != nil {
		s.logger.Warn("Skipping confirmation email, class not loaded", zap.String("class_id", booking.ClassID), zap.Error(err))
		return
	}
	schedule, err := s.repo.GetSchedule(ctx, booking.ScheduleID)
	if err != nil {
		s.logger.Warn("Skipping confirmation email, schedule not loaded", zap.String("schedule_id", booking.ScheduleID), zap.Error(err))
		return
	}
	if user.Email == "" {
		s.logger.Warn("Skipping confirmation email, user has no email", zap.String("user_id", user.ID))
		return
	}

	msg, err := mailer.ConfirmationEmail(user.Email, mailer.NewClassDetails(user, class, schedule))
	if err != nil {
		util.EmailsSentTotal.WithLabelValues("confirmation", "error").Inc()
		s.logger.Error("Failed to render confirmation email", zap.Error(err))
		return
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		util.EmailsSentTotal.WithLabelValues("confirmation", "error").Inc()
		s.logger.Error("Error sending confirmation email", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	util.EmailsSentTotal.WithLabelValues("confirmation", "sent").Inc()
}

func (s *WebhookService) seen(ctx context.Context, eventID string) bool {
	seen, err := s.cache.IsEventSeen(ctx, eventID)
	if err != nil {
		s.logger.Warn("Event seen check failed", zap.String("event_id", eventID), zap.Error(err))
		return false
	}
	return seen
}

func (s *WebhookService) markSeen(ctx context.Context, eventID string) {
	if err := s.cache.MarkEventSeen(ctx, eventID); err != nil {
		s.logger.Warn("Failed to mark event seen", zap.String("event_id", eventID), zap.Error(err))
	}
}
