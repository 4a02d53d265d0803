package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"class-booking/internal/models"
	"class-booking/internal/payment"
	"class-booking/internal/store"
	"class-booking/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CheckoutService starts hosted checkouts for class bookings
type CheckoutService struct {
	repo      Repository
	gateway   payment.Gateway
	publicURL string
	currency  string
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(repo Repository, gateway payment.Gateway, publicURL, currency string) *CheckoutService {
	if currency == "" {
		currency = "usd"
	}
	return &CheckoutService{
		repo:      repo,
		gateway:   gateway,
		publicURL: strings.TrimRight(publicURL, "/"),
		currency:  currency,
		logger:    util.GetLogger(),
	}
}

// CheckoutRequest represents a request to book a class schedule
type CheckoutRequest struct {
	ClassID    string `json:"classId"`
	ScheduleID string `json:"scheduleId"`
	UserID     string `json:"userId"`
}

// CheckoutResponse carries the provider session the browser redirects to
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url,omitempty"`
}

// CreateCheckout validates the booking, records a pending payment and opens a checkout session.
// origin is the browser origin used for the return URLs; empty falls back to the public URL.
func (s *CheckoutService) CreateCheckout(ctx context.Context, caller *models.User, req *CheckoutRequest, origin string) (resp *CheckoutResponse, err error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateCheckout",
		attribute.String("class_id", req.ClassID),
		attribute.String("schedule_id", req.ScheduleID))
	defer func() { util.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if req.ClassID == "" || req.ScheduleID == "" || req.UserID == "" {
		util.CheckoutFailedTotal.WithLabelValues("missing_fields").Inc()
		return nil, ErrMissingFields
	}
	if caller == nil || caller.ID != req.UserID {
		util.CheckoutFailedTotal.WithLabelValues("forbidden").Inc()
		return nil, ErrForbidden
	}

	class, err := s.repo.GetActiveClass(ctx, req.ClassID)
	if errors.Is(err, store.ErrNotFound) {
		util.CheckoutFailedTotal.WithLabelValues("class_not_found").Inc()
		return nil, ErrClassNotFound
	}
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to load class: %w", err)
	}

	schedule, err := s.repo.GetSchedule(ctx, req.ScheduleID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && schedule.ClassID != class.ID) {
		util.CheckoutFailedTotal.WithLabelValues("schedule_not_found").Inc()
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	if schedule.IsFull {
		util.CheckoutFailedTotal.WithLabelValues("schedule_full").Inc()
		return nil, ErrScheduleFull
	}

	pay := &models.Payment{
		UserID:        req.UserID,
		ClassID:       class.ID,
		Amount:        class.Price,
		Currency:      strings.ToUpper(s.currency),
		PaymentMethod: models.PaymentMethodStripe,
		Status:        models.PaymentStatusPending,
	}
	if err := s.repo.CreatePayment(ctx, pay); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	base := strings.TrimRight(origin, "/")
	if base == "" {
		base = s.publicURL
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		Booking: payment.Metadata{
			UserID:     req.UserID,
			ClassID:    class.ID,
			ScheduleID: schedule.ID,
			PaymentID:  pay.ID,
		},
		Title:         class.Title,
		Description:   class.Description,
		Amount:        class.Price,
		Currency:      s.currency,
		CustomerEmail: caller.Email,
		SuccessURL:    base + "/payment/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     base + "/classes",
	})
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("gateway_error").Inc()
		if _, ferr := s.repo.MarkPaymentFailed(ctx, pay.ID); ferr != nil {
			s.logger.Error("Failed to mark payment failed after gateway error",
				zap.String("payment_id", pay.ID), zap.Error(ferr))
		}
		return nil, err
	}

	if err := s.repo.SetCheckoutSession(ctx, pay.ID, session.ID); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to store checkout session: %w", err)
	}

	util.CheckoutSessionsCreatedTotal.Inc()
	s.logger.Info("Checkout session created",
		zap.String("payment_id", pay.ID),
		zap.String("session_id", session.ID),
		zap.String("class_id", class.ID),
		zap.String("user_id", req.UserID))

	return &CheckoutResponse{SessionID: session.ID, URL: session.URL}, nil
}

// SessionStatus is what the success page polls after the redirect
type SessionStatus struct {
	PaymentID string               `json:"paymentId"`
	Status    models.PaymentStatus `json:"status"`
	Enrolled  bool                 `json:"enrolled"`
	ClassID   string               `json:"classId"`
}

// GetSessionStatus reports the payment and enrollment state behind a checkout session
func (s *CheckoutService) GetSessionStatus(ctx context.Context, caller *models.User, sessionID string) (*SessionStatus, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.GetSessionStatus")
	defer span.End()

	pay, err := s.repo.GetPaymentBySessionID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if caller == nil || pay.UserID != caller.ID {
		return nil, ErrPaymentNotFound
	}

	status := &SessionStatus{PaymentID: pay.ID, Status: pay.Status, ClassID: pay.ClassID}

	enrollment, err := s.repo.GetEnrollmentByPaymentID(ctx, pay.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	default:
		status.Enrolled = enrollment.Status == models.EnrollmentStatusConfirmed
	}

	return status, nil
}
