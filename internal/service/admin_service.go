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

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const refundLockTTL = 30 * time.Second

// AdminService backs the admin dashboard and class management
type AdminService struct {
	repo      Repository
	gateway   payment.Gateway
	cache     Cache
	publisher Publisher
	catalog   *CatalogService
	logger    *zap.Logger
	now       func() time.Time
}

// NewAdminService creates a new admin service
func NewAdminService(
	repo Repository,
	gateway payment.Gateway,
	cache Cache,
	publisher Publisher,
	catalog *CatalogService,
) *AdminService {
	return &AdminService{
		repo:      repo,
		gateway:   gateway,
		cache:     cache,
		publisher: publisher,
		catalog:   catalog,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// ClassRequest is the admin form for creating or replacing a class
type ClassRequest struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	LongDescription *string         `json:"long_description"`
	Price           decimal.Decimal `json:"price"`
	DurationHours   int             `json:"duration_hours"`
	InstructorName  string          `json:"instructor_name"`
	InstructorBio   *string         `json:"instructor_bio"`
	MaxStudents     *int            `json:"max_students"`
	MeetingLink     string          `json:"meeting_link"`
	MeetingType     string          `json:"meeting_type"`
	Category        string          `json:"category"`
	Level           string          `json:"level"`
	IsActive        *bool           `json:"is_active"`
}

// toClass validates the request and fills defaults
func (r *ClassRequest) toClass() (*models.Class, error) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidClass)
	}
	if r.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidClass)
	}
	if r.MaxStudents != nil && *r.MaxStudents <= 0 {
		return nil, fmt.Errorf("%w: max_students must be positive", ErrInvalidClass)
	}

	duration := r.DurationHours
	if duration == 0 {
		duration = 1
	}
	if duration < 0 {
		return nil, fmt.Errorf("%w: duration_hours must be positive", ErrInvalidClass)
	}

	meetingType := r.MeetingType
	switch meetingType {
	case "":
		meetingType = models.MeetingTypeTeams
	case models.MeetingTypeTeams, models.MeetingTypeZoom, models.MeetingTypeGoogleMeet:
	default:
		return nil, fmt.Errorf("%w: unknown meeting_type %q", ErrInvalidClass, r.MeetingType)
	}

	level := r.Level
	switch level {
	case "":
		level = models.LevelBeginner
	case models.LevelBeginner, models.LevelIntermediate, models.LevelAdvanced:
	default:
		return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidClass, r.Level)
	}

	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	return &models.Class{
		Title:           title,
		Description:     r.Description,
		LongDescription: r.LongDescription,
		Price:           r.Price.Round(2),
		DurationHours:   duration,
		InstructorName:  r.InstructorName,
		InstructorBio:   r.InstructorBio,
		MaxStudents:     r.MaxStudents,
		MeetingLink:     r.MeetingLink,
		MeetingType:     meetingType,
		Category:        r.Category,
		Level:           level,
		IsActive:        active,
	}, nil
}

// ScheduleRequest is the admin form for adding a session to a class
type ScheduleRequest struct {
	StartDate models.Date `json:"start_date"`
	StartTime string      `json:"start_time"`
	EndTime   string      `json:"end_time"`
	Timezone  string      `json:"timezone"`
}

func (r *ScheduleRequest) toSchedule(classID string) (*models.Schedule, error) {
	if r.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start_date is required", ErrInvalidSchedule)
	}
	start, err := parseClock(r.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time: %s", ErrInvalidSchedule, err.Error())
	}
	end, err := parseClock(r.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: end_time: %s", ErrInvalidSchedule, err.Error())
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", ErrInvalidSchedule)
	}

	tz := r.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, tz)
	}

	return &models.Schedule{
		ClassID:   classID,
		StartDate: r.StartDate,
		StartTime: start.Format("15:04"),
		EndTime:   end.Format("15:04"),
		Timezone:  tz,
	}, nil
}

func parseClock(s string) (time.Time, error) {
	if t, err := time.Parse("15:04", s); err == nil {
		return t, nil
	}
	return time.Parse("15:04:05", s)
}

// Stats aggregates the dashboard counters
func (s *AdminService) Stats(ctx context.Context) (*models.AdminStats, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.Stats")
	defer span.End()

	stats, err := s.repo.GetAdminStats(ctx, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return stats, nil
}

// ListClasses returns every class, active or not
func (s *AdminService) ListClasses(ctx context.Context) ([]models.Class, error) {
	classes, err := s.repo.ListClasses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	return classes, nil
}

// CreateClass adds a class
func (s *AdminService) CreateClass(ctx context.Context, req *ClassRequest) (*models.Class, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.CreateClass")
	defer span.End()

	class, err := req.toClass()
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateClass(ctx, class); err != nil {
		return nil, fmt.Errorf("failed to create class: %w", err)
	}

	s.catalog.InvalidateClasses(ctx)
	s.logger.Info("Class created", zap.String("class_id", class.ID), zap.String("title", class.Title))
	return class, nil
}

// UpdateClass replaces a class. The price cannot change once a payment references the class.
func (s *AdminService) UpdateClass(ctx context.Context, id string, req *ClassRequest) (*models.Class, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.UpdateClass", attribute.String("class_id", id))
	defer span.End()

	class, err := req.toClass()
	if err != nil {
		return nil, err
	}
	class.ID = id

	err = s.repo.UpdateClass(ctx, class)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrClassNotFound
	case errors.Is(err, store.ErrConflict):
		return nil, ErrClassPriceLocked
	case err != nil:
		return nil, fmt.Errorf("failed to update class: %w", err)
	}

	s.catalog.InvalidateClasses(ctx)
	s.logger.Info("Class updated", zap.String("class_id", class.ID))
	return class, nil
}

// DeleteClass removes a class that no payment references
func (s *AdminService) DeleteClass(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "AdminService.DeleteClass", attribute.String("class_id", id))
	defer span.End()

	err := s.repo.DeleteClass(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrClassNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrClassInUse
	case err != nil:
		return fmt.Errorf("failed to delete class: %w", err)
	}

	s.catalog.InvalidateClasses(ctx)
	s.logger.Info("Class deleted", zap.String("class_id", id))
	return nil
}

// AddSchedule adds a dated session to a class
func (s *AdminService) AddSchedule(ctx context.Context, classID string, req *ScheduleRequest) (*models.Schedule, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.AddSchedule", attribute.String("class_id", classID))
	defer span.End()

	schedule, err := req.toSchedule(classID)
	if err != nil {
		return nil, err
	}

	err = s.repo.CreateSchedule(ctx, schedule)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	s.catalog.InvalidateClasses(ctx)
	return schedule, nil
}

// ListEnrollments returns every enrollment with student, class and schedule
func (s *AdminService) ListEnrollments(ctx context.Context) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListEnrollments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return enrollments, nil
}

// ListPayments returns every payment with payer and class
func (s *AdminService) ListPayments(ctx context.Context) ([]models.PaymentDetail, error) {
	payments, err := s.repo.ListPayments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// RefundPayment refunds a succeeded payment at the provider and cancels its enrollment
func (s *AdminService) RefundPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.RefundPayment", attribute.String("payment_id", paymentID))
	defer span.End()

	lockKey := "refund:" + paymentID
	locked, err := s.cache.AcquireLock(ctx, lockKey, refundLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire refund lock: %w", err)
	}
	if !locked {
		return nil, ErrRefundInProgress
	}
	defer func() {
		if err := s.cache.ReleaseLock(ctx, lockKey); err != nil {
			s.logger.Warn("Failed to release refund lock", zap.String("payment_id", paymentID), zap.Error(err))
		}
	}()

	pay, err := s.repo.GetPaymentByID(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if !models.CanTransition(pay.Status, models.PaymentStatusRefunded) || pay.PaymentIntentID == nil {
		return nil, ErrNotRefundable
	}

	refundID, err := s.gateway.Refund(ctx, *pay.PaymentIntentID)
	if err != nil {
		return nil, err
	}

	refunded, enrollment, err := s.repo.RefundPayment(ctx, paymentID)
	if errors.Is(err, store.ErrInvalidTransition) {
		return nil, ErrNotRefundable
	}
	if err != nil {
		s.logger.Error("Provider refund succeeded but payment row was not updated",
			zap.String("payment_id", paymentID),
			zap.String("refund_id", refundID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to record refund: %w", err)
	}

	util.PaymentsTotal.WithLabelValues(string(models.PaymentStatusRefunded)).Inc()
	s.logger.Info("Payment refunded", zap.String("payment_id", paymentID), zap.String("refund_id", refundID))

	event := &models.PaymentRefundedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentRefunded),
		PaymentID: paymentID,
		RefundID:  refundID,
	}
	if enrollment != nil {
		event.EnrollmentID = enrollment.ID
		event.ScheduleID = enrollment.ScheduleID
	}
	if err := s.publisher.PublishPaymentRefunded(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentRefunded event", zap.Error(err))
	}

	return refunded, nil
}
