package service

import (
	"context"
	"time"

	"class-booking/internal/models"
)

// Repository is the persistence surface the services depend on. *store.Store implements it.
type Repository interface {
	ListActiveClasses(ctx context.Context) ([]models.Class, error)
	ListClasses(ctx context.Context) ([]models.Class, error)
	GetActiveClass(ctx context.Context, id string) (*models.Class, error)
	GetClassByID(ctx context.Context, id string) (*models.Class, error)
	CreateClass(ctx context.Context, class *models.Class) error
	UpdateClass(ctx context.Context, class *models.Class) error
	DeleteClass(ctx context.Context, id string) error

	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	CreateSchedule(ctx context.Context, schedule *models.Schedule) error
	AdjustScheduleEnrollment(ctx context.Context, scheduleID string, delta int) (*models.Schedule, error)

	GetUserByID(ctx context.Context, id string) (*models.User, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByID(ctx context.Context, id string) (*models.Payment, error)
	GetPaymentBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	SetCheckoutSession(ctx context.Context, paymentID, sessionID string) error
	MarkPaymentSucceeded(ctx context.Context, paymentID, intentID string) (*models.Payment, error)
	MarkPaymentFailed(ctx context.Context, paymentID string) (*models.Payment, error)
	RefundPayment(ctx context.Context, paymentID string) (*models.Payment, *models.Enrollment, error)
	ListPayments(ctx context.Context) ([]models.PaymentDetail, error)
	ListStalePendingPayments(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)

	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) (bool, error)
	GetEnrollmentByPaymentID(ctx context.Context, paymentID string) (*models.Enrollment, error)
	ListUserEnrollments(ctx context.Context, userID string) ([]models.EnrollmentDetail, error)
	ListEnrollments(ctx context.Context) ([]models.EnrollmentDetail, error)
	ListReminderTargets(ctx context.Context, from, to time.Time) ([]models.ReminderTarget, error)

	ClaimEvent(ctx context.Context, eventID, eventType string) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error

	GetAdminStats(ctx context.Context, today time.Time) (*models.AdminStats, error)
}

// Cache is the Redis surface. *redisclient.Client implements it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	IsEventSeen(ctx context.Context, eventID string) (bool, error)
	MarkEventSeen(ctx context.Context, eventID string) error
	MarkReminderSent(ctx context.Context, enrollmentID string) (bool, error)
	ClearReminderSent(ctx context.Context, enrollmentID string) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// Publisher emits domain events. *broker.EventPublisher implements it.
type Publisher interface {
	PublishEnrollmentConfirmed(ctx context.Context, event *models.EnrollmentConfirmedEvent) error
	PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	PublishPaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error
}

// SeatCounter applies a confirmed enrollment to its schedule's counters
type SeatCounter interface {
	HandleEnrollmentConfirmed(ctx context.Context, event *models.EnrollmentConfirmedEvent) error
}
