package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"class-booking/internal/models"
)

// CreateEnrollment inserts an enrollment unless one already exists for the payment
// or for the same user and schedule. created is false when the insert was skipped.
func (s *Store) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) (bool, error) {
	query := `
		INSERT INTO enrollments (user_id, class_id, schedule_id, payment_id, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at`

	row := s.db.QueryRowxContext(ctx, query,
		enrollment.UserID, enrollment.ClassID, enrollment.ScheduleID, enrollment.PaymentID, enrollment.Status)
	err := row.Scan(&enrollment.ID, &enrollment.CreatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

// GetEnrollmentByPaymentID retrieves the enrollment a payment produced
func (s *Store) GetEnrollmentByPaymentID(ctx context.Context, paymentID string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := s.db.GetContext(ctx, &enrollment,
		"SELECT "+selectList("e", enrollmentColumns)+" FROM enrollments e WHERE e.payment_id = $1", paymentID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: enrollment for payment %s", ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, mapInvalidID(err, "payment", paymentID)
	}
	return &enrollment, nil
}

// ListUserEnrollments retrieves a user's confirmed enrollments with class and schedule, newest first
func (s *Store) ListUserEnrollments(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	query := "SELECT " + strings.Join([]string{
		selectList("e", enrollmentColumns),
		nestedList("c", "class", classColumns),
		nestedList("s", "schedule", scheduleColumns),
	}, ", ") + `
		FROM enrollments e
		JOIN classes c ON c.id = e.class_id
		JOIN class_schedules s ON s.id = e.schedule_id
		WHERE e.user_id = $1 AND e.status = $2
		ORDER BY e.created_at DESC`

	enrollments := []models.EnrollmentDetail{}
	err := s.db.SelectContext(ctx, &enrollments, query, userID, models.EnrollmentStatusConfirmed)
	if err != nil {
		return nil, mapInvalidID(err, "user", userID)
	}
	return enrollments, nil
}

// ListEnrollments retrieves every enrollment with its student, class and schedule, newest first
func (s *Store) ListEnrollments(ctx context.Context) ([]models.EnrollmentDetail, error) {
	query := "SELECT " + strings.Join([]string{
		selectList("e", enrollmentColumns),
		nestedList("u", "user", []string{"email", "full_name"}),
		nestedList("c", "class", classColumns),
		nestedList("s", "schedule", scheduleColumns),
	}, ", ") + `
		FROM enrollments e
		JOIN users u ON u.id = e.user_id
		JOIN classes c ON c.id = e.class_id
		JOIN class_schedules s ON s.id = e.schedule_id
		ORDER BY e.created_at DESC`

	enrollments := []models.EnrollmentDetail{}
	if err := s.db.SelectContext(ctx, &enrollments, query); err != nil {
		return nil, err
	}
	return enrollments, nil
}

// ListReminderTargets retrieves confirmed enrollments whose schedule starts in [from, to),
// reading each schedule's start in its own timezone
func (s *Store) ListReminderTargets(ctx context.Context, from, to time.Time) ([]models.ReminderTarget, error) {
	query := "SELECT e.id AS enrollment_id, " + strings.Join([]string{
		nestedList("u", "user", userColumns),
		nestedList("c", "class", classColumns),
		nestedList("s", "schedule", scheduleColumns),
	}, ", ") + `
		FROM enrollments e
		JOIN users u ON u.id = e.user_id
		JOIN classes c ON c.id = e.class_id
		JOIN class_schedules s ON s.id = e.schedule_id
		WHERE e.status = $1
		  AND ((s.start_date + s.start_time::time) AT TIME ZONE s.timezone) >= $2
		  AND ((s.start_date + s.start_time::time) AT TIME ZONE s.timezone) < $3
		ORDER BY s.start_date, s.start_time`

	targets := []models.ReminderTarget{}
	err := s.db.SelectContext(ctx, &targets, query,
		models.EnrollmentStatusConfirmed, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return targets, nil
}
