package store

import (
	"context"
	"time"

	"class-booking/internal/models"
)

// GetAdminStats aggregates the admin dashboard counters. today bounds upcoming schedules.
func (s *Store) GetAdminStats(ctx context.Context, today time.Time) (*models.AdminStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM classes) AS total_classes,
			(SELECT COUNT(*) FROM enrollments) AS total_enrollments,
			(SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status = $1) AS total_revenue,
			(SELECT COUNT(*) FROM class_schedules WHERE start_date >= $2) AS upcoming_classes`

	var stats models.AdminStats
	err := s.db.GetContext(ctx, &stats, query, models.PaymentStatusSucceeded, models.NewDate(today))
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
