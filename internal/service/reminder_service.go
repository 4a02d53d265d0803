package service

import (
	"context"
	"fmt"
	"time"

	"class-booking/internal/mailer"
	"class-booking/internal/util"

	"go.uber.org/zap"
)

// ReminderService emails students shortly before their session starts
type ReminderService struct {
	repo   Repository
	mailer mailer.Mailer
	cache  Cache
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewReminderService creates a new reminder service
func NewReminderService(repo Repository, m mailer.Mailer, cache Cache, window time.Duration) *ReminderService {
	return &ReminderService{
		repo:   repo,
		mailer: m,
		cache:  cache,
		window: window,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// SendDueReminders sends one reminder per enrollment starting within the window
func (rs *ReminderService) SendDueReminders(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "ReminderService.SendDueReminders")
	defer span.End()

	now := rs.now()
	targets, err := rs.repo.ListReminderTargets(ctx, now, now.Add(rs.window))
	if err != nil {
		return 0, fmt.Errorf("failed to list reminder targets: %w", err)
	}

	sent := 0
	for i := range targets {
		t := &targets[i]
		if t.User.Email == "" {
			continue
		}

		first, err := rs.cache.MarkReminderSent(ctx, t.EnrollmentID)
		if err != nil {
			rs.logger.Warn("Reminder mark failed, skipping", zap.String("enrollment_id", t.EnrollmentID), zap.Error(err))
			continue
		}
		if !first {
			continue
		}

		msg, err := mailer.ReminderEmail(t.User.Email, mailer.NewClassDetails(&t.User, &t.Class, &t.Schedule))
		if err == nil {
			err = rs.mailer.Send(ctx, msg)
		}
		if err != nil {
			util.EmailsSentTotal.WithLabelValues("reminder", "error").Inc()
			rs.logger.Error("Error sending reminder", zap.String("enrollment_id", t.EnrollmentID), zap.Error(err))
			if cerr := rs.cache.ClearReminderSent(ctx, t.EnrollmentID); cerr != nil {
				rs.logger.Warn("Failed to clear reminder mark", zap.String("enrollment_id", t.EnrollmentID), zap.Error(cerr))
			}
			continue
		}

		util.EmailsSentTotal.WithLabelValues("reminder", "sent").Inc()
		sent++
	}

	if sent > 0 {
		rs.logger.Info("Reminders sent", zap.Int("count", sent))
	}
	return sent, nil
}
