package service

import (
	"context"
	"errors"
	"fmt"

	"class-booking/internal/models"
	"class-booking/internal/redisclient"
	"class-booking/internal/store"
	"class-booking/internal/util"

	"go.uber.org/zap"
)

// CapacityService keeps schedule enrolled counts in step with enrollment events
type CapacityService struct {
	repo   Repository
	cache  Cache
	logger *zap.Logger
}

// NewCapacityService creates a new capacity service
func NewCapacityService(repo Repository, cache Cache) *CapacityService {
	return &CapacityService{
		repo:   repo,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// HandleEnrollmentConfirmed takes a seat on the enrollment's schedule
func (cs *CapacityService) HandleEnrollmentConfirmed(ctx context.Context, event *models.EnrollmentConfirmedEvent) error {
	ctx, span := util.StartSpan(ctx, "CapacityService.HandleEnrollmentConfirmed")
	defer span.End()

	return cs.adjust(ctx, event.EventID, event.EventType, event.ScheduleID, 1)
}

// HandlePaymentRefunded frees the seat held by a cancelled enrollment
func (cs *CapacityService) HandlePaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error {
	ctx, span := util.StartSpan(ctx, "CapacityService.HandlePaymentRefunded")
	defer span.End()

	if event.ScheduleID == "" {
		cs.logger.Debug("Refund had no enrollment, nothing to release", zap.String("payment_id", event.PaymentID))
		return nil
	}
	return cs.adjust(ctx, event.EventID, event.EventType, event.ScheduleID, -1)
}

func (cs *CapacityService) adjust(ctx context.Context, eventID, eventType, scheduleID string, delta int) error {
	claimed, err := cs.repo.ClaimEvent(ctx, eventID, eventType)
	if err != nil {
		return fmt.Errorf("failed to claim event: %w", err)
	}
	if !claimed {
		cs.logger.Info("Event already processed", zap.String("event_id", eventID))
		return nil
	}

	schedule, err := cs.repo.AdjustScheduleEnrollment(ctx, scheduleID, delta)
	if errors.Is(err, store.ErrNotFound) {
		cs.logger.Warn("Schedule no longer exists", zap.String("schedule_id", scheduleID))
		return nil
	}
	if err != nil {
		if rerr := cs.repo.ReleaseEvent(ctx, eventID); rerr != nil {
			cs.logger.Error("Failed to release event claim", zap.String("event_id", eventID), zap.Error(rerr))
		}
		return fmt.Errorf("failed to adjust schedule %s: %w", scheduleID, err)
	}

	cs.logger.Info("Schedule capacity updated",
		zap.String("schedule_id", schedule.ID),
		zap.Int("enrolled_count", schedule.EnrolledCount),
		zap.Bool("is_full", schedule.IsFull))

	// listings embed schedule counters
	if err := cs.cache.Delete(ctx, redisclient.KeyActiveClasses); err != nil {
		cs.logger.Warn("Class cache invalidation failed", zap.Error(err))
	}
	return nil
}
