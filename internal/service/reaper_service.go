package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"class-booking/internal/models"
	"class-booking/internal/payment"
	"class-booking/internal/store"
	"class-booking/internal/util"

	"go.uber.org/zap"
)

const reaperBatchSize = 100

// ReaperService settles pending payments whose checkout was abandoned
type ReaperService struct {
	repo      Repository
	gateway   payment.Gateway
	publisher Publisher
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewReaperService creates a new reaper service
func NewReaperService(repo Repository, gateway payment.Gateway, publisher Publisher, ttl time.Duration) *ReaperService {
	return &ReaperService{
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		ttl:       ttl,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// ExpireStalePayments checks pending payments older than the TTL against the provider.
// Expired or never-created sessions become failed; completed ones are left to the webhook.
func (rs *ReaperService) ExpireStalePayments(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "ReaperService.ExpireStalePayments")
	defer span.End()

	stale, err := rs.repo.ListStalePendingPayments(ctx, rs.now().Add(-rs.ttl), reaperBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale payments: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	rs.logger.Info("Found stale pending payments", zap.Int("count", len(stale)))

	failed := 0
	for _, p := range stale {
		state := payment.SessionMissing
		if p.CheckoutSessionID != nil {
			state, err = rs.gateway.SessionStatus(ctx, *p.CheckoutSessionID)
			if err != nil {
				rs.logger.Error("Failed to check session status",
					zap.String("payment_id", p.ID), zap.Error(err))
				continue
			}
		}

		switch state {
		case payment.SessionComplete:
			rs.logger.Warn("Checkout completed but payment still pending, awaiting webhook",
				zap.String("payment_id", p.ID))
			continue
		case payment.SessionOpen:
			continue
		}

		if err := rs.fail(ctx, &p, string(state)); err != nil {
			rs.logger.Error("Failed to expire payment", zap.String("payment_id", p.ID), zap.Error(err))
			continue
		}
		failed++
	}

	return failed, nil
}

func (rs *ReaperService) fail(ctx context.Context, p *models.Payment, reason string) error {
	_, err := rs.repo.MarkPaymentFailed(ctx, p.ID)
	if errors.Is(err, store.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}

	util.PaymentsTotal.WithLabelValues(string(models.PaymentStatusFailed)).Inc()
	rs.logger.Info("Pending payment expired", zap.String("payment_id", p.ID), zap.String("reason", reason))

	event := &models.PaymentFailedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentFailed),
		PaymentID: p.ID,
		Reason:    "checkout_session_" + reason,
	}
	if err := rs.publisher.PublishPaymentFailed(ctx, event); err != nil {
		rs.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}
	return nil
}
