package worker

import (
	"context"
	"time"

	"class-booking/internal/broker"
	"class-booking/internal/service"
	"class-booking/internal/util"

	"go.uber.org/zap"
)

// MessageSource is the consuming side of the event bus
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// CapacityWorker applies enrollment and refund events to schedule counters
type CapacityWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewCapacityWorker creates a new capacity worker
func NewCapacityWorker(consumer MessageSource, capacity *service.CapacityService) *CapacityWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnEnrollmentConfirmed(capacity.HandleEnrollmentConfirmed)
	eventHandler.OnPaymentRefunded(capacity.HandlePaymentRefunded)

	return &CapacityWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming events until ctx is cancelled
func (w *CapacityWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting capacity worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CapacityWorker) Stop() error {
	w.logger.Info("Stopping capacity worker...")
	return w.consumer.Close()
}

// Locker guards a periodic job so only one replica runs it per tick
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// Job is one pass of a periodic worker; it reports how many items it handled
type Job func(ctx context.Context) (int, error)

// PeriodicWorker runs a job on a fixed interval
type PeriodicWorker struct {
	name     string
	interval time.Duration
	job      Job
	locker   Locker
	logger   *zap.Logger
}

// NewPeriodicWorker creates a worker that runs job every interval. locker may be nil.
func NewPeriodicWorker(name string, interval time.Duration, job Job, locker Locker) *PeriodicWorker {
	return &PeriodicWorker{
		name:     name,
		interval: interval,
		job:      job,
		locker:   locker,
		logger:   util.GetLogger().With(zap.String("worker", name)),
	}
}

// NewReaperWorker expires abandoned checkouts
func NewReaperWorker(reaper *service.ReaperService, locker Locker, interval time.Duration) *PeriodicWorker {
	return NewPeriodicWorker("payment_reaper", interval, reaper.ExpireStalePayments, locker)
}

// NewReminderWorker sends upcoming class reminders
func NewReminderWorker(reminders *service.ReminderService, locker Locker, interval time.Duration) *PeriodicWorker {
	return NewPeriodicWorker("class_reminder", interval, reminders.SendDueReminders, locker)
}

// Run blocks until ctx is cancelled
func (w *PeriodicWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Periodic worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Periodic worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single pass, skipping it when another replica holds the lock
func (w *PeriodicWorker) RunOnce(ctx context.Context) {
	ctx, span := util.StartSpan(ctx, "Worker."+w.name)
	defer span.End()

	if w.locker != nil {
		lockKey := "worker:" + w.name
		locked, err := w.locker.AcquireLock(ctx, lockKey, w.interval)
		if err != nil {
			util.WorkerRunsTotal.WithLabelValues(w.name, "error").Inc()
			w.logger.Warn("Failed to acquire worker lock", zap.Error(err))
			return
		}
		if !locked {
			util.WorkerRunsTotal.WithLabelValues(w.name, "skipped").Inc()
			return
		}
		defer func() {
			if err := w.locker.ReleaseLock(ctx, lockKey); err != nil {
				w.logger.Warn("Failed to release worker lock", zap.Error(err))
			}
		}()
	}

	n, err := w.job(ctx)
	if err != nil {
		util.WorkerRunsTotal.WithLabelValues(w.name, "error").Inc()
		w.logger.Error("Worker pass failed", zap.Error(err))
		return
	}

	util.WorkerRunsTotal.WithLabelValues(w.name, "ok").Inc()
	if n > 0 {
		w.logger.Info("Worker pass completed", zap.Int("handled", n))
	}
}
