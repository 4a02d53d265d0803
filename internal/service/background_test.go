package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"class-booking/internal/models"
	"class-booking/internal/payment"
	"class-booking/internal/redisclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacityTracksEnrollments(t *testing.T) {
	env := newTestEnv()
	capacity := 2
	env.class.MaxStudents = &capacity
	env.cache.data[redisclient.KeyActiveClasses] = []byte("[]")
	svc := NewCapacityService(env.repo, env.cache)
	ctx := context.Background()

	confirmed := func(id string) *models.EnrollmentConfirmedEvent {
		return &models.EnrollmentConfirmedEvent{
			BaseEvent:  models.BaseEvent{EventID: id, EventType: models.EventTypeEnrollmentConfirmed},
			ScheduleID: env.schedule.ID,
		}
	}

	require.NoError(t, svc.HandleEnrollmentConfirmed(ctx, confirmed("e1")))
	assert.Equal(t, 1, env.schedule.EnrolledCount)
	assert.False(t, env.schedule.IsFull)
	assert.NotContains(t, env.cache.data, redisclient.KeyActiveClasses)

	// redelivery of the same event is absorbed
	require.NoError(t, svc.HandleEnrollmentConfirmed(ctx, confirmed("e1")))
	assert.Equal(t, 1, env.schedule.EnrolledCount)

	require.NoError(t, svc.HandleEnrollmentConfirmed(ctx, confirmed("e2")))
	assert.Equal(t, 2, env.schedule.EnrolledCount)
	assert.True(t, env.schedule.IsFull)

	refund := &models.PaymentRefundedEvent{
		BaseEvent:  models.BaseEvent{EventID: "r1", EventType: models.EventTypePaymentRefunded},
		ScheduleID: env.schedule.ID,
	}
	require.NoError(t, svc.HandlePaymentRefunded(ctx, refund))
	assert.Equal(t, 1, env.schedule.EnrolledCount)
	assert.False(t, env.schedule.IsFull)

	noSeat := &models.PaymentRefundedEvent{BaseEvent: models.BaseEvent{EventID: "r2", EventType: models.EventTypePaymentRefunded}}
	require.NoError(t, svc.HandlePaymentRefunded(ctx, noSeat))
	assert.Equal(t, 1, env.schedule.EnrolledCount)
}

func TestCapacityRetryAfterFailureCountsOnce(t *testing.T) {
	env := newTestEnv()
	env.repo.failAdjust = 1
	svc := NewCapacityService(env.repo, env.cache)
	ctx := context.Background()
	event := &models.EnrollmentConfirmedEvent{
		BaseEvent:  models.BaseEvent{EventID: "e1", EventType: models.EventTypeEnrollmentConfirmed},
		ScheduleID: env.schedule.ID,
	}

	require.Error(t, svc.HandleEnrollmentConfirmed(ctx, event))
	assert.Zero(t, env.schedule.EnrolledCount)
	assert.NotContains(t, env.repo.events, "e1")

	require.NoError(t, svc.HandleEnrollmentConfirmed(ctx, event))
	require.NoError(t, svc.HandleEnrollmentConfirmed(ctx, event))
	assert.Equal(t, 1, env.schedule.EnrolledCount)
}

func TestCapacityUnknownSchedule(t *testing.T) {
	env := newTestEnv()
	svc := NewCapacityService(env.repo, env.cache)

	err := svc.HandleEnrollmentConfirmed(context.Background(), &models.EnrollmentConfirmedEvent{
		BaseEvent:  models.BaseEvent{EventID: "e1", EventType: models.EventTypeEnrollmentConfirmed},
		ScheduleID: "gone",
	})
	assert.NoError(t, err)
}

func (env *testEnv) stalePayment(id string, session *string, age time.Duration) *models.Payment {
	p := &models.Payment{
		ID:                id,
		UserID:            env.user.ID,
		ClassID:           env.class.ID,
		Amount:            env.class.Price,
		Currency:          "USD",
		PaymentMethod:     models.PaymentMethodStripe,
		CheckoutSessionID: session,
		Status:            models.PaymentStatusPending,
		CreatedAt:         time.Now().Add(-age),
	}
	env.repo.payments[id] = p
	return p
}

func TestReaperExpiresAbandonedCheckouts(t *testing.T) {
	env := newTestEnv()
	sid := func(s string) *string { return &s }

	env.stalePayment("expired", sid("cs_expired"), 2*time.Hour)
	env.stalePayment("open", sid("cs_open"), 2*time.Hour)
	env.stalePayment("complete", sid("cs_complete"), 2*time.Hour)
	env.stalePayment("no-session", nil, 2*time.Hour)
	env.stalePayment("fresh", sid("cs_fresh"), time.Minute)

	env.gateway.states["cs_expired"] = payment.SessionExpired
	env.gateway.states["cs_open"] = payment.SessionOpen
	env.gateway.states["cs_complete"] = payment.SessionComplete

	svc := NewReaperService(env.repo, env.gateway, env.publisher, time.Hour)
	n, err := svc.ExpireStalePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, models.PaymentStatusFailed, env.repo.payment("expired").Status)
	assert.Equal(t, models.PaymentStatusFailed, env.repo.payment("no-session").Status)
	assert.Equal(t, models.PaymentStatusPending, env.repo.payment("open").Status)
	assert.Equal(t, models.PaymentStatusPending, env.repo.payment("complete").Status)
	assert.Equal(t, models.PaymentStatusPending, env.repo.payment("fresh").Status)

	require.Len(t, env.publisher.failed, 2)
	reasons := []string{env.publisher.failed[0].Reason, env.publisher.failed[1].Reason}
	assert.ElementsMatch(t, []string{"checkout_session_expired", "checkout_session_missing"}, reasons)

	n, err = svc.ExpireStalePayments(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

// reminderFixture enrolls the seeded user in a session starting startsIn after the service clock
func (env *testEnv) reminderFixture(startsIn time.Duration) *ReminderService {
	startsAt := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	env.schedule.StartDate = models.NewDate(startsAt)
	env.schedule.StartTime = startsAt.Format("15:04")
	env.schedule.EndTime = startsAt.Add(time.Hour).Format("15:04")

	env.repo.enrollments["enr-1"] = &models.Enrollment{
		ID:         "enr-1",
		UserID:     env.user.ID,
		ClassID:    env.class.ID,
		ScheduleID: env.schedule.ID,
		PaymentID:  "payment-1",
		Status:     models.EnrollmentStatusConfirmed,
	}

	svc := NewReminderService(env.repo, env.mailer, env.cache, 24*time.Hour)
	now := startsAt.Add(-startsIn)
	svc.now = func() time.Time { return now }
	return svc
}

func TestRemindersSentOnce(t *testing.T) {
	env := newTestEnv()
	svc := env.reminderFixture(2 * time.Hour)
	ctx := context.Background()

	n, err := svc.SendDueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, 1, env.mailer.count())
	assert.Equal(t, "Class Reminder: Intro to Go", env.mailer.sent[0].Subject)

	n, err = svc.SendDueReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, env.mailer.count())
}

func TestRemindersOutsideWindow(t *testing.T) {
	env := newTestEnv()
	svc := env.reminderFixture(30 * time.Hour)

	n, err := svc.SendDueReminders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, env.mailer.count())
}

func TestRemindersUseScheduleTimezone(t *testing.T) {
	// the same wall clock in Tokyo has already passed, in Los Angeles it is hours away
	cases := map[string]int{"Asia/Tokyo": 0, "America/Los_Angeles": 1}
	for tz, want := range cases {
		t.Run(tz, func(t *testing.T) {
			env := newTestEnv()
			svc := env.reminderFixture(2 * time.Hour)
			env.schedule.Timezone = tz

			n, err := svc.SendDueReminders(context.Background())
			require.NoError(t, err)
			assert.Equal(t, want, n)
		})
	}
}

func TestReminderRetriedAfterSendFailure(t *testing.T) {
	env := newTestEnv()
	svc := env.reminderFixture(time.Hour)
	env.mailer.err = fmt.Errorf("smtp down")
	ctx := context.Background()

	n, err := svc.SendDueReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, env.cache.marks)

	env.mailer.err = nil
	n, err = svc.SendDueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
