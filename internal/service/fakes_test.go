package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"class-booking/internal/mailer"
	"class-booking/internal/models"
	"class-booking/internal/payment"
	"class-booking/internal/store"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository with the same constraint behaviour as the Postgres store
type fakeRepo struct {
	mu          sync.Mutex
	users       map[string]*models.User
	classes     map[string]*models.Class
	schedules   map[string]*models.Schedule
	payments    map[string]*models.Payment
	enrollments map[string]*models.Enrollment
	events      map[string]string

	failMarkSucceeded error
	failEnrollment    error
	failAdjust        int
	writes            int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:       map[string]*models.User{},
		classes:     map[string]*models.Class{},
		schedules:   map[string]*models.Schedule{},
		payments:    map[string]*models.Payment{},
		enrollments: map[string]*models.Enrollment{},
		events:      map[string]string{},
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, id)
}

func (r *fakeRepo) ListActiveClasses(ctx context.Context) ([]models.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Class
	for _, c := range r.classes {
		if c.IsActive {
			out = append(out, r.withSchedules(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) ListClasses(ctx context.Context) ([]models.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Class
	for _, c := range r.classes {
		out = append(out, r.withSchedules(c))
	}
	return out, nil
}

func (r *fakeRepo) withSchedules(c *models.Class) models.Class {
	cp := *c
	cp.Schedules = []models.Schedule{}
	for _, s := range r.schedules {
		if s.ClassID == c.ID {
			cp.Schedules = append(cp.Schedules, *s)
		}
	}
	return cp
}

func (r *fakeRepo) GetActiveClass(ctx context.Context, id string) (*models.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[id]
	if !ok || !c.IsActive {
		return nil, notFound("class", id)
	}
	cp := r.withSchedules(c)
	return &cp, nil
}

func (r *fakeRepo) GetClassByID(ctx context.Context, id string) (*models.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[id]
	if !ok {
		return nil, notFound("class", id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeRepo) CreateClass(ctx context.Context, class *models.Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	class.ID = uuid.NewString()
	class.CreatedAt = time.Now()
	class.UpdatedAt = class.CreatedAt
	cp := *class
	r.classes[class.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdateClass(ctx context.Context, class *models.Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.classes[class.ID]
	if !ok {
		return notFound("class", class.ID)
	}
	if !current.Price.Equal(class.Price) {
		for _, p := range r.payments {
			if p.ClassID == class.ID {
				return fmt.Errorf("%w: price locked", store.ErrConflict)
			}
		}
	}
	class.CreatedAt = current.CreatedAt
	class.UpdatedAt = time.Now()
	cp := *class
	r.classes[class.ID] = &cp
	return nil
}

func (r *fakeRepo) DeleteClass(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[id]; !ok {
		return notFound("class", id)
	}
	for _, p := range r.payments {
		if p.ClassID == id {
			return fmt.Errorf("%w: referenced", store.ErrConflict)
		}
	}
	delete(r.classes, id)
	return nil
}

func (r *fakeRepo) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil, notFound("schedule", id)
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[schedule.ClassID]; !ok {
		return notFound("class", schedule.ClassID)
	}
	schedule.ID = uuid.NewString()
	cp := *schedule
	r.schedules[schedule.ID] = &cp
	return nil
}

func (r *fakeRepo) AdjustScheduleEnrollment(ctx context.Context, scheduleID string, delta int) (*models.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[scheduleID]
	if !ok {
		return nil, notFound("schedule", scheduleID)
	}
	if r.failAdjust > 0 {
		r.failAdjust--
		return nil, fmt.Errorf("connection reset")
	}
	s.EnrolledCount += delta
	if s.EnrolledCount < 0 {
		s.EnrolledCount = 0
	}
	c := r.classes[s.ClassID]
	s.IsFull = c != nil && c.MaxStudents != nil && s.EnrolledCount >= *c.MaxStudents
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) CreatePayment(ctx context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *fakeRepo) GetPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) GetPaymentBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.CheckoutSessionID != nil && *p.CheckoutSessionID == sessionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, notFound("payment", sessionID)
}

func (r *fakeRepo) SetCheckoutSession(ctx context.Context, paymentID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[paymentID]
	if !ok {
		return notFound("payment", paymentID)
	}
	r.writes++
	p.CheckoutSessionID = &sessionID
	return nil
}

func (r *fakeRepo) transition(paymentID string, to models.PaymentStatus, intentID *string) (*models.Payment, error) {
	p, ok := r.payments[paymentID]
	if !ok {
		return nil, notFound("payment", paymentID)
	}
	if !models.CanTransition(p.Status, to) {
		cp := *p
		return &cp, fmt.Errorf("%w: %s to %s", store.ErrInvalidTransition, p.Status, to)
	}
	r.writes++
	p.Status = to
	if intentID != nil {
		p.PaymentIntentID = intentID
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) MarkPaymentSucceeded(ctx context.Context, paymentID, intentID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMarkSucceeded != nil {
		return nil, r.failMarkSucceeded
	}
	return r.transition(paymentID, models.PaymentStatusSucceeded, &intentID)
}

func (r *fakeRepo) MarkPaymentFailed(ctx context.Context, paymentID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transition(paymentID, models.PaymentStatusFailed, nil)
}

func (r *fakeRepo) RefundPayment(ctx context.Context, paymentID string) (*models.Payment, *models.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.transition(paymentID, models.PaymentStatusRefunded, nil)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range r.enrollments {
		if e.PaymentID == paymentID && e.Status != models.EnrollmentStatusCancelled {
			e.Status = models.EnrollmentStatusCancelled
			cp := *e
			return p, &cp, nil
		}
	}
	return p, nil, nil
}

func (r *fakeRepo) ListPayments(ctx context.Context) ([]models.PaymentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.PaymentDetail{}
	for _, p := range r.payments {
		out = append(out, models.PaymentDetail{Payment: *p})
	}
	return out, nil
}

func (r *fakeRepo) ListStalePendingPayments(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.Status == models.PaymentStatusPending && p.CreatedAt.Before(before) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateEnrollment(ctx context.Context, e *models.Enrollment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failEnrollment != nil {
		return false, r.failEnrollment
	}
	for _, existing := range r.enrollments {
		if existing.PaymentID == e.PaymentID {
			return false, nil
		}
		if existing.UserID == e.UserID && existing.ScheduleID == e.ScheduleID &&
			existing.Status != models.EnrollmentStatusCancelled {
			return false, nil
		}
	}
	r.writes++
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now()
	cp := *e
	r.enrollments[e.ID] = &cp
	return true, nil
}

func (r *fakeRepo) GetEnrollmentByPaymentID(ctx context.Context, paymentID string) (*models.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.enrollments {
		if e.PaymentID == paymentID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, notFound("enrollment", paymentID)
}

func (r *fakeRepo) ListUserEnrollments(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.EnrollmentDetail{}
	for _, e := range r.enrollments {
		if e.UserID == userID && e.Status == models.EnrollmentStatusConfirmed {
			out = append(out, models.EnrollmentDetail{Enrollment: *e})
		}
	}
	return out, nil
}

func (r *fakeRepo) ListEnrollments(ctx context.Context) ([]models.EnrollmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.EnrollmentDetail{}
	for _, e := range r.enrollments {
		out = append(out, models.EnrollmentDetail{Enrollment: *e})
	}
	return out, nil
}

func (r *fakeRepo) ListReminderTargets(ctx context.Context, from, to time.Time) ([]models.ReminderTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ReminderTarget
	for _, e := range r.enrollments {
		if e.Status != models.EnrollmentStatusConfirmed {
			continue
		}
		s := r.schedules[e.ScheduleID]
		clock, err := time.Parse("15:04", s.StartTime)
		if err != nil {
			return nil, err
		}
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return nil, err
		}
		d := s.StartDate
		startsAt := time.Date(d.Year(), d.Month(), d.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
		if startsAt.Before(from) || !startsAt.Before(to) {
			continue
		}
		out = append(out, models.ReminderTarget{
			EnrollmentID: e.ID,
			User:         *r.users[e.UserID],
			Class:        *r.classes[e.ClassID],
			Schedule:     *s,
		})
	}
	return out, nil
}

func (r *fakeRepo) ClaimEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[eventID]; ok {
		return false, nil
	}
	r.events[eventID] = eventType
	return true, nil
}

func (r *fakeRepo) ReleaseEvent(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, eventID)
	return nil
}

func (r *fakeRepo) GetAdminStats(ctx context.Context, today time.Time) (*models.AdminStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &models.AdminStats{TotalClasses: len(r.classes), TotalEnrollments: len(r.enrollments)}
	for _, p := range r.payments {
		if p.Status == models.PaymentStatusSucceeded {
			stats.TotalRevenue = stats.TotalRevenue.Add(p.Amount)
		}
	}
	day := models.NewDate(today)
	for _, s := range r.schedules {
		if !s.StartDate.Before(day.Time) {
			stats.UpcomingClasses++
		}
	}
	return stats, nil
}

func (r *fakeRepo) enrollmentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.enrollments)
}

func (r *fakeRepo) payment(id string) models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.payments[id]
}

// fakeGateway verifies a fixed signature and returns canned events
type fakeGateway struct {
	mu        sync.Mutex
	events    map[string]*payment.Event
	sessions  []payment.CheckoutRequest
	states    map[string]payment.SessionState
	refunds   []string
	createErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{events: map[string]*payment.Event{}, states: map[string]payment.SessionState{}}
}

// register makes payload verifiable with signature "sig:<payload>"
func (g *fakeGateway) register(payload string, evt *payment.Event) (string, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[payload] = evt
	return payload, "sig:" + payload
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.sessions = append(g.sessions, req)
	id := fmt.Sprintf("cs_test_%d", len(g.sessions))
	return &payment.CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (g *fakeGateway) ConstructEvent(payload []byte, signature string) (*payment.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	evt, ok := g.events[string(payload)]
	if !ok || signature != "sig:"+string(payload) {
		return nil, fmt.Errorf("%w: no signatures found matching the expected signature", payment.ErrInvalidSignature)
	}
	return evt, nil
}

func (g *fakeGateway) SessionStatus(ctx context.Context, sessionID string) (payment.SessionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.states[sessionID]; ok {
		return s, nil
	}
	return payment.SessionMissing, nil
}

func (g *fakeGateway) Refund(ctx context.Context, paymentIntentID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, paymentIntentID)
	return "re_" + paymentIntentID, nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeCache struct {
	mu    sync.Mutex
	data  map[string][]byte
	seen  map[string]bool
	marks map[string]bool
	locks map[string]bool
	sets  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		data:  map[string][]byte{},
		seen:  map[string]bool{},
		marks: map[string]bool{},
		locks: map[string]bool{},
	}
}

func (c *fakeCache) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *fakeCache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.sets++
	c.data[key] = raw
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *fakeCache) IsEventSeen(ctx context.Context, eventID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[eventID], nil
}

func (c *fakeCache) MarkEventSeen(ctx context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[eventID] = true
	return nil
}

func (c *fakeCache) MarkReminderSent(ctx context.Context, enrollmentID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.marks[enrollmentID] {
		return false, nil
	}
	c.marks[enrollmentID] = true
	return true, nil
}

func (c *fakeCache) ClearReminderSent(ctx context.Context, enrollmentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.marks, enrollmentID)
	return nil
}

func (c *fakeCache) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locks[lockKey] {
		return false, nil
	}
	c.locks[lockKey] = true
	return true, nil
}

func (c *fakeCache) ReleaseLock(ctx context.Context, lockKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, lockKey)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	confirmed []*models.EnrollmentConfirmedEvent
	succeeded []*models.PaymentSucceededEvent
	failed    []*models.PaymentFailedEvent
	refunded  []*models.PaymentRefundedEvent

	failConfirmed error
}

func (p *fakePublisher) PublishEnrollmentConfirmed(ctx context.Context, e *models.EnrollmentConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failConfirmed != nil {
		return p.failConfirmed
	}
	p.confirmed = append(p.confirmed, e)
	return nil
}

func (p *fakePublisher) PublishPaymentSucceeded(ctx context.Context, e *models.PaymentSucceededEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.succeeded = append(p.succeeded, e)
	return nil
}

func (p *fakePublisher) PublishPaymentFailed(ctx context.Context, e *models.PaymentFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, e)
	return nil
}

func (p *fakePublisher) PublishPaymentRefunded(ctx context.Context, e *models.PaymentRefundedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunded = append(p.refunded, e)
	return nil
}
