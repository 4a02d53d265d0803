package service

import (
	"time"

	"class-booking/internal/models"
	"class-booking/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func init() {
	util.SetLogger(zap.NewNop())
}

type testEnv struct {
	repo      *fakeRepo
	gateway   *fakeGateway
	mailer    *fakeMailer
	cache     *fakeCache
	publisher *fakePublisher

	user     *models.User
	class    *models.Class
	schedule *models.Schedule
}

// newTestEnv seeds one student, one active class and one schedule a week out
func newTestEnv() *testEnv {
	env := &testEnv{
		repo:      newFakeRepo(),
		gateway:   newFakeGateway(),
		mailer:    &fakeMailer{},
		cache:     newFakeCache(),
		publisher: &fakePublisher{},
	}

	name := "Ana Lima"
	env.user = &models.User{ID: "user-1", Email: "ana@example.com", FullName: &name, Role: models.RoleStudent}
	env.repo.users[env.user.ID] = env.user

	capacity := 10
	env.class = &models.Class{
		ID:          "class-1",
		Title:       "Intro to Go",
		Description: "Basics",
		Price:       decimal.RequireFromString("49.99"),
		MaxStudents: &capacity,
		MeetingLink: "https://teams.example/meet",
		MeetingType: models.MeetingTypeTeams,
		Level:       models.LevelBeginner,
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
	env.repo.classes[env.class.ID] = env.class

	env.schedule = &models.Schedule{
		ID:        "schedule-1",
		ClassID:   env.class.ID,
		StartDate: models.NewDate(time.Now().AddDate(0, 0, 7)),
		StartTime: "10:00",
		EndTime:   "12:00",
		Timezone:  "UTC",
	}
	env.repo.schedules[env.schedule.ID] = env.schedule

	return env
}

// pendingPayment inserts a pending payment for the seeded booking
func (env *testEnv) pendingPayment() *models.Payment {
	p := &models.Payment{
		ID:            "payment-1",
		UserID:        env.user.ID,
		ClassID:       env.class.ID,
		Amount:        env.class.Price,
		Currency:      "USD",
		PaymentMethod: models.PaymentMethodStripe,
		Status:        models.PaymentStatusPending,
		CreatedAt:     time.Now(),
	}
	env.repo.payments[p.ID] = p
	return p
}

func (env *testEnv) webhookService() *WebhookService {
	return NewWebhookService(env.repo, env.gateway, env.mailer, env.cache, env.publisher,
		NewCapacityService(env.repo, env.cache))
}

func (env *testEnv) checkoutService() *CheckoutService {
	return NewCheckoutService(env.repo, env.gateway, "https://classes.example", "usd")
}

func (env *testEnv) catalogService() *CatalogService {
	return NewCatalogService(env.repo, env.cache, time.Minute)
}

func (env *testEnv) adminService() *AdminService {
	return NewAdminService(env.repo, env.gateway, env.cache, env.publisher, env.catalogService())
}
