package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the application-side profile of an authenticated identity
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  *string   `db:"full_name" json:"full_name"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DisplayName is the full name, or the local part of the email when unset.
func (u *User) DisplayName() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	for i := 0; i < len(u.Email); i++ {
		if u.Email[i] == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}

// UserSummary is the slice of a user shown on admin lists
type UserSummary struct {
	Email    string  `db:"email" json:"email"`
	FullName *string `db:"full_name" json:"full_name"`
}

// Class represents a bookable course
type Class struct {
	ID              string          `db:"id" json:"id"`
	Title           string          `db:"title" json:"title"`
	Description     string          `db:"description" json:"description"`
	LongDescription *string         `db:"long_description" json:"long_description"`
	Price           decimal.Decimal `db:"price" json:"price"`
	DurationHours   int             `db:"duration_hours" json:"duration_hours"`
	InstructorName  string          `db:"instructor_name" json:"instructor_name"`
	InstructorBio   *string         `db:"instructor_bio" json:"instructor_bio"`
	MaxStudents     *int            `db:"max_students" json:"max_students"`
	MeetingLink     string          `db:"meeting_link" json:"meeting_link"`
	MeetingType     string          `db:"meeting_type" json:"meeting_type"`
	Category        string          `db:"category" json:"category"`
	Level           string          `db:"level" json:"level"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`

	Schedules []Schedule `db:"-" json:"class_schedules,omitempty"`
}

// Schedule is one dated session of a class
type Schedule struct {
	ID            string `db:"id" json:"id"`
	ClassID       string `db:"class_id" json:"class_id"`
	StartDate     Date   `db:"start_date" json:"start_date"`
	StartTime     string `db:"start_time" json:"start_time"`
	EndTime       string `db:"end_time" json:"end_time"`
	Timezone      string `db:"timezone" json:"timezone"`
	IsFull        bool   `db:"is_full" json:"is_full"`
	EnrolledCount int    `db:"enrolled_count" json:"enrolled_count"`
}

// Payment represents a checkout attempt for one class
type Payment struct {
	ID                string          `db:"id" json:"id"`
	UserID            string          `db:"user_id" json:"user_id"`
	ClassID           string          `db:"class_id" json:"class_id"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Currency          string          `db:"currency" json:"currency"`
	PaymentMethod     string          `db:"payment_method" json:"payment_method"`
	CheckoutSessionID *string         `db:"checkout_session_id" json:"checkout_session_id"`
	PaymentIntentID   *string         `db:"payment_intent_id" json:"payment_intent_id"`
	PaypalOrderID     *string         `db:"paypal_order_id" json:"paypal_order_id"`
	Status            PaymentStatus   `db:"status" json:"status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentDetail is a payment joined with its payer and class for admin lists
type PaymentDetail struct {
	Payment
	User  *UserSummary  `db:"user" json:"user,omitempty"`
	Class *ClassSummary `db:"class" json:"class,omitempty"`
}

// ClassSummary is the slice of a class shown on admin lists
type ClassSummary struct {
	Title    string `db:"title" json:"title"`
	Category string `db:"category" json:"category"`
}

// Enrollment links a student to a class schedule through a payment
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"user_id"`
	ClassID    string           `db:"class_id" json:"class_id"`
	ScheduleID string           `db:"schedule_id" json:"schedule_id"`
	PaymentID  string           `db:"payment_id" json:"payment_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}

// EnrollmentDetail is an enrollment joined with the rows the dashboards render
type EnrollmentDetail struct {
	Enrollment
	Class    *Class       `db:"class" json:"class,omitempty"`
	Schedule *Schedule    `db:"schedule" json:"schedule,omitempty"`
	User     *UserSummary `db:"user" json:"user,omitempty"`
}

// Roles
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Payment methods
const (
	PaymentMethodStripe = "stripe"
	PaymentMethodPayPal = "paypal"
)

// Meeting types
const (
	MeetingTypeTeams      = "teams"
	MeetingTypeZoom       = "zoom"
	MeetingTypeGoogleMeet = "google-meet"
)

// Levels
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// EnrollmentStatus values
type EnrollmentStatus string

const (
	EnrollmentStatusPending   EnrollmentStatus = "pending"
	EnrollmentStatusConfirmed EnrollmentStatus = "confirmed"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// AdminStats backs the admin dashboard cards
type AdminStats struct {
	TotalClasses     int             `db:"total_classes" json:"totalClasses"`
	TotalEnrollments int             `db:"total_enrollments" json:"totalEnrollments"`
	TotalRevenue     decimal.Decimal `db:"total_revenue" json:"totalRevenue"`
	UpcomingClasses  int             `db:"upcoming_classes" json:"upcomingClasses"`
}

// ReminderTarget is a confirmed enrollment whose session starts soon
type ReminderTarget struct {
	EnrollmentID string   `db:"enrollment_id"`
	User         User     `db:"user"`
	Class        Class    `db:"class"`
	Schedule     Schedule `db:"schedule"`
}
