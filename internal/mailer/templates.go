package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"class-booking/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	confirmationTmpl = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/confirmation.html"))
	reminderTmpl     = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/reminder.html"))
)

const signOff = "The Class Booking Team"

// ClassDetails is what both templates render about a booked session
type ClassDetails struct {
	StudentName string
	ClassTitle  string
	Date        string
	Time        string
	MeetingLink string
	Platform    string
	Price       string
	SignOff     string
}

// NewClassDetails builds template data from the booked rows
func NewClassDetails(user *models.User, class *models.Class, schedule *models.Schedule) ClassDetails {
	return ClassDetails{
		StudentName: user.DisplayName(),
		ClassTitle:  class.Title,
		Date:        schedule.StartDate.Format("Monday, January 2, 2006"),
		Time:        fmt.Sprintf("%s - %s %s", schedule.StartTime, schedule.EndTime, schedule.Timezone),
		MeetingLink: class.MeetingLink,
		Platform:    platformName(class.MeetingType),
		Price:       "$" + class.Price.StringFixed(2),
		SignOff:     signOff,
	}
}

// ConfirmationEmail renders the enrollment confirmation
func ConfirmationEmail(to string, d ClassDetails) (Message, error) {
	body, err := render(confirmationTmpl, d)
	if err != nil {
		return Message{}, fmt.Errorf("render confirmation: %w", err)
	}
	return Message{To: to, Subject: "Enrollment Confirmed: " + d.ClassTitle, HTML: body}, nil
}

// ReminderEmail renders the upcoming class reminder
func ReminderEmail(to string, d ClassDetails) (Message, error) {
	body, err := render(reminderTmpl, d)
	if err != nil {
		return Message{}, fmt.Errorf("render reminder: %w", err)
	}
	return Message{To: to, Subject: "Class Reminder: " + d.ClassTitle, HTML: body}, nil
}

func render(t *template.Template, d ClassDetails) (string, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func platformName(meetingType string) string {
	switch meetingType {
	case models.MeetingTypeZoom:
		return "Zoom"
	case models.MeetingTypeGoogleMeet:
		return "Google Meet"
	default:
		return "Teams"
	}
}
