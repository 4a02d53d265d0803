package redisclient

import "time"

const (
	// Active class listing: classes:active -> JSON array
	KeyActiveClasses = "classes:active"

	// Webhook event seen mark: webhook:seen:{event_id} -> "1"
	KeyWebhookSeen = "webhook:seen:%s"

	// Reminder sent mark: reminder:sent:{enrollment_id} -> "1"
	KeyReminderSent = "reminder:sent:%s"

	// Short mutual exclusion: lock:{name}
	KeyLock = "lock:%s"
)

var (
	TTLWebhookSeen  = 72 * time.Hour
	TTLReminderSent = 7 * 24 * time.Hour
)
