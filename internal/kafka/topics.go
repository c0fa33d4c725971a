package kafka

// Topic names shared by the producers and consumers.
const (
	TopicReminders    = "care.tasks.reminders"
	TopicRemindersDLQ = "care.tasks.reminders.dlq"
	TopicAuditErrors  = "care.audit.errors"
)
