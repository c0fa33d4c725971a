// Package reminders carries reminder events from the sweep to the notifier.
package reminders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
	"github.com/ramiqadoumi/go-care-tasks/internal/kafka"
)

// Publisher hands a reminder to whatever delivers it.
type Publisher interface {
	Publish(ctx context.Context, r domain.Reminder) error
}

// KafkaPublisher writes reminders to the reminders topic keyed by task id.
type KafkaPublisher struct {
	producer kafka.Producer
	topic    string
}

func NewKafkaPublisher(producer kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: kafka.TopicReminders}
}

func (p *KafkaPublisher) Publish(ctx context.Context, r domain.Reminder) error {
	if err := kafka.PublishJSON(ctx, p.producer, p.topic, r.TaskID, r); err != nil {
		return fmt.Errorf("publish reminder for %s: %w", r.TaskID, err)
	}
	return nil
}

// Nop drops reminders. The sweep still flips reminder_sent.
type Nop struct{}

func (Nop) Publish(context.Context, domain.Reminder) error { return nil }

// Decode parses a reminder message. A malformed message is permanent.
func Decode(value []byte) (domain.Reminder, error) {
	var r domain.Reminder
	if err := json.Unmarshal(value, &r); err != nil {
		return r, &domain.PermanentError{Err: fmt.Errorf("decode reminder: %w", err)}
	}
	if r.TaskID == "" || r.TenantID == "" {
		return r, &domain.PermanentError{Err: fmt.Errorf("reminder missing task or tenant id")}
	}
	return r, nil
}
