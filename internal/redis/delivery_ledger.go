package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

const deliveryTTL = 24 * time.Hour

func deliveryKey(r domain.Reminder) string {
	return fmt.Sprintf("care:%s:delivered:%s:%d", r.TenantID, r.TaskID, r.ReminderTime.Unix())
}

// DeliveryLedger records which reminders have been delivered so a
// redelivered Kafka message does not notify twice.
type DeliveryLedger interface {
	// Claim marks the reminder as being delivered. It returns false when
	// another delivery already claimed it.
	Claim(ctx context.Context, r domain.Reminder) (bool, error)
	// Release forgets a claim after a failed delivery so it can be retried.
	Release(ctx context.Context, r domain.Reminder) error
}

type deliveryLedger struct {
	client redis.UniversalClient
}

// NewDeliveryLedger creates a Redis-backed DeliveryLedger.
func NewDeliveryLedger(client redis.UniversalClient) DeliveryLedger {
	return &deliveryLedger{client: client}
}

func (l *deliveryLedger) Claim(ctx context.Context, r domain.Reminder) (bool, error) {
	ok, err := l.client.SetNX(ctx, deliveryKey(r), time.Now().UTC().Format(time.RFC3339), deliveryTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim delivery for %s: %w", r.TaskID, err)
	}
	return ok, nil
}

func (l *deliveryLedger) Release(ctx context.Context, r domain.Reminder) error {
	if err := l.client.Del(ctx, deliveryKey(r)).Err(); err != nil {
		return fmt.Errorf("redis release delivery for %s: %w", r.TaskID, err)
	}
	return nil
}
