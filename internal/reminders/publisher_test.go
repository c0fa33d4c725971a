package reminders_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
	"github.com/ramiqadoumi/go-care-tasks/internal/kafka"
	"github.com/ramiqadoumi/go-care-tasks/internal/reminders"
)

type fakeProducer struct {
	topic, key string
	value      []byte
	err        error
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, value []byte) error {
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

func (p *fakeProducer) Close() error { return nil }

func TestKafkaPublisher_RoundTripsThroughDecode(t *testing.T) {
	p := &fakeProducer{}
	pub := reminders.NewKafkaPublisher(p)
	assignee := "nurse@example.org"
	r := domain.Reminder{
		TaskID:       "task-1",
		TenantID:     "tenant-1",
		Title:        "Insulin",
		Priority:     domain.PriorityHigh,
		AssignedTo:   &assignee,
		ReminderTime: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		SentAt:       time.Date(2024, 1, 1, 7, 58, 0, 0, time.UTC),
	}

	require.NoError(t, pub.Publish(context.Background(), r))
	assert.Equal(t, kafka.TopicReminders, p.topic)
	assert.Equal(t, "task-1", p.key)

	got, err := reminders.Decode(p.value)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestKafkaPublisher_WrapsError(t *testing.T) {
	sentinel := errors.New("broker down")
	err := reminders.NewKafkaPublisher(&fakeProducer{err: sentinel}).
		Publish(context.Background(), domain.Reminder{TaskID: "t"})
	assert.ErrorIs(t, err, sentinel)
}

func TestDecode_MalformedIsPermanent(t *testing.T) {
	for _, raw := range []string{`not-json`, `{"task_id":""}`, `{"task_id":"t"}`} {
		_, err := reminders.Decode([]byte(raw))
		var perm *domain.PermanentError
		assert.ErrorAs(t, err, &perm, raw)
	}
}
