package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ramiqadoumi/go-care-tasks/internal/kafka"
)

const publishTimeout = 5 * time.Second

// KafkaSink publishes entries as JSON to the audit topic from a background
// goroutine. When the buffer is full, or the sink is closed, the entry is
// dropped with a warning.
type KafkaSink struct {
	producer kafka.Producer
	topic    string
	logger   *slog.Logger

	queue chan record
	wg    sync.WaitGroup

	mu     sync.Mutex // guards closed and sends on queue
	closed bool
}

// NewKafkaSink starts the publishing goroutine. Call Close to flush.
func NewKafkaSink(producer kafka.Producer, buffer int, logger *slog.Logger) *KafkaSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &KafkaSink{
		producer: producer,
		topic:    kafka.TopicAuditErrors,
		logger:   logger,
		queue:    make(chan record, buffer),
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

func (s *KafkaSink) LogError(_ context.Context, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.drop("audit sink closed, dropping entry", e)
		return
	}
	select {
	case s.queue <- toRecord(e):
	default:
		s.drop("audit queue full, dropping entry", e)
	}
}

func (s *KafkaSink) drop(msg string, e Entry) {
	s.logger.Warn(msg,
		slog.String("component", e.ComponentPath),
		slog.String("message", e.Message),
	)
}

// Close stops accepting entries and waits for the queue to drain. It is
// safe to call more than once, and LogError after Close drops the entry.
func (s *KafkaSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *KafkaSink) drain() {
	defer s.wg.Done()
	for r := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := kafka.PublishJSON(ctx, s.producer, s.topic, r.TenantID, r); err != nil {
			s.logger.Warn("audit publish failed",
				slog.String("component", r.ComponentPath),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}
