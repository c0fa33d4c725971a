package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

// WebhookConfig configures outbound reminder calls.
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// WebhookHandler POSTs the reminder as JSON to a fixed URL.
type WebhookHandler struct {
	cfg    WebhookConfig
	client *http.Client
}

// NewWebhookHandler creates a WebhookHandler. A zero timeout means 15s.
func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &WebhookHandler{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (h *WebhookHandler) Channel() string { return "webhook" }

func (h *WebhookHandler) Handle(ctx context.Context, r domain.Reminder) error {
	ctx, span := otel.Tracer("notifier").Start(ctx, "handler.webhook")
	defer span.End()

	if h.cfg.URL == "" {
		err := permanent(errors.New("webhook url not configured"))
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing url")
		return err
	}
	span.SetAttributes(
		attribute.String("webhook.url", h.cfg.URL),
		attribute.String("task.id", r.TaskID),
	)

	body, err := json.Marshal(r)
	if err != nil {
		return permanent(fmt.Errorf("encode reminder: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request failed")
		return permanent(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", r.TenantID)
	for k, v := range h.cfg.Headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := h.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "http call failed")
		return fmt.Errorf("webhook call to %s: %w", h.cfg.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	err = fmt.Errorf("webhook %s returned status %d", h.cfg.URL, resp.StatusCode)
	span.RecordError(err)
	span.SetStatus(codes.Error, "bad status code")
	// 4xx other than 408/429 will fail the same way next time.
	if resp.StatusCode < http.StatusInternalServerError &&
		resp.StatusCode != http.StatusRequestTimeout &&
		resp.StatusCode != http.StatusTooManyRequests {
		return permanent(err)
	}
	return err
}
