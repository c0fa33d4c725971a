package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

// EmailConfig holds SMTP connection details. Domain completes assignee
// ids that are not already email addresses.
type EmailConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	Domain   string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailHandler sends reminders via SMTP.
type EmailHandler struct {
	cfg  EmailConfig
	send sendFunc
}

// NewEmailHandler creates an EmailHandler from config.
func NewEmailHandler(cfg EmailConfig) *EmailHandler {
	return &EmailHandler{cfg: cfg, send: smtp.SendMail}
}

func (h *EmailHandler) Channel() string { return "email" }

func (h *EmailHandler) Handle(ctx context.Context, r domain.Reminder) error {
	ctx, span := otel.Tracer("notifier").Start(ctx, "handler.email")
	defer span.End()

	to, err := h.recipient(r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no recipient")
		return permanent(err)
	}
	span.SetAttributes(
		attribute.String("email.to", to),
		attribute.String("task.id", r.TaskID),
	)

	addr := fmt.Sprintf("%s:%d", h.cfg.Host, h.cfg.Port)
	msg := buildMIME(h.cfg.From, to, "Reminder: "+r.Title, reminderBody(r))

	var auth smtp.Auth
	if h.cfg.Username != "" {
		auth = smtp.PlainAuth("", h.cfg.Username, h.cfg.Password, h.cfg.Host)
	}

	// smtp.SendMail takes no context; run it aside so cancellation still wins.
	done := make(chan error, 1)
	go func() {
		done <- h.send(addr, auth, h.cfg.From, []string{to}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "smtp send failed")
			return fmt.Errorf("smtp send to %s: %w", to, err)
		}
		return nil
	case <-ctx.Done():
		err := fmt.Errorf("email send cancelled: %w", ctx.Err())
		span.RecordError(err)
		span.SetStatus(codes.Error, "timeout")
		return err
	}
}

func (h *EmailHandler) recipient(r domain.Reminder) (string, error) {
	if r.AssignedTo == nil || strings.TrimSpace(*r.AssignedTo) == "" {
		return "", errors.New("reminder has no assignee")
	}
	who := strings.TrimSpace(*r.AssignedTo)
	if strings.Contains(who, "@") {
		return who, nil
	}
	if h.cfg.Domain == "" {
		return "", fmt.Errorf("assignee %q is not an address and no email domain is configured", who)
	}
	return who + "@" + h.cfg.Domain, nil
}

func reminderBody(r domain.Reminder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\r\n", r.Title)
	fmt.Fprintf(&b, "Priority: %s\r\n", r.Priority)
	if r.DueDate != nil {
		fmt.Fprintf(&b, "Due: %s\r\n", r.DueDate.UTC().Format(time.RFC1123))
	}
	if r.PatientID != nil {
		fmt.Fprintf(&b, "Patient: %s\r\n", *r.PatientID)
	}
	fmt.Fprintf(&b, "Task ID: %s\r\n", r.TaskID)
	return b.String()
}

func buildMIME(from, to, subject, body string) []byte {
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body,
	)
	return []byte(msg)
}
