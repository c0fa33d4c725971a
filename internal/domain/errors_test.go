package domain_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

func TestTaskNotFoundError(t *testing.T) {
	err := &domain.TaskNotFoundError{TaskID: "abc-123"}
	if !strings.Contains(err.Error(), "abc-123") {
		t.Errorf("error message should contain task ID, got: %q", err.Error())
	}
	wrapped := fmt.Errorf("get task: %w", err)
	if !domain.IsNotFound(wrapped) {
		t.Error("IsNotFound should see through wrapping")
	}
	if domain.IsNotFound(errors.New("other")) {
		t.Error("IsNotFound(other) = true")
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := &domain.InvalidTransitionError{TaskID: "xyz", From: domain.StatusCompleted, To: domain.StatusPending}
	msg := err.Error()
	for _, want := range []string{"xyz", "completed", "pending"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message should contain %q, got: %q", want, msg)
		}
	}
}

func TestRateLimitExceededError(t *testing.T) {
	err := &domain.RateLimitExceededError{Key: "tenant-a", Limit: 100}
	msg := err.Error()
	if !strings.Contains(msg, "tenant-a") || !strings.Contains(msg, "100") {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestPermanentError_Unwraps(t *testing.T) {
	inner := errors.New("bad payload")
	err := fmt.Errorf("deliver: %w", &domain.PermanentError{Err: inner})
	if !errors.Is(err, inner) {
		t.Error("PermanentError should unwrap to its cause")
	}
	var perm *domain.PermanentError
	if !errors.As(err, &perm) {
		t.Error("errors.As should find *PermanentError")
	}
}

func TestAllErrorTypesImplementError(t *testing.T) {
	var _ error = &domain.TaskNotFoundError{}
	var _ error = &domain.InvalidTransitionError{}
	var _ error = &domain.ValidationError{}
	var _ error = &domain.RateLimitExceededError{}
	var _ error = &domain.UnknownChannelError{}
	var _ error = &domain.PermanentError{Err: errors.New("x")}
}

func TestTenantFromContext(t *testing.T) {
	if _, err := domain.TenantFromContext(context.Background()); !errors.Is(err, domain.ErrMissingTenant) {
		t.Errorf("want ErrMissingTenant, got %v", err)
	}
	if _, err := domain.TenantFromContext(domain.WithTenant(context.Background(), "")); !errors.Is(err, domain.ErrMissingTenant) {
		t.Errorf("empty tenant must be rejected, got %v", err)
	}
	got, err := domain.TenantFromContext(domain.WithTenant(context.Background(), "care-home-7"))
	if err != nil || got != "care-home-7" {
		t.Errorf("TenantFromContext = (%q, %v)", got, err)
	}
}

func TestActorFromContext(t *testing.T) {
	if got := domain.ActorFromContext(context.Background()); got != "" {
		t.Errorf("ActorFromContext(empty) = %q", got)
	}
	if got := domain.ActorFromContext(domain.WithActor(context.Background(), "u1")); got != "u1" {
		t.Errorf("ActorFromContext = %q, want u1", got)
	}
}
