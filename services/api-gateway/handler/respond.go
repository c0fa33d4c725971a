package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ramiqadoumi/go-care-tasks/internal/domain"
)

const maxUpcomingDays = 365

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode reads a single JSON object into dst, rejecting unknown fields and
// trailing data. It answers 400 itself and reports false on failure.
func (h *REST) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, decodeMessage(err))
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "request body must hold a single JSON object")
		return false
	}
	return true
}

// decodeValid decodes dst and checks its validate tags.
func (h *REST) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !h.decode(w, r, dst) {
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			writeError(w, http.StatusBadRequest, "invalid "+strings.ToLower(fe.Field())+": failed "+fe.Tag()+" check")
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func decodeMessage(err error) string {
	var maxErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &maxErr):
		return "request body too large"
	case errors.As(err, &syntaxErr):
		return "malformed JSON"
	case errors.As(err, &typeErr):
		return "invalid type for field " + typeErr.Field
	case errors.Is(err, io.EOF):
		return "request body is empty"
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return "unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
	}
	return "invalid request body"
}

// serviceError maps a service error onto a status code. Unexpected errors
// are logged and answered with a generic 500.
func (h *REST) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		notFound   *domain.TaskNotFoundError
		transition *domain.InvalidTransitionError
		limited    *domain.RateLimitExceededError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, transition.Error())
	case errors.As(err, &limited):
		writeError(w, http.StatusTooManyRequests, limited.Error())
	case errors.Is(err, domain.ErrMissingTenant):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
