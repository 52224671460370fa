package resource

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"docsplatform/internal/storage"
)

var (
	// ErrNotFound merges absent and hidden objects.
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("you do not have permission to perform this action")
	ErrNotAuthenticated = errors.New("authentication credentials were not provided")
)

// ValidationError reports per-field input problems. Fields are keyed by the
// JSON name of the offending input, or non_field_errors.
type ValidationError struct {
	Fields map[string][]string
}

// NonFieldErrors is the key used for problems not tied to one field.
const NonFieldErrors = "non_field_errors"

// NewValidationError builds a ValidationError with a single message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {message}}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+strings.Join(e.Fields[key], "; "))
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

// Add appends a message for field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// normalizeError folds storage errors onto the controller taxonomy.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if conflict, ok := storage.IsConflict(err); ok {
		field := conflict.Field
		if field == "" {
			field = NonFieldErrors
		}
		return NewValidationError(field, conflict.Message)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// StatusFor maps an error onto its HTTP status code.
func StatusFor(err error) int {
	var validation *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError writes the JSON error body for err. Internal errors are not
// echoed to the client.
func WriteError(w http.ResponseWriter, err error) {
	err = normalizeError(err)
	status := StatusFor(err)
	body := map[string]any{"error": err.Error()}
	var validation *ValidationError
	if errors.As(err, &validation) {
		body["error"] = "invalid input"
		body["fields"] = validation.Fields
	}
	if status == http.StatusInternalServerError {
		body["error"] = "internal server error"
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Token realm="api"`)
	}
	WriteJSON(w, status, body)
}
