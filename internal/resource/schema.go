package resource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies decoded by write schemas.
const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	if err := v.RegisterValidation("git_url", isGitURL); err != nil {
		panic(err)
	}
	return v
}

var (
	gitSchemes = map[string]bool{"http": true, "https": true, "ssh": true, "git": true}
	scpLikeURL = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[^\s]+$`)
)

// isGitURL accepts network remotes only: http(s), ssh and git URLs with a
// host, or the scp form user@host:path.
func isGitURL(fl validator.FieldLevel) bool {
	raw := strings.TrimSpace(fl.Field().String())
	if !strings.Contains(raw, "://") {
		return scpLikeURL.MatchString(raw)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return gitSchemes[strings.ToLower(parsed.Scheme)] && parsed.Hostname() != ""
}

// WriteSchema names a narrow input shape and constructs fresh payloads for it.
// New must return a pointer to a struct carrying json and validate tags.
type WriteSchema struct {
	Name string
	New  func() any
}

// Decode reads body into a fresh payload. Unknown fields are ignored. For
// partial updates only fields present in the body are validated.
func (s WriteSchema) Decode(body io.Reader, partial bool) (any, error) {
	if s.New == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	payload := s.New()
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, decodeError(err)
	}
	var present map[string]json.RawMessage
	if partial {
		if err := json.Unmarshal(raw, &present); err != nil {
			return nil, NewValidationError(NonFieldErrors, "expected a JSON object")
		}
	}
	if err := validate.Struct(payload); err != nil {
		var invalid validator.ValidationErrors
		if !errors.As(err, &invalid) {
			return nil, err
		}
		verr := &ValidationError{}
		for _, fieldErr := range invalid {
			field := fieldPath(fieldErr)
			if partial {
				if _, ok := present[topLevelField(fieldErr)]; !ok {
					continue
				}
			}
			verr.Add(field, fieldMessage(fieldErr))
		}
		if len(verr.Fields) > 0 {
			return nil, verr
		}
	}
	return payload, nil
}

// topLevelField names the body key an error belongs to, so nested failures
// are reported only when their parent object was sent.
func topLevelField(err validator.FieldError) string {
	parts := strings.Split(err.Namespace(), ".")
	if len(parts) < 2 {
		return err.Field()
	}
	name, _, _ := strings.Cut(parts[1], "[")
	return name
}

// fieldPath reports nested failures as dotted body paths, such as
// repository.url.
func fieldPath(err validator.FieldError) string {
	_, path, ok := strings.Cut(err.Namespace(), ".")
	if !ok {
		return err.Field()
	}
	return path
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return NewValidationError(typeErr.Field, fmt.Sprintf("expected %s", typeErr.Type.String()))
	}
	return NewValidationError(NonFieldErrors, "malformed JSON body")
}

func fieldMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "this field is required"
	case "max":
		return fmt.Sprintf("ensure this field has no more than %s characters", err.Param())
	case "min":
		return fmt.Sprintf("ensure this field has at least %s characters", err.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", err.Param())
	case "url", "http_url":
		return "enter a valid URL"
	case "email":
		return "enter a valid email address"
	case "git_url":
		return "enter an http, https, ssh or git repository URL"
	default:
		return fmt.Sprintf("failed %s validation", err.Tag())
	}
}
