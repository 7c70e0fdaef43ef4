package validator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/mabgcm/turkiyedental2-sub001/pkg/errors"
)

// DateLayout is the calendar date format accepted by the calendar_date tag.
const DateLayout = "2006-01-02"

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so clients can map errors to inputs.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("calendar_date", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DateLayout, fl.Field().String())
		return err == nil
	})
	return v
}

// ValidationError is a set of field-level failures. It matches
// apperrors.ErrInvalidInput under errors.Is.
type ValidationError struct {
	fields map[string]string
}

// NewValidationError returns an empty error that fields can be added to.
func NewValidationError() *ValidationError {
	return &ValidationError{fields: make(map[string]string)}
}

// Add records msg for field. The first message per field wins.
func (e *ValidationError) Add(field, msg string) {
	if _, ok := e.fields[field]; !ok {
		e.fields[field] = msg
	}
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool { return len(e.fields) == 0 }

// OrNil returns e as an error, or nil when no field failed.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.fields))
	for k := range e.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fmt.Sprintf("field '%s' %s", k, e.fields[k]))
	}
	return strings.Join(msgs, "; ")
}

// Fields returns a copy of the field-to-message map.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

func (e *ValidationError) Is(target error) bool {
	return target == apperrors.ErrInvalidInput
}

// Check validates s against its struct tags and returns the collected
// failures. The result is never nil so callers can add domain rules before
// calling OrNil.
func Check(s any) *ValidationError {
	out := NewValidationError()
	err := validate.Struct(s)
	if err == nil {
		return out
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		out.Add("_", err.Error())
		return out
	}
	for _, fe := range fieldErrs {
		out.Add(fieldPath(fe), msgForTag(fe))
	}
	return out
}

// Validate validates s using go-playground/validator tags.
func Validate(s any) error {
	return Check(s).OrNil()
}

// fieldPath drops the root struct name: "SubmitReview.ratings.overall"
// becomes "ratings.overall".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "calendar_date":
		return "must be a valid date in YYYY-MM-DD format"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}

// RuneCount returns the number of characters in s after trimming surrounding
// whitespace.
func RuneCount(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

// DecodeAndValidate decodes the JSON request body into dst and validates it.
// Decode failures are reported as InvalidInput.
func DecodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.InvalidInput(fmt.Sprintf("invalid request body: %v", err))
	}
	return Validate(dst)
}
