package common

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	usernamePattern      = regexp.MustCompile(`^[a-zA-Z0-9_]{3,}$`)
	emailPattern         = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	citizenNumberPattern = regexp.MustCompile(`^[0-9]{12}$`)
)

// MinPasswordLength is the shortest password the backend accepts.
const MinPasswordLength = 6

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// Validator provides validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Error returns a combined error message
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	return errors.New(v.ErrorMessage())
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value interface{}) *ValidationError

func stringValue(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", false
		}
		return *v, true
	}
	return "", false
}

// Required - Common validation rules
func Required(fieldName string, value interface{}) *ValidationError {
	missing := &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	switch v := value.(type) {
	case nil:
		return missing
	case string:
		if strings.TrimSpace(v) == "" {
			return missing
		}
	case *string:
		if v == nil || strings.TrimSpace(*v) == "" {
			return missing
		}
	}
	return nil
}

// MinLength builds a rule counting runes, not bytes.
func MinLength(min int) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		str, ok := stringValue(value)
		if !ok {
			return nil
		}
		if utf8.RuneCountInString(str) < min {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("must be at least %d characters", min),
			}
		}
		return nil
	}
}

func MaxLength(max int) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		str, ok := stringValue(value)
		if !ok {
			return nil
		}
		if utf8.RuneCountInString(str) > max {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("must be at most %d characters", max),
			}
		}
		return nil
	}
}

func matches(pattern *regexp.Regexp, message string) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		str, ok := stringValue(value)
		if !ok {
			return &ValidationError{Field: fieldName, Value: value, Message: "must be a string"}
		}
		if !pattern.MatchString(str) {
			return &ValidationError{Field: fieldName, Value: value, Message: message}
		}
		return nil
	}
}

var (
	// Username allows letters, digits and underscores, three or more.
	Username = matches(usernamePattern, "must be at least 3 letters, digits or underscores")
	Email    = matches(emailPattern, "must be a valid email address")
	// CitizenNumber is the 12 digit CCCD number.
	CitizenNumber = matches(citizenNumberPattern, "must be exactly 12 digits")
	Password      = MinLength(MinPasswordLength)
)

// ValidateAndReturnError wraps collected failures in an AppError matching ErrValidation.
func ValidateAndReturnError(validator *Validator) error {
	if validator.HasErrors() {
		return NewAppError(CodeValidation, validator.ErrorMessage(), ErrValidation)
	}
	return nil
}

// ValidateCredentials checks a login or registration form before it is sent.
// An empty email skips the email rule.
func ValidateCredentials(username, email, password string) error {
	v := NewValidator().
		Field("username", username, Required, Username).
		Field("password", password, Required, Password)
	if email != "" {
		v.Field("email", email, Email)
	}
	return ValidateAndReturnError(v)
}
