// Package validate checks operation inputs field by field. Every violation
// in a payload is collected before anything is rejected, so clients fix a
// form in one round trip.
package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rooftopdev/accountd/internal/apperr"
)

// emailShape is deliberately loose; the activation email is the real proof
// of ownership.
var emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Violations accumulates per-field failure messages. The zero map is not
// usable; start with New.
type Violations map[string]string

// New returns an empty violation set.
func New() Violations {
	return make(Violations)
}

// Add records a violation for field, keeping only the first per field.
func (v Violations) Add(field, message string) {
	if _, exists := v[field]; !exists {
		v[field] = message
	}
}

// Err converts the set into a validation error, or nil when every check
// passed.
func (v Violations) Err() error {
	if len(v) == 0 {
		return nil
	}
	return apperr.Validation(v)
}

// Required rejects empty or whitespace-only values.
func (v Violations) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Add(field, field+" is required")
	}
}

// Email rejects values that do not look like an email address. Empty values
// are left to Required so one field never reports twice.
func (v Violations) Email(field, value string) {
	if value == "" {
		return
	}
	if !emailShape.MatchString(value) {
		v.Add(field, "must be a valid email address")
	}
}

// MinLen rejects values shorter than n runes.
func (v Violations) MinLen(field, value string, n int) {
	if value == "" {
		return
	}
	if utf8.RuneCountInString(value) < n {
		v.Add(field, field+" is too short")
	}
}

// MaxLen rejects values longer than n runes.
func (v Violations) MaxLen(field, value string, n int) {
	if utf8.RuneCountInString(value) > n {
		v.Add(field, field+" is too long")
	}
}
