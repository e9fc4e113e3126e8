// Package forms holds the field checks shared by the HTML forms.
//
// Each check returns an empty string when the value passes, or the message to
// show next to the field.
package forms

import (
	"fmt"
	"net/mail"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Errors maps a form field name to its messages
type Errors map[string][]string

// Add records a message for a field
func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Check records the first failing message for a field, if any.
// Later checks are skipped once one fails.
func (e Errors) Check(field string, results ...string) {
	for _, msg := range results {
		if msg != "" {
			e.Add(field, msg)
			return
		}
	}
}

// Any reports whether any field failed
func (e Errors) Any() bool {
	return len(e) > 0
}

// Get returns the first message for a field
func (e Errors) Get(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// ValidationError carries field messages out of a service call
type ValidationError struct {
	Errors Errors
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	return "invalid form fields: " + strings.Join(fields, ", ")
}

func Required(v string) string {
	if strings.TrimSpace(v) == "" {
		return "This field is required."
	}
	return ""
}

// Length bounds the number of characters, inclusive
func Length(v string, min, max int) string {
	n := utf8.RuneCountInString(v)
	if n < min || n > max {
		return fmt.Sprintf("Field must be between %d and %d characters long.", min, max)
	}
	return ""
}

func MaxLength(v string, max int) string {
	if utf8.RuneCountInString(v) > max {
		return fmt.Sprintf("Field cannot be longer than %d characters.", max)
	}
	return ""
}

// ExcludesAny rejects values containing any of chars
func ExcludesAny(v, chars string) string {
	if strings.ContainsAny(v, chars) {
		return "Field cannot contain any of " + strings.Join(strings.Split(chars, ""), " ") + "."
	}
	return ""
}

// Email accepts a bare address only; display names are rejected
func Email(v string) string {
	if len(v) > 254 {
		return "Invalid email address."
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return "Invalid email address."
	}
	return ""
}

func EqualTo(v, other, otherField string) string {
	if v != other {
		return fmt.Sprintf("Field must be equal to %s.", otherField)
	}
	return ""
}

// AllowedExtension checks a file name against a lower-case extension list
func AllowedExtension(filename string, allowed ...string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, a := range allowed {
		if ext == a {
			return ""
		}
	}
	return "File does not have an approved extension: " + strings.Join(allowed, ", ")
}
