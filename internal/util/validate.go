// Package util provides input validation utilities.
package util

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// Validation errors
var (
	ErrEmptyField   = fmt.Errorf("field cannot be empty")
	ErrInvalidEmail = fmt.Errorf("invalid email address")
	ErrInvalidClock = fmt.Errorf("invalid time of day (expected HH:MM)")
	ErrInvalidDate  = fmt.Errorf("invalid date (expected YYYY-MM-DD)")
)

var clockRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidateEmail checks if a string is a valid email address.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmptyField
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}

	return nil
}

// ParseClock parses an "HH:MM" time of day into minutes after midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if !clockRegex.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	return h*60 + m, nil
}

// ParseDate parses a "YYYY-MM-DD" date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// SanitizeString removes leading/trailing whitespace and normalizes internal whitespace.
func SanitizeString(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

