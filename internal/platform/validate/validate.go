// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package validate provides a chainable Validator that collects field-level
// errors before returning a single [apperr.AppError].
//
// # Architecture
//
// This package is used exclusively in the service layer, never in handlers or
// storage. It ensures that business logic only operates on semantically valid data.
package validate

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/taibuivan/campus/internal/platform/apperr"
)

const (
	// PasswordMinLen is the shortest password accepted on registration or change.
	PasswordMinLen = 8

	// PasswordMaxBytes is bcrypt's input limit; longer inputs are rejected
	// rather than silently truncated.
	PasswordMaxBytes = 72
)

var (
	// usernameRegex matches student usernames: lowercase letters, digits, dot, underscore, hyphen.
	usernameRegex = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._-]{0,48}[a-z0-9])?$`)

	// ErrInvalidJSON is returned when the request body cannot be decoded.
	ErrInvalidJSON = apperr.ValidationError("Invalid JSON payload")
)

// Validator collects field-level validation errors via a fluent, chainable API.
//
// # Concurrency
//
// Validator is not safe for concurrent use. A new instance must be created
// for every request/operation.
type Validator struct {
	errs []apperr.FieldError
}

// Required fails if the trimmed value is empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "This field is required")
	}
	return v
}

// MaxLen fails if the Unicode character count exceeds max.
func (v *Validator) MaxLen(field, value string, max int) *Validator {
	if utf8.RuneCountInString(value) > max {
		v.add(field, fmt.Sprintf("Maximum %d characters", max))
	}
	return v
}

// MinLen fails if the Unicode character count is below min.
func (v *Validator) MinLen(field, value string, min int) *Validator {
	if utf8.RuneCountInString(value) < min {
		v.add(field, fmt.Sprintf("Minimum %d characters", min))
	}
	return v
}

// Email fails if the value is not a valid RFC 5322 email address.
func (v *Validator) Email(field, value string) *Validator {
	if _, err := mail.ParseAddress(value); err != nil {
		v.add(field, "Must be a valid email address")
	}
	return v
}

// Username fails if the value is not a valid student username.
//
// # Format
//
// 1 to 50 characters of lowercase letters, digits, dots, underscores and
// hyphens, starting and ending with a letter or digit.
func (v *Validator) Username(field, value string) *Validator {
	if !usernameRegex.MatchString(value) {
		v.add(field, "Must be a valid username (lowercase letters, digits, '.', '_' or '-')")
	}
	return v
}

// Password fails if the value is outside the accepted password length.
// The upper bound is measured in bytes because that is what bcrypt hashes.
func (v *Validator) Password(field, value string) *Validator {
	switch {
	case utf8.RuneCountInString(value) < PasswordMinLen:
		v.add(field, fmt.Sprintf("Minimum %d characters", PasswordMinLen))
	case len(value) > PasswordMaxBytes:
		v.add(field, fmt.Sprintf("Maximum %d bytes", PasswordMaxBytes))
	}
	return v
}

// Digits fails unless the value is exactly n ASCII digits.
func (v *Validator) Digits(field, value string, n int) *Validator {
	valid := len(value) == n
	for _, char := range value {
		if char < '0' || char > '9' {
			valid = false
			break
		}
	}
	if !valid {
		v.add(field, fmt.Sprintf("Must be %d digits", n))
	}
	return v
}

// Custom adds a failure with a custom message if the condition is true.
//
// # Example
//
//	v.Custom("code", totp == "" && backup == "", "Provide a TOTP or backup code")
func (v *Validator) Custom(field string, failed bool, message string) *Validator {
	if failed {
		v.add(field, message)
	}
	return v
}

// Err returns a [apperr.AppError] (VALIDATION_ERROR) if any rules failed,
// or nil if all rules passed.
//
// This is the only output method; call it at the end of the chain.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return apperr.ValidationError("Validation failed", v.errs...)
}

// HasErrors reports whether any validation rule has failed so far.
func (v *Validator) HasErrors() bool {
	return len(v.errs) > 0
}

// add appends a [apperr.FieldError] to the internal slice.
func (v *Validator) add(field, message string) {
	v.errs = append(v.errs, apperr.FieldError{Field: field, Message: message})
}
