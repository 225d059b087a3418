package validator

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/boeni-industries/aico-gateway/internal/ferror"
)

// fieldError builds a KindValidation error naming the offending field, matching the teacher's sentinel-per-check
// style (ValidateUsername, ValidateEmail) but parameterized since a schema registry serves many payload shapes
// rather than one fixed set of domain fields.
func fieldError(field, reason string) error {
	return ferror.New(ferror.KindValidation, fmt.Sprintf("%s %s", field, reason))
}

// RequireNonEmpty fails unless value is non-empty.
func RequireNonEmpty(field, value string) error {
	if value == "" {
		return fieldError(field, "must not be empty")
	}
	return nil
}

// RequireLength fails unless len(value) falls within [min, max].
func RequireLength(field, value string, min, max int) error {
	if len(value) < min || len(value) > max {
		return fieldError(field, fmt.Sprintf("must be between %d and %d characters", min, max))
	}
	return nil
}

// RequireUUID fails unless value parses as a UUID.
func RequireUUID(field, value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return fieldError(field, "must be a valid UUID")
	}
	return nil
}

// RequirePattern fails unless value matches pattern.
func RequirePattern(field, value string, pattern *regexp.Regexp) error {
	if !pattern.MatchString(value) {
		return fieldError(field, "has an invalid format")
	}
	return nil
}

// RequireOneOf fails unless value is one of allowed.
func RequireOneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fieldError(field, fmt.Sprintf("must be one of %v", allowed))
}
