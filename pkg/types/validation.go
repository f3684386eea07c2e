package types

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// User ids come straight from clients and end up in map keys and broadcast
// payloads, so the accepted alphabet is kept narrow.
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate checks a payload struct against its validate tags.
func Validate(v any) error {
	return validate.Struct(v)
}

// IsValidUserID reports whether a user id meets the format requirements:
// 1-50 characters of [a-zA-Z0-9_-].
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}
