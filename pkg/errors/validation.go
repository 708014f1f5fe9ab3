package errors

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Timers lists the countdown durations, in seconds, a capture may use.
var Timers = []int{3, 5, 10}

// ValidateTimer checks that seconds is one of the supported countdowns.
func ValidateTimer(seconds int) error {
	for _, t := range Timers {
		if t == seconds {
			return nil
		}
	}
	return New(ErrCodeInvalidTimer, "timer must be 3, 5 or 10 seconds, got %d", seconds)
}

// ValidateID validates a session or render identifier.
// Identifiers are UUIDs; anything else is rejected before it can reach a
// file path or a storage key.
func ValidateID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "id cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return New(ErrCodeInvalidInput, "invalid id: %q", id)
	}
	return nil
}

// ValidateRenderName validates a stored render file name of the form
// "<uuid>.png" and returns the id part.
func ValidateRenderName(name string) (string, error) {
	id, ok := strings.CutSuffix(name, ".png")
	if !ok {
		return "", New(ErrCodeNotFound, "render not found")
	}
	if err := ValidateID(id); err != nil {
		return "", New(ErrCodeNotFound, "render not found")
	}
	return id, nil
}

// ValidatePath validates a configured file system path for safety.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidInput, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidInput, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "path contains invalid characters")
		}
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
