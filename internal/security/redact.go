// Package security keeps notification credentials out of logs and terminal output.
package security

import (
	"regexp"
	"strings"
)

// sensitivePatterns match credentials that end up in URLs and error strings.
// Each has the secret in its last group.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(/bot)(\d+:[A-Za-z0-9_-]+)`), // Telegram bot API path
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._~+/=-]+)`),
	regexp.MustCompile(`(?i)((?:access_token|token|password)=)([^&\s"']+)`),
}

// MaskCredential keeps the first and last four characters of long values
// and masks everything else.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact masks every credential found in s.
func Redact(s string) string {
	for _, pattern := range sensitivePatterns {
		s = pattern.ReplaceAllStringFunc(s, func(match string) string {
			groups := pattern.FindStringSubmatch(match)
			return groups[1] + MaskCredential(groups[2])
		})
	}
	return s
}

// RedactError returns err with a masked message. errors.Is and errors.As
// still see the original chain.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	return &redactedError{err: err, msg: Redact(err.Error())}
}

type redactedError struct {
	err error
	msg string
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
