// Package logging provides the shared zap logger and PII redaction helpers.
// Free-text values (query strings, document snippets) are redacted before
// they reach the log stream so emails and phone numbers never leak into
// log aggregation.
package logging

import (
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	emailRe = regexp.MustCompile(`[\w.\-]+@[\w.\-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s-]{7,}\d`)
)

// Redact replaces email addresses and phone numbers in s with a placeholder.
func Redact(s string) string {
	s = emailRe.ReplaceAllString(s, "[REDACTED]")
	s = phoneRe.ReplaceAllString(s, "[REDACTED]")
	return s
}

// String returns a zap field whose value has been passed through Redact.
// Use it for any field that may carry user-supplied or scraped text.
func String(key, value string) zap.Field {
	return zap.String(key, Redact(value))
}

// New builds the process logger. Production mode emits JSON; anything else
// uses the human-readable development encoder.
func New(mode string) (*zap.Logger, error) {
	if mode == "production" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	}
	return zap.NewDevelopment()
}
