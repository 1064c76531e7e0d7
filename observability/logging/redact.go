package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// Keys that are always emitted verbatim, even when a sensitive fragment
// appears in them.
var redactionAllowlist = map[string]struct{}{
	"service":    {},
	"env":        {},
	"component":  {},
	"account":    {},
	"caller":     {},
	"asset":      {},
	"feed":       {},
	"id":         {},
	"run_id":     {},
	"request_id": {},
	"token_type": {},
	"error":      {},
}

// Fragments that mark a key as carrying credentials or signed material.
var sensitiveFragments = []string{"secret", "password", "token", "authorization", "proof", "dsn"}

// IsAllowlisted reports whether key is exempt from redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// IsSensitive reports whether values logged under key are masked
// automatically by the handler installed in SetupWriter.
func IsSensitive(key string) bool {
	if IsAllowlisted(key) {
		return false
	}
	normalized := strings.ToLower(key)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// MaskField returns an attr whose value is redacted unless key is
// allowlisted. Empty values pass through.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup || !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
