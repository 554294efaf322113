package logger

import (
	"strings"
	"time"
)

var allowedLevels = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

var allowedStatus = map[string]struct{}{
	"ok":           {},
	"fail":         {},
	"skip":         {},
	"retry":        {},
	"rate_limited": {},
	"duplicate":    {},
	"insufficient": {},
	"refunded":     {},
}

func normalizeLevel(level string) string {
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	if level == "" {
		return "INFO"
	}
	return strings.ToUpper(level)
}

// normalizeStatus lowercases known statuses and leaves unknown ones as given.
func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if _, ok := allowedStatus[s]; ok {
		return s
	}
	return status
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"cb_key",
	"action",
	"state",
	"next_state",
	"kind",
	"amount",
	"balance",
	"balance_before",
	"balance_after",
	"request_id",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"page",
	"mode",
	"listen",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"attempts",
}

// Status maps an error to the unified status value.
func Status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

// Took returns the rounded duration since start.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds a duration to the nearest millisecond.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins up to limit elements and reports whether truncation happened.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit <= 0 {
		return "", len(values) > 0
	}
	if len(values) <= limit {
		return strings.Join(values, ", "), false
	}
	return strings.Join(values[:limit], ", "), true
}
