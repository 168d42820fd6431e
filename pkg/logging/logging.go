// Package logging provides the shared slog logger for stackpilot. Every
// record passes through a sanitizing handler that redacts credential
// material before it reaches the console or JSON output.
package logging

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

var (
	logger *slog.Logger

	// Patterns for detecting sensitive data
	sensitivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(password|secret|token|key|auth)[\s]*[:=][\s]*[^\s]+`),
		regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		regexp.MustCompile(`(?i)Basic\s+[A-Za-z0-9+/]+=*`),
		regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
		regexp.MustCompile(`"private_key"\s*:\s*"[^"]+"`),
	}

	// Attribute keys whose values are redacted outright
	sensitiveKeys = map[string]bool{
		"password":            true,
		"secret":              true,
		"token":               true,
		"key":                 true,
		"auth":                true,
		"credential":          true,
		"private_key":         true,
		"client_secret":       true,
		"api_key":             true,
		"service_account_key": true,
		"billing_account_id":  true,
	}
)

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	// Check for debug mode from environment
	if os.Getenv("STACKPILOT_DEBUG") == "true" {
		opts.Level = slog.LevelDebug
	}

	// Interactive runs get a readable console handler; everything else
	// (CI, Cloud Build) gets JSON for log collection.
	var inner slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("STACKPILOT_LOG_FORMAT") != "json" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{Level: opts.Level})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger = slog.New(NewSanitizingHandler(inner))
}

// sanitizingHandler redacts sensitive attribute keys and scrubs credential
// patterns from string values and messages before delegating to the wrapped
// handler.
type sanitizingHandler struct {
	inner slog.Handler
}

// NewSanitizingHandler wraps a handler with credential redaction.
func NewSanitizingHandler(inner slog.Handler) slog.Handler {
	return &sanitizingHandler{inner: inner}
}

func (h *sanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *sanitizingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, SanitizeString(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *sanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitized := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitized[i] = sanitizeAttr(a)
	}
	return &sanitizingHandler{inner: h.inner.WithAttrs(sanitized)}
}

func (h *sanitizingHandler) WithGroup(name string) slog.Handler {
	return &sanitizingHandler{inner: h.inner.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[REDACTED]")
	}
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, SanitizeString(a.Value.String()))
	}
	return a
}

// SanitizeString removes or masks sensitive data from strings
func SanitizeString(s string) string {
	sanitized := s
	for _, pattern := range sensitivePatterns {
		sanitized = pattern.ReplaceAllStringFunc(sanitized, func(match string) string {
			// Extract the key part before the value
			parts := strings.SplitN(match, ":", 2)
			if len(parts) == 2 {
				return parts[0] + ": [REDACTED]"
			}
			parts = strings.SplitN(match, "=", 2)
			if len(parts) == 2 {
				return parts[0] + "=[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return sanitized
}

// Info logs an informational message
func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}
