package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// Mask replaces redacted values in log output.
const Mask = "***REDACTED***"

// redactedKeys are attribute keys whose values are always masked,
// regardless of content. These are the keys under which caller input
// or scraped identifiers could plausibly appear.
var redactedKeys = map[string]bool{
	"credential":  true,
	"credentials": true,
	"email":       true,
	"username":    true,
	"phone":       true,
	"password":    true,
	"passwd":      true,
	"token":       true,
	"secret":      true,
	"api_key":     true,
	"apikey":      true,
	"auth":        true,
	"cookie":      true,
}

// redactedKeywords are substrings that mark a key as sensitive even
// when it is not an exact match, e.g. "raw_credential" or "user_email".
var redactedKeywords = []string{
	"credential", "password", "secret", "token", "email", "plaintext",
}

// redactedValuePatterns mask values that look like identifiers no matter
// what key they were logged under. Adapters scrape arbitrary paste
// content, so value-based matching is the backstop for careless logging.
var redactedValuePatterns = []*regexp.Regexp{
	// Email addresses.
	regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`),

	// E.164 phone numbers.
	regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`),

	// Bearer / basic authorization values.
	regexp.MustCompile(`(?i)^(bearer|basic)\s+\S+`),
}

// RedactHandler wraps an slog.Handler and masks sensitive attributes
// before they reach it.
//
// Design decision: a handler wrapper rather than a custom logger type,
// so the rest of the codebase uses plain *slog.Logger and any output
// format (text, JSON) can sit underneath.
type RedactHandler struct {
	handler slog.Handler
}

// NewRedactHandler wraps the given handler. A nil handler falls back to
// slog.Default().Handler().
func NewRedactHandler(handler slog.Handler) *RedactHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &RedactHandler{handler: handler}
}

// Enabled delegates to the underlying handler.
func (h *RedactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle masks the record's attributes and forwards it.
func (h *RedactHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(h.redact(a))
		return true
	})
	return h.handler.Handle(ctx, masked)
}

// WithAttrs returns a handler with the given attributes added, masked.
func (h *RedactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = h.redact(a)
	}
	return &RedactHandler{handler: h.handler.WithAttrs(out)}
}

// WithGroup returns a handler scoped to the given group name.
func (h *RedactHandler) WithGroup(name string) slog.Handler {
	return &RedactHandler{handler: h.handler.WithGroup(name)}
}

// redact masks a single attribute, recursing into groups.
func (h *RedactHandler) redact(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, ga := range group {
			out[i] = h.redact(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	key := strings.ToLower(a.Key)
	if redactedKeys[key] || hasRedactedKeyword(key) {
		return slog.String(a.Key, Mask)
	}

	if a.Value.Kind() == slog.KindString && isRedactedValue(a.Value.String()) {
		return slog.String(a.Key, Mask)
	}
	return a
}

func hasRedactedKeyword(key string) bool {
	for _, kw := range redactedKeywords {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

func isRedactedValue(v string) bool {
	for _, p := range redactedValuePatterns {
		if p.MatchString(v) {
			return true
		}
	}
	return false
}

// New creates a *slog.Logger writing text to w with redaction applied.
// Verbose lowers the level from Info to Debug.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	th := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewRedactHandler(th))
}

// NewJSON creates a *slog.Logger writing JSON to w with redaction
// applied. Useful when logs feed a structured aggregation pipeline.
func NewJSON(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	jh := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewRedactHandler(jh))
}
