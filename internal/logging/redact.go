package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const (
	redacted    = "<redacted>"
	maxValueLen = 500
	truncMarker = "...<truncated>"
)

var sensitiveKeys = map[string]struct{}{
	"description":     {},
	"description_raw": {},
	"evidence":        {},
	"evidence_json":   {},
	"raw":             {},
}

var inlineField = regexp.MustCompile(`(?i)(description|desc|merchant)\s*=\s*[^\s,;]+`)

// RedactingHandler scrubs sensitive attributes and inline key=value text
// before passing records to the wrapped handler.
type RedactingHandler struct {
	next slog.Handler
}

func NewRedactingHandler(next slog.Handler) *RedactingHandler {
	return &RedactingHandler{next: next}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, RedactText(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(clean)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name)}
}

// RedactText masks inline description/merchant assignments and truncates
// long strings.
func RedactText(s string) string {
	s = inlineField.ReplaceAllString(s, "${1}="+redacted)
	if len(s) > maxValueLen {
		s = s[:maxValueLen] + truncMarker
	}
	return s
}

func redactAttr(a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, RedactText(v.String()))
	case slog.KindGroup:
		group := v.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = redactAttr(g)
		}
		return slog.Group(a.Key, clean...)
	}
	return slog.Attr{Key: a.Key, Value: v}
}
