package logging

import (
	"context"
	"log/slog"
)

// redactedValue replaces masked attribute values.
const redactedValue = "[redacted]"

// pageAttrKeys are the attribute keys whose values identify what the user
// was browsing.
var pageAttrKeys = map[string]bool{
	"url":   true,
	"title": true,
	"host":  true,
	"path":  true,
}

// redactHandler masks page-identifying attribute values before records
// reach the wrapped handler. Group nesting is preserved; only leaf keys
// are matched.
type redactHandler struct {
	inner slog.Handler
}

func newRedactHandler(inner slog.Handler) slog.Handler {
	return &redactHandler{inner: inner}
}

func (h *redactHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = redactAttr(a)
	}
	return &redactHandler{inner: h.inner.WithAttrs(masked)}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	return &redactHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		masked := make([]slog.Attr, len(group))
		for i, g := range group {
			masked[i] = redactAttr(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(masked...)}
	}
	if pageAttrKeys[a.Key] {
		return slog.String(a.Key, redactedValue)
	}
	return a
}
