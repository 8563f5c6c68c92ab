package logging

import (
	"context"
	"log/slog"

	"github.com/Lucascis/discord-bot-sub000/internal/types"
)

// FromLogger returns a slog logger that forwards every record to l.
// A nil l yields slog.Default().
func FromLogger(l types.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return slog.New(Handler{logger: l})
}

// Handler is a slog.Handler over a types.Logger. Group names prefix attribute
// keys with dots.
//
//nolint:govet // Simple adapter struct - alignment optimization minimal
type Handler struct {
	attrs  []slog.Attr
	logger types.Logger
	group  string
}

// Enabled implements slog.Handler. Level filtering is left to the wrapped logger.
func (h Handler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle implements slog.Handler.
//
//nolint:gocritic // slog.Handler interface requires passing Record by value
func (h Handler) Handle(_ context.Context, r slog.Record) error {
	args := make([]any, 0, (len(h.attrs)+r.NumAttrs())*2)
	for _, attr := range h.attrs {
		args = append(args, attr.Key, attr.Value.Any())
	}
	r.Attrs(func(attr slog.Attr) bool {
		args = append(args, h.key(attr.Key), attr.Value.Any())
		return true
	})

	switch {
	case r.Level >= slog.LevelError:
		h.logger.Error(r.Message, args...)
	case r.Level >= slog.LevelWarn:
		h.logger.Warn(r.Message, args...)
	case r.Level >= slog.LevelInfo:
		h.logger.Info(r.Message, args...)
	default:
		h.logger.Debug(r.Message, args...)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(merged, h.attrs)
	for _, attr := range attrs {
		attr.Key = h.key(attr.Key)
		merged = append(merged, attr)
	}
	return Handler{logger: h.logger, attrs: merged, group: h.group}
}

// WithGroup implements slog.Handler.
func (h Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return Handler{logger: h.logger, attrs: h.attrs, group: h.key(name)}
}

func (h Handler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
