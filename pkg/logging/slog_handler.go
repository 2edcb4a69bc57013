package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// FanoutHandler forwards every record to a base handler and mirrors
// records at or above a threshold into an EventBuffer as alerts.
type FanoutHandler struct {
	base     slog.Handler
	buf      *EventBuffer
	minLevel slog.Level
	attrs    []slog.Attr
	groups   []string
}

// NewFanoutHandler wraps base. Records at minLevel or above are copied
// into buf.
func NewFanoutHandler(base slog.Handler, buf *EventBuffer, minLevel slog.Level) *FanoutHandler {
	return &FanoutHandler{base: base, buf: buf, minLevel: minLevel}
}

// Enabled implements slog.Handler.
func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level) || (h.buf != nil && level >= h.minLevel)
}

// Handle implements slog.Handler.
func (h *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.base.Enabled(ctx, r.Level) {
		err = h.base.Handle(ctx, r)
	}
	if h.buf != nil && r.Level >= h.minLevel {
		h.buf.Add(Record{
			Time:     r.Time,
			Category: CategoryAlert,
			Level:    r.Level.String(),
			Message:  formatRecord(r, h.attrs, h.groups),
		})
	}
	return err
}

// WithAttrs implements slog.Handler.
func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &FanoutHandler{
		base:     h.base.WithAttrs(attrs),
		buf:      h.buf,
		minLevel: h.minLevel,
		attrs:    append(append([]slog.Attr{}, h.attrs...), attrs...),
		groups:   h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	return &FanoutHandler{
		base:     h.base.WithGroup(name),
		buf:      h.buf,
		minLevel: h.minLevel,
		attrs:    h.attrs,
		groups:   append(append([]string{}, h.groups...), name),
	}
}

// formatRecord produces a compact text representation of a log record.
func formatRecord(r slog.Record, preAttrs []slog.Attr, groups []string) string {
	var b strings.Builder
	b.WriteString(r.Message)

	for _, a := range preAttrs {
		fmt.Fprintf(&b, " %s=%s", a.Key, a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		key := a.Key
		if len(groups) > 0 {
			key = strings.Join(groups, ".") + "." + key
		}
		fmt.Fprintf(&b, " %s=%s", key, a.Value.String())
		return true
	})

	return b.String()
}
