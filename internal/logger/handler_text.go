package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

const textTimeLayout = "2006-01-02 15:04:05"

// ColorTextHandler renders records as a single line:
//
//	[2006-01-02 15:04:05] [LEVEL] [component] message key=value ...
//
// The component bracket is only printed when a "component" attribute is
// present. Keys inside groups are prefixed with the group path.
type ColorTextHandler struct {
	level    slog.Leveler
	w        io.Writer
	mu       *sync.Mutex
	useColor bool

	// component and prefix hold what WithAttrs already rendered.
	component string
	prefix    string
	groups    string
}

// NewColorTextHandler creates a new ColorTextHandler
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, useColor bool) *ColorTextHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &ColorTextHandler{level: level, w: w, mu: &sync.Mutex{}, useColor: useColor}
}

func (h *ColorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	component := h.component
	var attrs bytes.Buffer
	attrs.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		if h.groups == "" && a.Key == KeyComponent && component == "" {
			component = a.Value.String()
			return true
		}
		h.writeAttr(&attrs, h.groups, a)
		return true
	})

	var line bytes.Buffer
	line.WriteByte('[')
	line.WriteString(r.Time.Format(textTimeLayout))
	line.WriteString("] [")
	line.WriteString(h.levelLabel(r.Level))
	line.WriteString("] ")
	if component != "" {
		line.WriteString("[" + component + "] ")
	}
	line.WriteString(r.Message)
	line.Write(attrs.Bytes())
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(line.Bytes())
	return err
}

func (h *ColorTextHandler) levelLabel(level slog.Level) string {
	label, color := "ERROR", ansiRed
	switch {
	case level < slog.LevelInfo:
		label, color = "DEBUG", ansiGray
	case level < slog.LevelWarn:
		label, color = "INFO", ansiGreen
	case level < slog.LevelError:
		label, color = "WARN", ansiYellow
	}
	if !h.useColor {
		return label
	}
	return color + label + ansiReset
}

func (h *ColorTextHandler) writeAttr(buf *bytes.Buffer, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if group != "" {
		key = group + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			h.writeAttr(buf, key, ga)
		}
		return
	}

	val := renderValue(a.Value)
	if strings.ContainsAny(val, " \t\n\"=") {
		val = strconv.Quote(val)
	}

	buf.WriteByte(' ')
	if h.useColor {
		buf.WriteString(ansiCyan + key + ansiReset)
	} else {
		buf.WriteString(key)
	}
	buf.WriteByte('=')
	buf.WriteString(val)
}

func renderValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

// WithAttrs renders attrs once so that records logged through the returned
// handler only pay for their own attributes.
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	var buf bytes.Buffer
	buf.WriteString(h.prefix)
	for _, a := range attrs {
		if h.groups == "" && a.Key == KeyComponent && c.component == "" {
			c.component = a.Value.Resolve().String()
			continue
		}
		h.writeAttr(&buf, h.groups, a)
	}
	c.prefix = buf.String()
	return &c
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.groups != "" {
		c.groups += "." + name
	} else {
		c.groups = name
	}
	return &c
}
