// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package logging provides structured logging with OpenTelemetry trace
// context and redaction of personal data.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"

	"go.opentelemetry.io/otel/trace"
)

// Log formats accepted by Setup.
const (
	FormatJSON = "json"
	FormatText = "text"
	FormatKV   = "kv"
)

// traceHandler decorates records with service identity and trace context.
type traceHandler struct {
	handler slog.Handler
	service string
	version string
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(
		slog.String("service", h.service),
		slog.String("version", h.version),
	)

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.HasTraceID() {
		r.AddAttrs(slog.String("trace_id", spanCtx.TraceID().String()))
	}
	if spanCtx.HasSpanID() {
		r.AddAttrs(slog.String("span_id", spanCtx.SpanID().String()))
	}

	//nolint:wrapcheck // Handler interface requires unwrapped error passthrough
	return h.handler.Handle(ctx, r)
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{handler: h.handler.WithAttrs(attrs), service: h.service, version: h.version}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{handler: h.handler.WithGroup(name), service: h.service, version: h.version}
}

// Options tunes NewLogger.
type Options struct {
	Format string
	Level  slog.Leveler
	// Redact lists attribute keys whose values are masked. Nil means
	// DefaultSensitiveFields; an empty non-nil slice disables redaction.
	Redact []string
}

// Setup creates a logger writing format ("json", "text" or "kv") to w.
// An empty format means json and a nil w means os.Stderr.
func Setup(service, version, format string, w io.Writer) *slog.Logger {
	return NewLogger(service, version, w, Options{Format: format})
}

// NewLogger is Setup with explicit options.
func NewLogger(service, version string, w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelDebug
	}
	fields := opts.Redact
	if fields == nil {
		fields = DefaultSensitiveFields
	}

	hopts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if slices.Contains(fields, a.Key) {
				return slog.String(a.Key, Redaction)
			}
			return a
		},
	}

	var base slog.Handler
	switch opts.Format {
	case FormatText:
		base = slog.NewTextHandler(w, hopts)
	case FormatKV:
		base = newKVHandler(NewRedactingWriter(w, fields, KVSeparator), level)
	default:
		base = slog.NewJSONHandler(w, hopts)
	}

	return slog.New(&traceHandler{handler: base, service: service, version: version})
}

// SetDefault installs a Setup logger as the slog default.
func SetDefault(service, version, format string) {
	slog.SetDefault(Setup(service, version, format, nil))
}
