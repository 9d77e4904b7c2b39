// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// KVSeparator joins key=value pairs in the kv format.
const KVSeparator = "; "

// kvHandler renders records as "time=...; level=...; msg=...; key=value".
// Values are written verbatim so FilterDatum can split them again.
type kvHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

func newKVHandler(w io.Writer, level slog.Leveler) *kvHandler {
	return &kvHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *kvHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *kvHandler) Handle(_ context.Context, r slog.Record) error {
	pairs := []string{
		"time=" + r.Time.UTC().Format(time.RFC3339),
		"level=" + r.Level.String(),
		"msg=" + r.Message,
	}
	for _, a := range h.attrs {
		pairs = appendAttr(pairs, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		pairs = appendAttr(pairs, h.prefix, a)
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, strings.Join(pairs, KVSeparator)+"\n")
	return err //nolint:wrapcheck // Handler interface requires unwrapped error passthrough
}

func appendAttr(pairs []string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return pairs
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			pairs = appendAttr(pairs, p, ga)
		}
		return pairs
	}
	return append(pairs, fmt.Sprintf("%s%s=%v", prefix, a.Key, a.Value.Any()))
}

func (h *kvHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *kvHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}
