// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package logging

import (
	"io"
	"strings"
	"sync"
)

// Redaction replaces masked values.
const Redaction = "***"

// DefaultSensitiveFields are masked unless Options.Redact says otherwise.
var DefaultSensitiveFields = []string{"name", "email", "phone", "ssn", "password", "session_id", "reset_token"}

// FilterDatum masks the value of every key=value segment of message whose
// key is in fields. A grouped key such as context.email matches on its last
// dotted segment. Segments are split on separator and rejoined unchanged
// apart from the masked values.
func FilterDatum(fields []string, redaction, message, separator string) string {
	if separator == "" || len(fields) == 0 {
		return message
	}
	segments := strings.Split(message, separator)
	for i, seg := range segments {
		key, _, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		name := strings.TrimSpace(key)
		leaf := name
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			leaf = name[i+1:]
		}
		for _, f := range fields {
			if name == f || leaf == f {
				segments[i] = key + "=" + redaction
				break
			}
		}
	}
	return strings.Join(segments, separator)
}

// RedactingWriter applies FilterDatum to every line written through it.
// Each Write must carry whole lines, which slog handlers guarantee.
type RedactingWriter struct {
	mu        sync.Mutex
	w         io.Writer
	fields    []string
	separator string
}

// NewRedactingWriter wraps w.
func NewRedactingWriter(w io.Writer, fields []string, separator string) *RedactingWriter {
	return &RedactingWriter{w: w, fields: fields, separator: separator}
}

func (r *RedactingWriter) Write(p []byte) (int, error) {
	lines := strings.SplitAfter(string(p), "\n")
	var b strings.Builder
	for _, line := range lines {
		body, nl := strings.CutSuffix(line, "\n")
		b.WriteString(FilterDatum(r.fields, Redaction, body, r.separator))
		if nl {
			b.WriteByte('\n')
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := io.WriteString(r.w, b.String()); err != nil {
		return 0, err //nolint:wrapcheck // io.Writer contract
	}
	return len(p), nil
}
