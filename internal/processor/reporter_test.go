package processor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestReporter_Report(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(slog.New(slog.NewJSONHandler(&buf, nil)))

	r.Report(context.Background(), errors.New("connection reset"), ErrorContext{
		Operation: "transport",
		Partition: "3",
		MessageID: "m-1",
		Offset:    42,
	})

	out := buf.String()
	for _, want := range []string{`"operation":"transport"`, `"partition":"3"`, `"offset":42`, `"message_id":"m-1"`, "connection reset"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log output to contain %s, got %s", want, out)
		}
	}
}

func TestReporter_IgnoresNil(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(slog.New(slog.NewJSONHandler(&buf, nil)))

	r.Report(context.Background(), nil, ErrorContext{Operation: "noop"})

	if buf.Len() != 0 {
		t.Errorf("expected no output for nil error, got %s", buf.String())
	}
}
