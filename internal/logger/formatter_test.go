package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func writeFields(t *testing.T, fields map[string]interface{}) string {
	t.Helper()
	var buf bytes.Buffer
	w := NewFixedFormatWriter(&buf)

	data, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	n, err := w.Write(data)
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != len(data) {
		t.Errorf("Write returned %d, want %d", n, len(data))
	}
	return buf.String()
}

func TestFixedFormatWriter_ActionLine(t *testing.T) {
	line := writeFields(t, map[string]interface{}{
		"level":     "info",
		"time":      "2026-10-19T12:00:00+02:00",
		"component": "supervisor",
		"action_id": 3,
		"message":   "action started",
		"strategy":  "native-headless",
		"caller":    "supervisor.go:10",
	})

	want := "2026-10-19 12:00:00.000 [INF] [supervisor  ] #3 action started strategy=native-headless\n"
	if line != want {
		t.Errorf("got  %q\nwant %q", line, want)
	}
}

func TestFixedFormatWriter_NoActionQuotesValues(t *testing.T) {
	line := writeFields(t, map[string]interface{}{
		"level":     "error",
		"time":      "2026-10-19T12:00:01.2Z",
		"component": "headless-executor",
		"message":   "stop failed",
		"error":     "context gone",
	})

	if !strings.HasPrefix(line, "2026-10-19 12:00:01.200 [ERR] [headless-exe] #- stop failed") {
		t.Errorf("unexpected prefix: %q", line)
	}
	if !strings.Contains(line, `error="context gone"`) {
		t.Errorf("expected quoted error value: %q", line)
	}
}

func TestFixedFormatWriter_PassesThroughNonJSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewFixedFormatWriter(&buf)
	if _, err := w.Write([]byte("plain text\n")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if buf.String() != "plain text\n" {
		t.Errorf("expected passthrough, got %q", buf.String())
	}
}

func TestFormatTimestamp(t *testing.T) {
	cases := map[string]string{
		"2026-10-19T08:15:30Z":                "2026-10-19 08:15:30.000",
		"2026-10-19T08:15:30.123456789-05:00": "2026-10-19 08:15:30.123",
		"2026-10-19T08:15:30.5+09:00":         "2026-10-19 08:15:30.500",
		"":                                    strings.Repeat(" ", 23),
	}
	for in, want := range cases {
		if got := formatTimestamp(in); got != want {
			t.Errorf("formatTimestamp(%q) = %q, want %q", in, got, want)
		}
	}
}
