package sender

import (
	"errors"
	"strings"
	"testing"

	"fgaction/internal/action"
)

func TestNewRecord_StampsEventID(t *testing.T) {
	cfg := action.Config{TaskName: "t", Title: "Fittest", Description: "ongoing"}
	a := NewRecord(KindStarted, 7, action.NativeHeadless, cfg)
	b := NewRecord(KindStarted, 7, action.NativeHeadless, cfg)

	if a.EventID == "" || a.EventID == b.EventID {
		t.Errorf("expected distinct event ids, got %q and %q", a.EventID, b.EventID)
	}
	if a.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if a.Key() != "7" {
		t.Errorf("expected key 7, got %q", a.Key())
	}
}

func TestStatusRecord_TextLine(t *testing.T) {
	rec := NewRecord(KindFailed, 3, action.NativeDirect, action.Config{
		Title:    "Upload",
		Progress: action.Progress{Current: 2, Max: 5},
	}).WithError(errors.New("boom"))

	line := rec.TextLine()
	for _, want := range []string{"failed", "id=3", "strategy=native-direct", `title="Upload"`, "progress=2/5", `error="boom"`} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in %q", want, line)
		}
	}
}

func TestStatusRecord_TextLineIndeterminate(t *testing.T) {
	rec := NewRecord(KindUpdated, 1, action.NativeHeadless, action.Config{
		Progress: action.Progress{Indeterminate: true},
	})
	if !strings.Contains(rec.TextLine(), "progress=indeterminate") {
		t.Errorf("unexpected line %q", rec.TextLine())
	}
}
