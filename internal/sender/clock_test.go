package sender

import (
	"context"
	"testing"
	"time"

	"fgaction/internal/action"
)

type captureSender struct {
	got    []*StatusRecord
	closed bool
}

func (c *captureSender) Send(_ context.Context, rec *StatusRecord) error {
	c.got = append(c.got, rec)
	return nil
}

func (c *captureSender) Close() error {
	c.closed = true
	return nil
}

func TestClockSender_Stamps(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	next := &captureSender{}
	s := WithClock(next, func() time.Time { return fixed })

	rec := NewRecord(KindStarted, 1, action.NativeDirect, action.Config{Title: "t"})
	original := rec.Timestamp
	if err := s.Send(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	if len(next.got) != 1 {
		t.Fatalf("expected 1 forwarded record, got %d", len(next.got))
	}
	if !next.got[0].Timestamp.Equal(fixed) || next.got[0].Timestamp.Location() != time.UTC {
		t.Errorf("expected UTC stamp of %v, got %v", fixed, next.got[0].Timestamp)
	}
	if !rec.Timestamp.Equal(original) {
		t.Error("caller's record must not be modified")
	}

	if err := s.Close(); err != nil || !next.closed {
		t.Error("Close should reach the wrapped sender")
	}
	if s.Unwrap() != next {
		t.Error("Unwrap should return the wrapped sender")
	}
}
