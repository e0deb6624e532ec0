package sender

import (
	"context"
	"time"
)

// ClockSender stamps every record with now() before forwarding it.
type ClockSender struct {
	next Sender
	now  func() time.Time
}

// WithClock wraps next so record timestamps come from now, for example a
// clock aligned with a central server.
func WithClock(next Sender, now func() time.Time) *ClockSender {
	return &ClockSender{next: next, now: now}
}

func (s *ClockSender) Send(ctx context.Context, rec *StatusRecord) error {
	stamped := *rec
	stamped.Timestamp = s.now().UTC()
	return s.next.Send(ctx, &stamped)
}

func (s *ClockSender) Close() error {
	return s.next.Close()
}

// Unwrap returns the wrapped sender.
func (s *ClockSender) Unwrap() Sender {
	return s.next
}
