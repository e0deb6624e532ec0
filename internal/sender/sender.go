// Package sender publishes the visible status of foreground actions. A
// status record is what a platform would render as the ongoing notification;
// the daemon makes it visible by writing it to a file, Kafka or a Kafka REST
// proxy.
package sender

import (
	"context"
)

// Sender defines the interface for publishing status records.
type Sender interface {
	// Send publishes a single status record.
	Send(ctx context.Context, rec *StatusRecord) error

	// Close releases any resources held by the sender.
	Close() error
}

// NopSender discards every record.
type NopSender struct{}

func (NopSender) Send(context.Context, *StatusRecord) error { return nil }

func (NopSender) Close() error { return nil }
