package sender

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fgaction/internal/action"
)

// Kind is the lifecycle event a status record describes.
type Kind string

const (
	KindStarted Kind = "started"
	KindUpdated Kind = "updated"
	KindStopped Kind = "stopped"
	KindFailed  Kind = "failed"
	KindExpired Kind = "expired"
)

// StatusRecord is one published status change of an action.
type StatusRecord struct {
	EventID   string          `json:"eventId"`
	ActionID  action.ID       `json:"actionId"`
	Kind      Kind            `json:"kind"`
	Strategy  action.Strategy `json:"strategy"`
	Config    action.Config   `json:"config"`
	Timestamp time.Time       `json:"timestamp"`
	Error     string          `json:"error,omitempty"`
}

// NewRecord builds a record stamped with a fresh event id and the current UTC time.
func NewRecord(kind Kind, id action.ID, strategy action.Strategy, cfg action.Config) *StatusRecord {
	return &StatusRecord{
		EventID:   uuid.NewString(),
		ActionID:  id,
		Kind:      kind,
		Strategy:  strategy,
		Config:    cfg,
		Timestamp: time.Now().UTC(),
	}
}

// WithError attaches err to the record and returns it.
func (r *StatusRecord) WithError(err error) *StatusRecord {
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Key is the partition key: records of one action stay ordered.
func (r *StatusRecord) Key() string {
	return r.ActionID.String()
}

// TextLine renders the record as a single human-readable line.
func (r *StatusRecord) TextLine() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-7s id=%s strategy=%s title=%q",
		r.Timestamp.Format("2006-01-02 15:04:05.000"), r.Kind, r.ActionID, r.Strategy, r.Config.Title)
	if r.Config.Description != "" {
		fmt.Fprintf(&b, " desc=%q", r.Config.Description)
	}
	p := r.Config.Progress
	switch {
	case p.Indeterminate:
		b.WriteString(" progress=indeterminate")
	case p.Max > 0:
		fmt.Fprintf(&b, " progress=%d/%d", p.Current, p.Max)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, " error=%q", r.Error)
	}
	return b.String()
}
