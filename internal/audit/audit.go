// Package audit records successful mutations sent to the backend.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

type Event struct {
	Key       string          `json:"key"`
	Operation string          `json:"operation"`
	ID        string          `json:"id,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	At        time.Time       `json:"at"`
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Nop is used when no audit bucket is configured.
type Nop struct{}

func (Nop) Record(context.Context, Event) error {
	return nil
}
