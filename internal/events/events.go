package events

import (
	"encoding/json"
	"time"
)

// Event types pushed to /events subscribers.
const (
	TypeJobAdded   = "job_added"
	TypeJobUpdated = "job_updated"
	TypeJobDeleted = "job_deleted"
	TypeJobMoved   = "job_moved"
	TypeColumns    = "columns_changed"
	TypeBulkItem   = "bulk_item"
	TypeMailImport = "mail_import"
	TypePing       = "ping"
	CurrentVersion = 1
)

type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Board     string          `json:"board,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MakeEvent encodes one event as a single JSON line for the SSE stream.
func MakeEvent(reqID, board, typ string, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:      typ,
		Version:   CurrentVersion,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Board:     board,
		Data:      raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}
