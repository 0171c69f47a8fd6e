package event

import (
	"time"
)

// Event is one record read from a partition of the log. It is owned by the
// transport until it is handed to the processor.
type Event struct {
	MessageID  string    `json:"message_id"`
	Partition  string    `json:"partition"`
	Offset     int64     `json:"offset"`
	Key        []byte    `json:"key,omitempty"`
	Payload    []byte    `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
