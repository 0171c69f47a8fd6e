package inbox

import "time"

// Record marks a request as handled by one consumer so a retried request
// with the same key is recognised.
type Record struct {
	Consumer      string    `json:"consumer"`
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	ProcessedAt   time.Time `json:"processed_at"`
}
