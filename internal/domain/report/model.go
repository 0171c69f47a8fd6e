package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalidPayload marks an event body that cannot become a RepairReport.
var ErrInvalidPayload = errors.New("invalid repair report payload")

const (
	MinPartID = 100
	MaxPartID = 999
)

// RepairReport is the payload carried by every event on the repair log.
type RepairReport struct {
	ID         string    `json:"id"`
	Title      string    `json:"title,omitempty"`
	Details    string    `json:"details,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Ship       string    `json:"ship,omitempty"`
	PartNumber int       `json:"partNumber,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// Parse decodes a UTF-8 JSON body. Field names match case-insensitively and
// unknown fields are ignored.
func Parse(payload []byte) (*RepairReport, error) {
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: body is not valid UTF-8", ErrInvalidPayload)
	}
	payload = bytes.TrimPrefix(payload, []byte("\xef\xbb\xbf"))

	var r RepairReport
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidPayload)
	}

	return &r, nil
}

// PartID picks the replacement part to order. An explicit part number in
// range wins; otherwise the id is hashed into the range so redeliveries
// order the same part.
func (r *RepairReport) PartID() int {
	if r.PartNumber >= MinPartID && r.PartNumber <= MaxPartID {
		return r.PartNumber
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(r.ID))
	return MinPartID + int(h.Sum32()%uint32(MaxPartID-MinPartID+1))
}
