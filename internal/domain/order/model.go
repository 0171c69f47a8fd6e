package order

import (
	"time"
)

// RepairPartOrder is a replacement part ordered from the warehouse.
type RepairPartOrder struct {
	ID           string    `json:"id"`
	RepairPartID int       `json:"repairPartId"`
	ReportID     string    `json:"reportId,omitempty"`
	CreatedAt    time.Time `json:"timestamp"`
}
