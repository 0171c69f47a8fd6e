package postgres

import (
	"context"
	"errors"
	"fmt"

	"repairhub/internal/domain/report"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type ReportRepository struct {
	db DB
}

func NewReportRepository(db DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// AddIfNew returns true if the report was saved (is new), false if it already existed.
func (r *ReportRepository) AddIfNew(ctx context.Context, rep *report.RepairReport) (bool, error) {
	const sql = `
		INSERT INTO repair_reports (id, title, details, reason, ship, part_number, reported_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO NOTHING
	`

	var partNumber any
	if rep.PartNumber != 0 {
		partNumber = rep.PartNumber
	}
	var reportedAt any
	if !rep.CreatedAt.IsZero() {
		reportedAt = rep.CreatedAt
	}

	tag, err := executor(ctx, r.db).Exec(ctx, sql,
		rep.ID, nullIfEmptyText(rep.Title), nullIfEmptyText(rep.Details), nullIfEmptyText(rep.Reason),
		nullIfEmptyText(rep.Ship), partNumber, reportedAt)
	if err != nil {
		return false, fmt.Errorf("insert repair report: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}
