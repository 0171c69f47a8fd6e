package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS repair_reports (
	id          TEXT PRIMARY KEY,
	title       TEXT,
	details     TEXT,
	reason      TEXT,
	ship        TEXT,
	part_number INTEGER,
	reported_at TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS repair_part_orders (
	id             UUID PRIMARY KEY,
	repair_part_id INTEGER NOT NULL,
	report_id      TEXT,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS repair_part_orders_part_idx ON repair_part_orders (repair_part_id);

CREATE TABLE IF NOT EXISTS inbox_events (
	consumer       TEXT NOT NULL,
	event_id       TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	correlation_id TEXT,
	processed_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (consumer, event_id)
);
`

// EnsureSchema creates the service tables when they do not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
