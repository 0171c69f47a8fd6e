package postgres

import (
	"context"
	"errors"
	"fmt"

	"repairhub/internal/domain/order"

	"github.com/jackc/pgx/v5"
)

type OrderRepository struct {
	db DB
}

func NewOrderRepository(db DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.RepairPartOrder) error {
	const sql = `
		INSERT INTO repair_part_orders (id, repair_part_id, report_id, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := executor(ctx, r.db).Exec(ctx, sql, o.ID, o.RepairPartID, nullIfEmptyText(o.ReportID), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert repair part order: %w", err)
	}

	return nil
}

func (r *OrderRepository) ListRecent(ctx context.Context, limit int) ([]*order.RepairPartOrder, error) {
	const sql = `
		SELECT id::text, repair_part_id, COALESCE(report_id, ''), created_at
		FROM repair_part_orders
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := executor(ctx, r.db).Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("query repair part orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.RepairPartOrder
	for rows.Next() {
		o := &order.RepairPartOrder{}
		if err := rows.Scan(&o.ID, &o.RepairPartID, &o.ReportID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan repair part order: %w", err)
		}
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.RepairPartOrder, error) {
	const sql = `
		SELECT id::text, repair_part_id, COALESCE(report_id, ''), created_at
		FROM repair_part_orders
		WHERE id = $1
	`

	var o order.RepairPartOrder
	err := executor(ctx, r.db).QueryRow(ctx, sql, id).Scan(&o.ID, &o.RepairPartID, &o.ReportID, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}

	return &o, nil
}
