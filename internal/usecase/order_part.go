package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repairhub/internal/domain/inbox"
	"repairhub/internal/domain/order"
	"repairhub/internal/infrastructure/postgres"

	"github.com/google/uuid"
)

// ErrInvalidPart is returned for part ids the warehouse does not stock.
var ErrInvalidPart = errors.New("repair part id must be positive")

const warehouseConsumer = "warehouse"

type OrderCreator interface {
	Create(ctx context.Context, o *order.RepairPartOrder) error
}

type InboxSaver interface {
	SaveIfNotExists(ctx context.Context, r *inbox.Record) (bool, error)
}

type OrderPart struct {
	txManager postgres.Transactor
	orderRepo OrderCreator
	inboxRepo InboxSaver
	now       func() time.Time
}

func NewOrderPart(txManager postgres.Transactor, orderRepo OrderCreator, inboxRepo InboxSaver) *OrderPart {
	return &OrderPart{
		txManager: txManager,
		orderRepo: orderRepo,
		inboxRepo: inboxRepo,
		now:       time.Now,
	}
}

type OrderPartParams struct {
	RepairPartID   int    `json:"repairPartId"`
	ReportID       string `json:"reportId"`
	IdempotencyKey string `json:"-"`
}

type OrderPartResult struct {
	OrderID string
	// Duplicate is true when the idempotency key was seen before and no new
	// order was placed.
	Duplicate bool
}

func (uc *OrderPart) Execute(ctx context.Context, params OrderPartParams) (*OrderPartResult, error) {
	if params.RepairPartID <= 0 {
		return nil, ErrInvalidPart
	}

	newOrder := &order.RepairPartOrder{
		ID:           uuid.New().String(),
		RepairPartID: params.RepairPartID,
		ReportID:     params.ReportID,
		CreatedAt:    uc.now().UTC(),
	}
	result := &OrderPartResult{OrderID: newOrder.ID}

	err := uc.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		if params.IdempotencyKey != "" {
			isNew, err := uc.inboxRepo.SaveIfNotExists(txCtx, &inbox.Record{
				Consumer:      warehouseConsumer,
				EventID:       params.IdempotencyKey,
				EventType:     "RepairPartOrdered",
				CorrelationID: params.ReportID,
			})
			if err != nil {
				return err
			}
			if !isNew {
				result = &OrderPartResult{Duplicate: true}
				return nil
			}
		}

		return uc.orderRepo.Create(txCtx, newOrder)
	})
	if err != nil {
		return nil, fmt.Errorf("transaction failed: %w", err)
	}

	return result, nil
}
