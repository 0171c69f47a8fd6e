package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"repairhub/internal/domain/order"
	"repairhub/internal/infrastructure/postgres"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type OrderReader interface {
	GetByID(ctx context.Context, id string) (*order.RepairPartOrder, error)
	ListRecent(ctx context.Context, limit int) ([]*order.RepairPartOrder, error)
}

type GetOrder struct {
	redisClient redis.Cmdable
	orderRepo   OrderReader
}

func NewGetOrder(redisClient redis.Cmdable, orderRepo OrderReader) *GetOrder {
	return &GetOrder{
		redisClient: redisClient,
		orderRepo:   orderRepo,
	}
}

// Execute reads through a short lived cache; orders never change after creation.
func (uc *GetOrder) Execute(ctx context.Context, orderID string) (*order.RepairPartOrder, error) {
	// Order ids are uuids; anything else cannot exist.
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, postgres.ErrNotFound
	}

	cacheKey := fmt.Sprintf("warehouse:order:%s", orderID)

	if uc.redisClient != nil {
		val, err := uc.redisClient.Get(ctx, cacheKey).Result()
		if err == nil {
			var o order.RepairPartOrder
			if err := json.Unmarshal([]byte(val), &o); err == nil {
				return &o, nil
			}
		}
	}

	o, err := uc.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if uc.redisClient != nil {
		if data, err := json.Marshal(o); err == nil {
			uc.redisClient.Set(ctx, cacheKey, data, 5*time.Minute)
		}
	}

	return o, nil
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type ListOrders struct {
	orderRepo OrderReader
}

func NewListOrders(orderRepo OrderReader) *ListOrders {
	return &ListOrders{orderRepo: orderRepo}
}

func (uc *ListOrders) Execute(ctx context.Context, limit int) ([]*order.RepairPartOrder, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	orders, err := uc.orderRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []*order.RepairPartOrder{}
	}
	return orders, nil
}
