package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"repairhub/internal/api/middleware"
	"repairhub/internal/domain/order"
	"repairhub/internal/infrastructure/postgres"
	"repairhub/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type OrderPlacer interface {
	Execute(ctx context.Context, params usecase.OrderPartParams) (*usecase.OrderPartResult, error)
}

type OrderGetter interface {
	Execute(ctx context.Context, orderID string) (*order.RepairPartOrder, error)
}

type OrderLister interface {
	Execute(ctx context.Context, limit int) ([]*order.RepairPartOrder, error)
}

type Handlers struct {
	orderPartUC  OrderPlacer
	getOrderUC   OrderGetter
	listOrdersUC OrderLister
}

func NewHandlers(orderPartUC OrderPlacer, getOrderUC OrderGetter, listOrdersUC OrderLister) *Handlers {
	return &Handlers{
		orderPartUC:  orderPartUC,
		getOrderUC:   getOrderUC,
		listOrdersUC: listOrdersUC,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) OrderPart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RepairPartID int    `json:"repairPartId"`
		ReportID     string `json:"reportId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.orderPartUC.Execute(r.Context(), usecase.OrderPartParams{
		RepairPartID:   req.RepairPartID,
		ReportID:       req.ReportID,
		IdempotencyKey: r.Header.Get(middleware.IdempotencyKeyHeader),
	})
	if errors.Is(err, usecase.ErrInvalidPart) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if res.Duplicate {
		writeJSON(w, http.StatusOK, map[string]string{"status": "DUPLICATE"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"status":   "CREATED",
		"order_id": res.OrderID,
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing order id", http.StatusBadRequest)
		return
	}

	o, err := h.getOrderUC.Execute(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	orders, err := h.listOrdersUC.Execute(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, orders)
}
