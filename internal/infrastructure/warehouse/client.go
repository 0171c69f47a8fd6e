package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// IdempotencyHeader lets the warehouse recognise a retried order.
const IdempotencyHeader = "Idempotency-Key"

type Config struct {
	URL     string
	Timeout time.Duration
	Policy  PolicyConfig
}

type activePolicy struct {
	name string
	policy
}

// Client orders repair parts from the warehouse service.
type Client struct {
	baseURL string
	http    *http.Client
	policy  atomic.Pointer[activePolicy]
}

func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	if err := c.SetPolicy(cfg.Policy); err != nil {
		return nil, err
	}
	return c, nil
}

// SetPolicy swaps the resilience policy for subsequent orders. Orders in
// flight finish under the policy they started with.
func (c *Client) SetPolicy(cfg PolicyConfig) error {
	p, err := newPolicy(cfg)
	if err != nil {
		return err
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		name = PolicyNone
	}
	if prev := c.policy.Swap(&activePolicy{name: name, policy: p}); prev != nil && prev.name != name {
		slog.Info("warehouse policy changed", "from", prev.name, "to", name)
	}
	return nil
}

// Policy names the active resilience policy.
func (c *Client) Policy() string {
	return c.policy.Load().name
}

type orderRequest struct {
	RepairPartID int    `json:"repairPartId"`
	ReportID     string `json:"reportId,omitempty"`
}

// OrderPart places one order. A repeated order for the same report and part
// is accepted by the warehouse as a no-op, which makes retries safe.
func (c *Client) OrderPart(ctx context.Context, partID int, reportID string) error {
	body, err := json.Marshal(orderRequest{RepairPartID: partID, ReportID: reportID})
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	err = c.policy.Load().Do(ctx, func(ctx context.Context) error {
		return c.send(ctx, body, partID, reportID)
	})
	if err != nil {
		return fmt.Errorf("order repair part %d: %w", partID, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, body []byte, partID int, reportID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/orders", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if reportID != "" {
		req.Header.Set(IdempotencyHeader, fmt.Sprintf("%s:%d", reportID, partID))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusConflict && resp.Header.Get("X-Idempotency-Hit") == "true":
		return nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
}
