// Package notify delivers low stock alerts to an external webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/stockbooks/stockbooks/internal/inventory"
)

// ErrDisabled is returned by a notifier without a target URL.
var ErrDisabled = errors.New("notify: webhook not configured")

// LowStockItem is the alert view of an item.
type LowStockItem struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	CurrentStock float64 `json:"currentStock"`
	MinimumStock float64 `json:"minimumStock"`
	Unit         string  `json:"unit"`
	Supplier     string  `json:"supplier,omitempty"`
}

// LowStockAlert is the webhook payload for one owner.
type LowStockAlert struct {
	OwnerID     string         `json:"ownerId"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Items       []LowStockItem `json:"items"`
}

// NewLowStockAlert builds the payload from inventory items.
func NewLowStockAlert(ownerID string, items []inventory.Item, now time.Time) LowStockAlert {
	alert := LowStockAlert{OwnerID: ownerID, GeneratedAt: now.UTC(), Items: make([]LowStockItem, 0, len(items))}
	for _, item := range items {
		alert.Items = append(alert.Items, LowStockItem{
			ID:           item.ID,
			Name:         item.Name,
			SKU:          item.SKU,
			CurrentStock: item.CurrentStock,
			MinimumStock: item.MinimumStock,
			Unit:         item.Unit,
			Supplier:     item.Supplier,
		})
	}
	return alert
}

// Webhook posts alerts as JSON to a fixed URL.
type Webhook struct {
	httpClient *resty.Client
	url        string
}

// NewWebhook builds a resty-backed notifier. An empty url yields a notifier
// whose Enabled reports false.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "stockbooks-notify").
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Webhook{httpClient: client, url: strings.TrimSpace(url)}
}

// Enabled reports whether a target URL is configured.
func (w *Webhook) Enabled() bool {
	return w != nil && w.url != ""
}

// NotifyLowStock posts the alert. Non-2xx responses are errors.
func (w *Webhook) NotifyLowStock(ctx context.Context, alert LowStockAlert) error {
	if !w.Enabled() {
		return ErrDisabled
	}
	resp, err := w.httpClient.R().
		SetContext(ctx).
		SetBody(alert).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("notify: post low stock alert: %w", err)
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("notify: webhook responded %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}
