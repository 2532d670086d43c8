// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package orders looks up order status from the Selling Partner Orders
// API. Lookups never fail hard: any problem is recorded on the result so
// downstream drafting can state that the order is unconfirmed instead of
// guessing.
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// statusLabels maps marketplace order statuses to the labels used in
// customer-facing context.
var statusLabels = map[string]string{
	"Pending":             "注文確定待ち",
	"Unshipped":           "未発送",
	"PartiallyShipped":    "一部発送済み",
	"Shipped":             "発送済み",
	"Canceled":            "キャンセル済み",
	"Unfulfillable":       "発送不可",
	"InvoiceUnconfirmed":  "請求書未確認",
	"PendingAvailability": "在庫確認待ち",
}

// Item is one line item on an order.
type Item struct {
	ASIN     string `json:"asin"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
}

// Info is the structured result of an order lookup. IsAvailable reports
// whether the marketplace confirmed the order; when false, ErrorReason
// explains why.
type Info struct {
	OrderID            string `json:"order_id"`
	Status             string `json:"status,omitempty"`
	StatusLabel        string `json:"status_label,omitempty"`
	FulfillmentChannel string `json:"fulfillment_channel,omitempty"`
	LastUpdate         string `json:"last_update,omitempty"`
	IsAvailable        bool   `json:"is_available"`
	ErrorReason        string `json:"error_reason,omitempty"`
	Items              []Item `json:"items,omitempty"`
}

// Client queries the Orders v0 API. The shared limiter keeps requests
// inside the published rate of 0.5 per second.
type Client struct {
	endpoint    string
	httpClients map[string]*http.Client
	limiter     *rate.Limiter
	log         *slog.Logger
}

func NewClient(endpoint string, httpClients map[string]*http.Client, log *slog.Logger) *Client {
	return &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		httpClients: httpClients,
		limiter:     rate.NewLimiter(rate.Limit(0.5), 1),
		log:         log,
	}
}

type orderPayload struct {
	Payload struct {
		OrderStatus        string `json:"OrderStatus"`
		FulfillmentChannel string `json:"FulfillmentChannel"`
		LastUpdateDate     string `json:"LastUpdateDate"`
	} `json:"payload"`
}

type orderItemsPayload struct {
	Payload struct {
		OrderItems []struct {
			ASIN            string `json:"ASIN"`
			Title           string `json:"Title"`
			QuantityOrdered int    `json:"QuantityOrdered"`
		} `json:"OrderItems"`
	} `json:"payload"`
}

// Get looks up one order with the credentials of the named account. It
// always returns an Info; failures are reported via IsAvailable and
// ErrorReason.
func (c *Client) Get(ctx context.Context, orderID, accountName string) *Info {
	if orderID == "" {
		return &Info{ErrorReason: "注文番号なし"}
	}
	httpClient, ok := c.httpClients[accountName]
	if !ok {
		return &Info{OrderID: orderID, ErrorReason: "SP APIクレデンシャル未設定"}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &Info{OrderID: orderID, ErrorReason: fmt.Sprintf("API取得エラー: %v", err)}
	}

	var payload orderPayload
	if err := c.getJSON(ctx, httpClient, "/orders/v0/orders/"+url.PathEscape(orderID), &payload); err != nil {
		c.log.Warn("order lookup failed", "order_id", orderID, "error", err)
		return &Info{OrderID: orderID, ErrorReason: fmt.Sprintf("API取得エラー: %v", err)}
	}
	order := payload.Payload
	if order.OrderStatus == "" {
		return &Info{OrderID: orderID, ErrorReason: "注文情報が見つかりません"}
	}

	label, ok := statusLabels[order.OrderStatus]
	if !ok {
		label = order.OrderStatus
	}
	info := &Info{
		OrderID:            orderID,
		Status:             order.OrderStatus,
		StatusLabel:        label,
		FulfillmentChannel: order.FulfillmentChannel,
		LastUpdate:         order.LastUpdateDate,
		IsAvailable:        true,
	}

	if order.OrderStatus == "Shipped" || order.OrderStatus == "PartiallyShipped" {
		c.attachItems(ctx, httpClient, orderID, info)
	}

	c.log.Info("order info fetched", "order_id", orderID,
		"status", order.OrderStatus, "fulfillment", order.FulfillmentChannel)
	return info
}

func (c *Client) attachItems(ctx context.Context, httpClient *http.Client, orderID string, info *Info) {
	var payload orderItemsPayload
	if err := c.getJSON(ctx, httpClient, "/orders/v0/orders/"+url.PathEscape(orderID)+"/orderItems", &payload); err != nil {
		c.log.Warn("order items lookup failed", "order_id", orderID, "error", err)
		return
	}
	for _, item := range payload.Payload.OrderItems {
		info.Items = append(info.Items, Item{
			ASIN:     item.ASIN,
			Title:    item.Title,
			Quantity: item.QuantityOrdered,
		})
	}
}

func (c *Client) getJSON(ctx context.Context, httpClient *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// FormatForPrompt renders order information for the drafting model. An
// unconfirmed order is labeled explicitly so the model does not assert a
// shipping state it cannot know.
func FormatForPrompt(info *Info) string {
	if !info.IsAvailable {
		return fmt.Sprintf(
			"注文番号: %s\n注文ステータス: 【未確認】（%s）\n※注文の状態が確認できていないため、発送済み・未発送などの断定はしないでください。",
			info.OrderID, info.ErrorReason)
	}

	lines := []string{
		"注文番号: " + info.OrderID,
		fmt.Sprintf("注文ステータス: %s（%s）", info.StatusLabel, info.Status),
	}
	if info.FulfillmentChannel != "" {
		label := "自社発送"
		if info.FulfillmentChannel == "AFN" {
			label = "FBA（Amazon倉庫から発送）"
		}
		lines = append(lines, "出荷方法: "+label)
	}
	if info.LastUpdate != "" {
		lines = append(lines, "最終更新日: "+info.LastUpdate)
	}
	if len(info.Items) > 0 {
		lines = append(lines, "注文商品:")
		for _, item := range info.Items {
			lines = append(lines, fmt.Sprintf("  - %s (ASIN: %s) x%d", item.Title, item.ASIN, item.Quantity))
		}
	}
	return strings.Join(lines, "\n")
}
