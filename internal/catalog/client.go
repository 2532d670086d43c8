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

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/sellerdesk/sellerdesk/internal/models"
)

// ErrNotFound is returned when the marketplace has no catalog item for
// the requested ASIN.
var ErrNotFound = errors.New("catalog: item not found")

// Client fetches catalog items from the Selling Partner Catalog Items
// API (2022-04-01). Requests are throttled to stay inside the published
// rate limit of 2 requests per second.
type Client struct {
	endpoint      string
	marketplaceID string
	httpClients   map[string]*http.Client
	limiter       *rate.Limiter
}

// NewClient builds a catalog client over per-account authenticated HTTP
// clients keyed by account name.
func NewClient(endpoint, marketplaceID string, httpClients map[string]*http.Client) *Client {
	return &Client{
		endpoint:      strings.TrimRight(endpoint, "/"),
		marketplaceID: marketplaceID,
		httpClients:   httpClients,
		limiter:       rate.NewLimiter(rate.Limit(2), 2),
	}
}

type catalogItem struct {
	Summaries []struct {
		ItemName    string `json:"itemName"`
		Brand       string `json:"brand"`
		ProductType string `json:"productType"`
		Color       string `json:"color"`
		Size        string `json:"size"`
	} `json:"summaries"`
	Descriptions []struct {
		Value string `json:"value"`
	} `json:"descriptions"`
	Attributes struct {
		BulletPoint []struct {
			Value string `json:"value"`
		} `json:"bullet_point"`
	} `json:"attributes"`
	Images []struct {
		Images []struct {
			Link string `json:"link"`
		} `json:"images"`
	} `json:"images"`
}

// FetchProduct retrieves one catalog item using the credentials of the
// named account.
func (c *Client) FetchProduct(ctx context.Context, asin, accountName string) (*models.ProductFact, error) {
	httpClient, ok := c.httpClients[accountName]
	if !ok {
		return nil, fmt.Errorf("catalog: account %s has no selling partner credentials", accountName)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("marketplaceIds", c.marketplaceID)
	query.Set("includedData", "summaries,descriptions,attributes,images")
	endpoint := fmt.Sprintf("%s/catalog/2022-04-01/items/%s?%s", c.endpoint, url.PathEscape(asin), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog item %s: %w", asin, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog item %s: unexpected status %d", asin, resp.StatusCode)
	}

	var item catalogItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("decoding catalog item %s: %w", asin, err)
	}
	return buildFact(asin, &item), nil
}

func buildFact(asin string, item *catalogItem) *models.ProductFact {
	fact := &models.ProductFact{ASIN: asin}
	if len(item.Summaries) > 0 {
		summary := item.Summaries[0]
		fact.Title = summary.ItemName
		fact.Brand = summary.Brand
		fact.ProductType = summary.ProductType
		fact.Color = summary.Color
		fact.Size = summary.Size
	}
	if len(item.Descriptions) > 0 {
		fact.Description = item.Descriptions[0].Value
	}
	var bullets []string
	for _, bp := range item.Attributes.BulletPoint {
		if bp.Value != "" {
			bullets = append(bullets, bp.Value)
		}
	}
	fact.BulletPoints = strings.Join(bullets, "\n")
	if len(item.Images) > 0 && len(item.Images[0].Images) > 0 {
		fact.ImageURL = item.Images[0].Images[0].Link
	}
	return fact
}
