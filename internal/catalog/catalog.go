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

// Package catalog resolves ASINs to product facts, caching results in
// the database so each product is fetched from the marketplace at most
// once per freshness window.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sellerdesk/sellerdesk/internal/models"
)

// FactStore is the persistence surface the cache needs.
type FactStore interface {
	GetProductFact(ctx context.Context, asin string) (*models.ProductFact, error)
	UpsertProductFact(ctx context.Context, fact *models.ProductFact) error
}

// Source fetches a product fact from the marketplace.
type Source interface {
	FetchProduct(ctx context.Context, asin, accountName string) (*models.ProductFact, error)
}

// Cache serves product facts from the database, refreshing entries older
// than the configured TTL from the upstream source. When the source
// fails and a stale entry exists, the stale entry is returned rather
// than nothing.
type Cache struct {
	store  FactStore
	source Source
	ttl    time.Duration
	log    *slog.Logger
}

func NewCache(store FactStore, source Source, ttl time.Duration, log *slog.Logger) *Cache {
	return &Cache{store: store, source: source, ttl: ttl, log: log}
}

// Get returns the product fact for an ASIN, or nil when the product is
// unknown both locally and upstream.
func (c *Cache) Get(ctx context.Context, asin, accountName string) (*models.ProductFact, error) {
	cached, err := c.store.GetProductFact(ctx, asin)
	if err != nil {
		return nil, fmt.Errorf("loading cached product %s: %w", asin, err)
	}
	if cached != nil {
		age := time.Since(cached.FetchedAt)
		if age < c.ttl {
			c.log.Debug("product cache hit", "asin", asin)
			return cached, nil
		}
		c.log.Info("product cache expired", "asin", asin, "age", age)
	}

	fact, err := c.source.FetchProduct(ctx, asin, accountName)
	if err != nil {
		if cached != nil {
			c.log.Warn("catalog fetch failed, serving stale entry", "asin", asin, "error", err)
			return cached, nil
		}
		c.log.Warn("catalog fetch failed", "asin", asin, "error", err)
		return nil, nil
	}

	if err := c.store.UpsertProductFact(ctx, fact); err != nil {
		return nil, fmt.Errorf("saving product %s: %w", asin, err)
	}
	c.log.Info("product info saved", "asin", asin, "title", fact.Title)
	return fact, nil
}

// FormatForPrompt renders a product fact as the text block handed to the
// drafting model.
func FormatForPrompt(fact *models.ProductFact) string {
	var lines []string
	if fact.Title != "" {
		lines = append(lines, "商品名: "+fact.Title)
	}
	if fact.Brand != "" {
		lines = append(lines, "ブランド: "+fact.Brand)
	}
	if fact.ProductType != "" {
		lines = append(lines, "カテゴリ: "+fact.ProductType)
	}
	if fact.Color != "" {
		lines = append(lines, "カラー: "+fact.Color)
	}
	if fact.Size != "" {
		lines = append(lines, "サイズ: "+fact.Size)
	}
	if fact.BulletPoints != "" {
		lines = append(lines, "\n商品の特徴:")
		for _, bp := range strings.Split(fact.BulletPoints, "\n") {
			if bp = strings.TrimSpace(bp); bp != "" {
				lines = append(lines, "  - "+bp)
			}
		}
	}
	if fact.Description != "" {
		desc := fact.Description
		if len([]rune(desc)) > 800 {
			desc = string([]rune(desc)[:800]) + "..."
		}
		lines = append(lines, "\n商品説明:\n"+desc)
	}
	return strings.Join(lines, "\n")
}
