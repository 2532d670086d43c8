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

package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sellerdesk/sellerdesk/internal/models"
)

// GetProductFact returns the cached catalog facts for an ASIN, or nil if
// none have been fetched yet. Freshness is judged by the caller.
func (s *Store) GetProductFact(ctx context.Context, asin string) (*models.ProductFact, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, asin, title, brand, description, bullet_points,
		       product_type, color, size, image_url, fetched_at
		FROM product_catalog WHERE asin = $1
	`, asin)

	var p models.ProductFact
	err := row.Scan(
		&p.ID, &p.ASIN, &p.Title, &p.Brand, &p.Description, &p.BulletPoints,
		&p.ProductType, &p.Color, &p.Size, &p.ImageURL, &p.FetchedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProductFact replaces the cache entry for an ASIN wholesale and
// stamps it with the current time.
func (s *Store) UpsertProductFact(ctx context.Context, p *models.ProductFact) error {
	p.FetchedAt = time.Now().UTC()
	return s.pool.QueryRow(ctx, `
		INSERT INTO product_catalog
			(asin, title, brand, description, bullet_points, product_type,
			 color, size, image_url, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (asin) DO UPDATE SET
			title         = EXCLUDED.title,
			brand         = EXCLUDED.brand,
			description   = EXCLUDED.description,
			bullet_points = EXCLUDED.bullet_points,
			product_type  = EXCLUDED.product_type,
			color         = EXCLUDED.color,
			size          = EXCLUDED.size,
			image_url     = EXCLUDED.image_url,
			fetched_at    = EXCLUDED.fetched_at
		RETURNING id
	`, p.ASIN, p.Title, p.Brand, p.Description, p.BulletPoints, p.ProductType,
		p.Color, p.Size, p.ImageURL, p.FetchedAt).Scan(&p.ID)
}
