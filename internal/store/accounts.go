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

	"github.com/jackc/pgx/v5"

	"github.com/sellerdesk/sellerdesk/internal/models"
)

// GetOrCreateAccount returns the account with the given name, creating it
// lazily on first successful ingestion for a known account name.
func (s *Store) GetOrCreateAccount(ctx context.Context, name, channel string) (*models.Account, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (name, channel)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, channel, is_active, created_at
	`, name, channel)
	return scanAccount(row)
}

// GetAccount retrieves an account by ID.
func (s *Store) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, channel, is_active, created_at
		FROM accounts WHERE id = $1
	`, id)
	acc, err := scanAccount(row)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrNotFound
	}
	return acc, nil
}

// ListAccounts returns all accounts ordered by name.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, channel, is_active, created_at
		FROM accounts ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Channel, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Name, &a.Channel, &a.IsActive, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
