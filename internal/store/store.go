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

// Package store provides the Postgres-backed persistence layer for
// accounts, messages, AI responses, product facts, and answer templates.
// The store is the single source of truth; the deduplication index is a
// set of queries over it, not a separate structure.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors surfaced to callers as precondition failures.
var (
	ErrNotFound    = errors.New("record not found")
	ErrAlreadySent = errors.New("response already sent")
)

// Store provides CRUD operations over the support desk schema.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given Postgres pool.
// It ensures the schema exists on creation.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id         BIGSERIAL PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			channel    TEXT NOT NULL DEFAULT 'amazon',
			is_active  BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS messages (
			id                  BIGSERIAL PRIMARY KEY,
			account_id          BIGINT NOT NULL REFERENCES accounts(id),
			external_order_id   TEXT DEFAULT '',
			external_message_id TEXT UNIQUE,
			sender              TEXT NOT NULL,
			subject             TEXT DEFAULT '',
			body                TEXT NOT NULL,
			direction           TEXT NOT NULL,
			status              TEXT NOT NULL DEFAULT 'new',
			asin                TEXT DEFAULT '',
			sku                 TEXT DEFAULT '',
			product_title       TEXT DEFAULT '',
			reply_to_address    TEXT DEFAULT '',
			question_category   TEXT DEFAULT '',
			received_at         TIMESTAMPTZ NOT NULL,
			created_at          TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_messages_account ON messages(account_id);
		CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(account_id, sender);
		CREATE INDEX IF NOT EXISTS idx_messages_asin ON messages(asin);
		CREATE INDEX IF NOT EXISTS idx_messages_category ON messages(question_category);

		CREATE TABLE IF NOT EXISTS ai_responses (
			id                    BIGSERIAL PRIMARY KEY,
			message_id            BIGINT NOT NULL REFERENCES messages(id),
			draft_body            TEXT NOT NULL,
			final_body            TEXT,
			ai_suggested_category TEXT DEFAULT '',
			is_sent               BOOLEAN NOT NULL DEFAULT FALSE,
			input_tokens          INTEGER,
			output_tokens         INTEGER,
			model_used            TEXT DEFAULT '',
			created_at            TIMESTAMPTZ DEFAULT NOW(),
			sent_at               TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_responses_message ON ai_responses(message_id);

		CREATE TABLE IF NOT EXISTS product_catalog (
			id            BIGSERIAL PRIMARY KEY,
			asin          TEXT NOT NULL UNIQUE,
			title         TEXT DEFAULT '',
			brand         TEXT DEFAULT '',
			description   TEXT DEFAULT '',
			bullet_points TEXT DEFAULT '',
			product_type  TEXT DEFAULT '',
			color         TEXT DEFAULT '',
			size          TEXT DEFAULT '',
			image_url     TEXT DEFAULT '',
			fetched_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS qa_templates (
			id              BIGSERIAL PRIMARY KEY,
			category_key    TEXT NOT NULL DEFAULT 'other',
			category        TEXT NOT NULL,
			subcategory     TEXT DEFAULT '',
			platform        TEXT NOT NULL DEFAULT 'common',
			answer_template TEXT NOT NULL,
			staff_notes     TEXT DEFAULT '',
			created_at      TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_templates_platform ON qa_templates(platform);
		CREATE INDEX IF NOT EXISTS idx_templates_category ON qa_templates(category);
	`)
	return err
}
