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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sellerdesk/sellerdesk/internal/models"
)

const messageColumns = `
	m.id, m.account_id, a.name, m.external_order_id, m.external_message_id,
	m.sender, m.subject, m.body, m.direction, m.status,
	m.asin, m.sku, m.product_title, m.reply_to_address, m.question_category,
	m.received_at, m.created_at`

// InsertMessage persists a new message. The insert itself is the final
// dedup re-check: a conflicting external_message_id makes it a no-op and
// inserted is false.
func (s *Store) InsertMessage(ctx context.Context, m *models.Message) (inserted bool, err error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages
			(account_id, external_order_id, external_message_id, sender, subject,
			 body, direction, status, asin, sku, product_title, reply_to_address,
			 question_category, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (external_message_id) DO NOTHING
		RETURNING id
	`, m.AccountID, m.ExternalOrderID, m.ExternalMessageID, m.Sender, m.Subject,
		m.Body, m.Direction, m.Status, m.ASIN, m.SKU, m.ProductTitle,
		m.ReplyToAddress, m.QuestionCategory, m.ReceivedAt)

	err = row.Scan(&m.ID)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	return true, nil
}

// ExistingMessageIDs returns the set of non-null external message IDs
// already ingested for an account. Used as the bulk dedup pre-check
// before full message downloads.
func (s *Store) ExistingMessageIDs(ctx context.Context, accountID int64) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT external_message_id FROM messages
		WHERE account_id = $1 AND external_message_id IS NOT NULL
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// HasFallbackDuplicate reports whether a message without a stable external
// ID already exists for the same account, received time, and subject.
func (s *Store) HasFallbackDuplicate(ctx context.Context, accountID int64, receivedAt time.Time, subject string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE account_id = $1
			  AND external_message_id IS NULL
			  AND received_at = $2
			  AND subject = $3
		)
	`, accountID, receivedAt, subject).Scan(&exists)
	return exists, err
}

// GetMessage retrieves a single message with its account name.
func (s *Store) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages m JOIN accounts a ON a.id = m.account_id
		WHERE m.id = $1
	`, id)
	m, err := scanMessage(row)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// MessageFilter narrows ListInbound results.
type MessageFilter struct {
	AccountID int64
	Channel   string
	Status    string
	Search    string
}

// ListInbound returns all inbound messages matching the filter, newest
// first. Thread grouping happens on read, in the threads package.
func (s *Store) ListInbound(ctx context.Context, f MessageFilter) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m JOIN accounts a ON a.id = m.account_id
		WHERE m.direction = 'inbound'`
	args := []any{}
	n := 0

	if f.AccountID != 0 {
		n++
		query += fmt.Sprintf(" AND m.account_id = $%d", n)
		args = append(args, f.AccountID)
	}
	if f.Channel != "" {
		n++
		query += fmt.Sprintf(" AND a.channel = $%d", n)
		args = append(args, f.Channel)
	}
	if f.Status != "" {
		n++
		query += fmt.Sprintf(" AND m.status = $%d", n)
		args = append(args, f.Status)
	}
	if f.Search != "" {
		n++
		query += fmt.Sprintf(" AND (m.body ILIKE $%d OR m.subject ILIKE $%d OR m.sender ILIKE $%d)", n, n, n)
		args = append(args, "%"+f.Search+"%")
	}
	query += " ORDER BY m.received_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ThreadMessages returns all inbound messages for one (account, sender)
// pair, ordered by received time ascending.
func (s *Store) ThreadMessages(ctx context.Context, accountID int64, sender string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m JOIN accounts a ON a.id = m.account_id
		WHERE m.account_id = $1 AND m.sender = $2 AND m.direction = 'inbound'
		ORDER BY m.received_at ASC
	`, accountID, sender)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// SetMessageStatus updates the lifecycle status of a single message.
func (s *Store) SetMessageStatus(ctx context.Context, id int64, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE messages SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkThreadHandled marks the target message handled and cascades to every
// other "new" inbound message in the same (account, sender) group, as a
// single unit relative to concurrent readers. Returns the number of
// messages updated.
func (s *Store) MarkThreadHandled(ctx context.Context, id int64) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var accountID int64
	var sender string
	err = tx.QueryRow(ctx, `
		SELECT account_id, sender FROM messages WHERE id = $1
	`, id).Scan(&accountID, &sender)
	if err == pgx.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE messages SET status = 'handled'
		WHERE account_id = $1 AND sender = $2 AND direction = 'inbound' AND status = 'new'
	`, accountID, sender)
	if err != nil {
		return 0, err
	}

	// The target itself may not have been "new"; mark it regardless.
	if _, err := tx.Exec(ctx, `
		UPDATE messages SET status = 'handled' WHERE id = $1 AND status <> 'handled'
	`, id); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// BulkMarkHandled marks every listed message that is still "new" as handled.
func (s *Store) BulkMarkHandled(ctx context.Context, ids []int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET status = 'handled'
		WHERE id = ANY($1) AND status = 'new'
	`, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetMessageCategory records the staff-assigned question category.
func (s *Store) SetMessageCategory(ctx context.Context, id int64, category string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET question_category = $1 WHERE id = $2
	`, category, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProductTitle backfills a missing product title from catalog facts.
func (s *Store) SetProductTitle(ctx context.Context, id int64, title string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET product_title = $1 WHERE id = $2 AND product_title = ''
	`, title, id)
	return err
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(
		&m.ID, &m.AccountID, &m.AccountName, &m.ExternalOrderID, &m.ExternalMessageID,
		&m.Sender, &m.Subject, &m.Body, &m.Direction, &m.Status,
		&m.ASIN, &m.SKU, &m.ProductTitle, &m.ReplyToAddress, &m.QuestionCategory,
		&m.ReceivedAt, &m.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(
			&m.ID, &m.AccountID, &m.AccountName, &m.ExternalOrderID, &m.ExternalMessageID,
			&m.Sender, &m.Subject, &m.Body, &m.Direction, &m.Status,
			&m.ASIN, &m.SKU, &m.ProductTitle, &m.ReplyToAddress, &m.QuestionCategory,
			&m.ReceivedAt, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
