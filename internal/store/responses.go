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

const responseColumns = `
	id, message_id, draft_body, final_body, ai_suggested_category,
	is_sent, input_tokens, output_tokens, model_used, created_at, sent_at`

// InsertDraft persists a new unsent draft and moves the owning message to
// ai_drafted, atomically.
func (s *Store) InsertDraft(ctx context.Context, r *models.AiResponse) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO ai_responses
			(message_id, draft_body, ai_suggested_category, input_tokens, output_tokens, model_used)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, r.MessageID, r.DraftBody, r.AISuggestedCategory, r.InputTokens, r.OutputTokens, r.ModelUsed).
		Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE messages SET status = 'ai_drafted' WHERE id = $1
	`, r.MessageID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetResponse retrieves a single AI response.
func (s *Store) GetResponse(ctx context.Context, id int64) (*models.AiResponse, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+responseColumns+` FROM ai_responses WHERE id = $1
	`, id)
	r, err := scanResponse(row)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

// ListResponses returns the AI response history for a message, oldest first.
func (s *Store) ListResponses(ctx context.Context, messageID int64) ([]models.AiResponse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+responseColumns+` FROM ai_responses
		WHERE message_id = $1 ORDER BY id ASC
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []models.AiResponse
	for rows.Next() {
		var r models.AiResponse
		if err := rows.Scan(
			&r.ID, &r.MessageID, &r.DraftBody, &r.FinalBody, &r.AISuggestedCategory,
			&r.IsSent, &r.InputTokens, &r.OutputTokens, &r.ModelUsed, &r.CreatedAt, &r.SentAt,
		); err != nil {
			return nil, err
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// DiscardDraft deletes an unsent draft and recomputes the owning message's
// status from the remaining responses: sent if any remaining is sent, else
// ai_drafted if any remaining is unsent, else new. Discarding a sent
// response fails with ErrAlreadySent before any mutation.
func (s *Store) DiscardDraft(ctx context.Context, responseID int64) (messageStatus string, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var messageID int64
	var isSent bool
	err = tx.QueryRow(ctx, `
		SELECT message_id, is_sent FROM ai_responses WHERE id = $1
	`, responseID).Scan(&messageID, &isSent)
	if err == pgx.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if isSent {
		return "", ErrAlreadySent
	}

	if _, err := tx.Exec(ctx, `DELETE FROM ai_responses WHERE id = $1`, responseID); err != nil {
		return "", err
	}

	var hasSent, hasDraft bool
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(bool_or(is_sent), FALSE), COALESCE(bool_or(NOT is_sent), FALSE)
		FROM ai_responses WHERE message_id = $1
	`, messageID).Scan(&hasSent, &hasDraft)
	if err != nil {
		return "", err
	}

	switch {
	case hasSent:
		messageStatus = models.StatusSent
	case hasDraft:
		messageStatus = models.StatusAIDrafted
	default:
		messageStatus = models.StatusNew
	}

	if _, err := tx.Exec(ctx, `
		UPDATE messages SET status = $1 WHERE id = $2
	`, messageStatus, messageID); err != nil {
		return "", err
	}

	return messageStatus, tx.Commit(ctx)
}

// FinalizeSend marks a draft as sent with the staff-approved final body,
// moves the message to sent, deletes every other unsent draft for the same
// message, and records a staff category correction if one was made. All of
// it commits as one unit; channel delivery happens outside, afterwards.
// At most one response per message may ever be sent: sending twice, or
// sending when a sibling response is already sent, fails with
// ErrAlreadySent before any mutation.
func (s *Store) FinalizeSend(ctx context.Context, responseID int64, finalBody, correctedCategory string) (*models.AiResponse, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var messageID int64
	var isSent bool
	err = tx.QueryRow(ctx, `
		SELECT message_id, is_sent FROM ai_responses WHERE id = $1
	`, responseID).Scan(&messageID, &isSent)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if isSent {
		return nil, ErrAlreadySent
	}

	var siblingSent bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ai_responses
			WHERE message_id = $1 AND is_sent AND id <> $2
		)
	`, messageID, responseID).Scan(&siblingSent)
	if err != nil {
		return nil, err
	}
	if siblingSent {
		return nil, ErrAlreadySent
	}

	now := time.Now().UTC()
	row := tx.QueryRow(ctx, `
		UPDATE ai_responses
		SET final_body = $1, is_sent = TRUE, sent_at = $2
		WHERE id = $3
		RETURNING `+responseColumns+`
	`, finalBody, now, responseID)
	resp, err := scanResponse(row)
	if err != nil {
		return nil, err
	}

	// At most one response per message may ever be sent.
	if _, err := tx.Exec(ctx, `
		DELETE FROM ai_responses
		WHERE message_id = $1 AND id <> $2 AND is_sent = FALSE
	`, messageID, responseID); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE messages SET status = 'sent' WHERE id = $1
	`, messageID); err != nil {
		return nil, err
	}

	if correctedCategory != "" {
		if _, err := tx.Exec(ctx, `
			UPDATE messages SET question_category = $1 WHERE id = $2
		`, correctedCategory, messageID); err != nil {
			return nil, err
		}
	}

	return resp, tx.Commit(ctx)
}

// CreateDirectSend records a response with identical draft and final text,
// already sent, after deleting any existing unsent drafts for the message.
// Used when staff send a template answer without an AI draft. Fails with
// ErrAlreadySent when the message already has a sent response.
func (s *Store) CreateDirectSend(ctx context.Context, messageID int64, finalBody, correctedCategory string) (*models.AiResponse, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var category string
	err = tx.QueryRow(ctx, `
		SELECT question_category FROM messages WHERE id = $1
	`, messageID).Scan(&category)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var alreadySent bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM ai_responses WHERE message_id = $1 AND is_sent)
	`, messageID).Scan(&alreadySent)
	if err != nil {
		return nil, err
	}
	if alreadySent {
		return nil, ErrAlreadySent
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM ai_responses WHERE message_id = $1 AND is_sent = FALSE
	`, messageID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := tx.QueryRow(ctx, `
		INSERT INTO ai_responses
			(message_id, draft_body, final_body, ai_suggested_category, is_sent, sent_at)
		VALUES ($1, $2, $2, $3, TRUE, $4)
		RETURNING `+responseColumns+`
	`, messageID, finalBody, category, now)
	resp, err := scanResponse(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE messages SET status = 'sent' WHERE id = $1
	`, messageID); err != nil {
		return nil, err
	}

	if correctedCategory != "" && correctedCategory != category {
		if _, err := tx.Exec(ctx, `
			UPDATE messages SET question_category = $1 WHERE id = $2
		`, correctedCategory, messageID); err != nil {
			return nil, err
		}
	}

	return resp, tx.Commit(ctx)
}

func scanResponse(row pgx.Row) (*models.AiResponse, error) {
	var r models.AiResponse
	err := row.Scan(
		&r.ID, &r.MessageID, &r.DraftBody, &r.FinalBody, &r.AISuggestedCategory,
		&r.IsSent, &r.InputTokens, &r.OutputTokens, &r.ModelUsed, &r.CreatedAt, &r.SentAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
