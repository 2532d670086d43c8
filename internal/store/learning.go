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
)

// PastResponse is a prior resolved (sent) staff answer used as generation
// evidence. The question is truncated to keep prompts bounded.
type PastResponse struct {
	CustomerQuestion string `json:"customer_question"`
	QuestionCategory string `json:"question_category,omitempty"`
	StaffAnswer      string `json:"staff_answer"`
	ProductTitle     string `json:"product_title,omitempty"`
}

// CategoryCorrection is one case where staff overrode the AI-suggested
// category, used as few-shot evidence for future classification.
type CategoryCorrection struct {
	MessageSummary  string `json:"message_summary"`
	AICategory      string `json:"ai_category"`
	CorrectCategory string `json:"correct_category"`
}

// PastResponsesByProduct returns the most recent sent staff answers for
// messages about the same ASIN.
func (s *Store) PastResponsesByProduct(ctx context.Context, asin string, limit int) ([]PastResponse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT LEFT(m.body, 200), m.question_category, r.final_body, m.product_title
		FROM ai_responses r JOIN messages m ON m.id = r.message_id
		WHERE m.asin = $1 AND r.is_sent AND r.final_body IS NOT NULL
		ORDER BY r.sent_at DESC
		LIMIT $2
	`, asin, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPastResponses(rows)
}

// PastResponsesByCategory returns the most recent sent staff answers for the
// same staff category, excluding the given ASIN (already covered by the
// product search).
func (s *Store) PastResponsesByCategory(ctx context.Context, category, excludeASIN string, limit int) ([]PastResponse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT LEFT(m.body, 200), m.question_category, r.final_body, m.product_title
		FROM ai_responses r JOIN messages m ON m.id = r.message_id
		WHERE m.question_category = $1 AND r.is_sent AND r.final_body IS NOT NULL
		  AND ($2 = '' OR m.asin <> $2)
		ORDER BY r.sent_at DESC
		LIMIT $3
	`, category, excludeASIN, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPastResponses(rows)
}

// CategoryCorrections returns recent cases where the staff category differs
// from the AI-suggested one on a sent response.
func (s *Store) CategoryCorrections(ctx context.Context, limit int) ([]CategoryCorrection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT LEFT(m.body, 100), r.ai_suggested_category, m.question_category
		FROM ai_responses r JOIN messages m ON m.id = r.message_id
		WHERE r.is_sent
		  AND r.ai_suggested_category <> ''
		  AND m.question_category <> ''
		  AND r.ai_suggested_category <> m.question_category
		ORDER BY r.sent_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var corrections []CategoryCorrection
	for rows.Next() {
		var c CategoryCorrection
		if err := rows.Scan(&c.MessageSummary, &c.AICategory, &c.CorrectCategory); err != nil {
			return nil, err
		}
		corrections = append(corrections, c)
	}
	return corrections, rows.Err()
}

// UsageRow aggregates AI token usage for one account in one month.
type UsageRow struct {
	AccountName  string `json:"account_name"`
	Count        int64  `json:"count"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// MonthlyUsage returns per-account token usage for responses created in the
// given calendar month. Rows without token counters are excluded.
func (s *Store) MonthlyUsage(ctx context.Context, year, month int) ([]UsageRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.name,
		       COUNT(r.id),
		       COALESCE(SUM(r.input_tokens), 0),
		       COALESCE(SUM(r.output_tokens), 0)
		FROM ai_responses r
		JOIN messages m ON m.id = r.message_id
		JOIN accounts a ON a.id = m.account_id
		WHERE EXTRACT(YEAR FROM r.created_at) = $1
		  AND EXTRACT(MONTH FROM r.created_at) = $2
		  AND r.input_tokens IS NOT NULL
		GROUP BY a.name
		ORDER BY a.name
	`, year, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usage []UsageRow
	for rows.Next() {
		var u UsageRow
		if err := rows.Scan(&u.AccountName, &u.Count, &u.InputTokens, &u.OutputTokens); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

func collectPastResponses(rows pgx.Rows) ([]PastResponse, error) {
	var past []PastResponse
	for rows.Next() {
		var p PastResponse
		if err := rows.Scan(&p.CustomerQuestion, &p.QuestionCategory, &p.StaffAnswer, &p.ProductTitle); err != nil {
			return nil, err
		}
		past = append(past, p)
	}
	return past, rows.Err()
}
