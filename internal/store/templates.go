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
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sellerdesk/sellerdesk/internal/models"
)

const templateColumns = `
	id, category_key, category, subcategory, platform,
	answer_template, staff_notes, created_at`

// SearchTemplates returns templates for the given platform (plus the shared
// "common" pool) whose category matches any of the keywords,
// case-insensitively. With no keywords, an unfiltered sample of
// platform-eligible templates is returned instead of an empty set.
func (s *Store) SearchTemplates(ctx context.Context, platform string, keywords []string, limit int) ([]models.Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM qa_templates
		WHERE platform = ANY($1)`
	args := []any{[]string{platform, "common"}}

	if len(keywords) > 0 {
		var conds []string
		for _, kw := range keywords {
			args = append(args, "%"+kw+"%")
			conds = append(conds, fmt.Sprintf("category ILIKE $%d", len(args)))
		}
		query += " AND (" + strings.Join(conds, " OR ") + ")"
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTemplates(rows)
}

// ListTemplates returns all templates, optionally filtered by platform.
func (s *Store) ListTemplates(ctx context.Context, platform string) ([]models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM qa_templates`
	args := []any{}
	if platform != "" {
		query += ` WHERE platform = $1`
		args = append(args, platform)
	}
	query += ` ORDER BY category_key, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTemplates(rows)
}

// CreateTemplate inserts a new answer template.
func (s *Store) CreateTemplate(ctx context.Context, t *models.Template) error {
	if t.Platform == "" {
		t.Platform = "common"
	}
	if t.CategoryKey == "" {
		t.CategoryKey = "other"
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO qa_templates
			(category_key, category, subcategory, platform, answer_template, staff_notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, t.CategoryKey, t.Category, t.Subcategory, t.Platform, t.AnswerTemplate, t.StaffNotes).
		Scan(&t.ID, &t.CreatedAt)
}

// BulkCreateTemplates inserts templates in one batch and returns the
// number inserted. Defaults are applied per row as in CreateTemplate.
func (s *Store) BulkCreateTemplates(ctx context.Context, templates []models.Template) (int64, error) {
	batch := &pgx.Batch{}
	for _, t := range templates {
		if t.Platform == "" {
			t.Platform = "common"
		}
		if t.CategoryKey == "" {
			t.CategoryKey = "other"
		}
		batch.Queue(`
			INSERT INTO qa_templates
				(category_key, category, subcategory, platform, answer_template, staff_notes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, t.CategoryKey, t.Category, t.Subcategory, t.Platform, t.AnswerTemplate, t.StaffNotes)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range templates {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("bulk template insert: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// UpdateTemplate replaces an existing template's editable fields.
func (s *Store) UpdateTemplate(ctx context.Context, t *models.Template) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE qa_templates
		SET category_key = $1, category = $2, subcategory = $3,
		    platform = $4, answer_template = $5, staff_notes = $6
		WHERE id = $7
	`, t.CategoryKey, t.Category, t.Subcategory, t.Platform, t.AnswerTemplate, t.StaffNotes, t.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM qa_templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectTemplates(rows pgx.Rows) ([]models.Template, error) {
	var templates []models.Template
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(
			&t.ID, &t.CategoryKey, &t.Category, &t.Subcategory, &t.Platform,
			&t.AnswerTemplate, &t.StaffNotes, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}
