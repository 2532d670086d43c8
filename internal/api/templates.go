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

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sellerdesk/sellerdesk/internal/models"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.ListTemplates(r.Context(), r.URL.Query().Get("platform"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if templates == nil {
		templates = []models.Template{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t models.Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if t.Category == "" || t.AnswerTemplate == "" {
		writeError(w, http.StatusBadRequest, "category and answer_template are required")
		return
	}
	if err := s.store.CreateTemplate(r.Context(), &t); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// handleBulkCreateTemplates imports a JSON array of templates in one
// request, for seeding a fresh deployment from an existing answer book.
func (s *Server) handleBulkCreateTemplates(w http.ResponseWriter, r *http.Request) {
	var templates []models.Template
	if err := json.NewDecoder(r.Body).Decode(&templates); err != nil || len(templates) == 0 {
		writeError(w, http.StatusBadRequest, "a non-empty template array is required")
		return
	}
	for _, t := range templates {
		if t.Category == "" || t.AnswerTemplate == "" {
			writeError(w, http.StatusBadRequest, "category and answer_template are required")
			return
		}
	}
	inserted, err := s.store.BulkCreateTemplates(r.Context(), templates)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"detail":   fmt.Sprintf("%d件のテンプレートを登録しました", inserted),
		"inserted": inserted,
	})
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return
	}
	var t models.Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t.ID = id
	if err := s.store.UpdateTemplate(r.Context(), &t); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid template id")
		return
	}
	if err := s.store.DeleteTemplate(r.Context(), id); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"detail": "テンプレートを削除しました"})
}
