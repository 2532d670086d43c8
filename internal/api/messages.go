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
	"strconv"

	"github.com/sellerdesk/sellerdesk/internal/models"
	"github.com/sellerdesk/sellerdesk/internal/store"
)

// handleListMessages returns one representative inbound message per
// thread, filtered and paginated.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.MessageFilter{
		Channel: q.Get("channel"),
		Status:  q.Get("status"),
		Search:  q.Get("search"),
	}
	if v := q.Get("account_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid account_id")
			return
		}
		filter.AccountID = id
	}

	skip := intQuery(q.Get("skip"), 0)
	limit := intQuery(q.Get("limit"), 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	messages, err := s.threads.List(r.Context(), filter, skip, limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	msg, err := s.store.GetMessage(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	thread, err := s.threads.Build(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// handleMarkHandled marks a message handled, cascading over every new
// message in its thread so the thread does not resurface on reload.
func (s *Server) handleMarkHandled(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	updated, err := s.store.MarkThreadHandled(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"detail": fmt.Sprintf("対応済みにしました（%d件）", updated),
		"id":     id,
		"status": models.StatusHandled,
	})
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	if err := s.store.SetMessageStatus(r.Context(), id, models.StatusNew); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"detail": "新着に戻しました",
		"id":     id,
		"status": models.StatusNew,
	})
}

func (s *Server) handleBulkHandled(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := s.store.BulkMarkHandled(r.Context(), ids)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"detail":  fmt.Sprintf("%d件を対応済みにしました", updated),
		"updated": updated,
	})
}

func (s *Server) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	var body struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	if err := s.store.SetMessageCategory(r.Context(), id, body.Category); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "question_category": body.Category})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	category, err := s.engine.Classify(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "question_category": category})
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
