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
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/sellerdesk/sellerdesk/internal/models"
	"github.com/sellerdesk/sellerdesk/internal/store"
)

// Claude Sonnet pricing, USD per token.
const (
	inputPricePerToken  = 3.00 / 1_000_000
	outputPricePerToken = 15.00 / 1_000_000
)

type sendRequest struct {
	MessageID         int64  `json:"message_id"`
	FinalBody         string `json:"final_body"`
	CorrectedCategory string `json:"corrected_category"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MessageID == 0 {
		writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}
	draft, err := s.engine.Generate(r.Context(), body.MessageID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, draft)
}

func (s *Server) handleListResponses(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "messageID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}
	responses, err := s.store.ListResponses(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if responses == nil {
		responses = []models.AiResponse{}
	}
	writeJSON(w, http.StatusOK, responses)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid response id")
		return
	}
	status, err := s.engine.Discard(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrAlreadySent) {
			writeError(w, http.StatusBadRequest, "送信済みの回答は破棄できません")
			return
		}
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"detail":         "下書きを破棄しました",
		"message_status": status,
	})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid response id")
		return
	}
	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.FinalBody == "" {
		writeError(w, http.StatusBadRequest, "final_body is required")
		return
	}
	result, err := s.engine.Send(r.Context(), id, body.FinalBody, body.CorrectedCategory)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSendDirect(w http.ResponseWriter, r *http.Request) {
	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.FinalBody == "" {
		writeError(w, http.StatusBadRequest, "final_body is required")
		return
	}
	if body.MessageID == 0 {
		writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}
	result, err := s.engine.SendDirect(r.Context(), body.MessageID, body.FinalBody, body.CorrectedCategory)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type usageAccount struct {
	AccountName  string  `json:"account_name"`
	Count        int64   `json:"count"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

type usageTotal struct {
	Count        int64   `json:"count"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// handleUsage aggregates monthly generation counts, token totals, and
// estimated cost per account.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	year, errY := strconv.Atoi(r.URL.Query().Get("year"))
	month, errM := strconv.Atoi(r.URL.Query().Get("month"))
	if errY != nil || errM != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "year and month are required")
		return
	}

	rows, err := s.store.MonthlyUsage(r.Context(), year, month)
	if err != nil {
		s.fail(w, err)
		return
	}

	accounts := make([]usageAccount, 0, len(rows))
	var total usageTotal
	for _, row := range rows {
		cost := float64(row.InputTokens)*inputPricePerToken + float64(row.OutputTokens)*outputPricePerToken
		accounts = append(accounts, usageAccount{
			AccountName:  row.AccountName,
			Count:        row.Count,
			InputTokens:  row.InputTokens,
			OutputTokens: row.OutputTokens,
			CostUSD:      round4(cost),
		})
		total.Count += row.Count
		total.InputTokens += row.InputTokens
		total.OutputTokens += row.OutputTokens
		total.CostUSD += cost
	}
	total.CostUSD = round4(total.CostUSD)

	writeJSON(w, http.StatusOK, map[string]any{
		"year":     year,
		"month":    month,
		"accounts": accounts,
		"total":    total,
	})
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
