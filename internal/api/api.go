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

// Package api exposes the support desk over HTTP: message triage,
// thread views, draft lifecycle operations, templates, and usage
// accounting. Every route except auth and health sits behind the
// session cookie.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sellerdesk/sellerdesk/internal/config"
	"github.com/sellerdesk/sellerdesk/internal/ingest"
	"github.com/sellerdesk/sellerdesk/internal/models"
	"github.com/sellerdesk/sellerdesk/internal/respond"
	"github.com/sellerdesk/sellerdesk/internal/store"
	"github.com/sellerdesk/sellerdesk/internal/threads"
)

// Store is the persistence surface the handlers read and write.
type Store interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)

	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	MarkThreadHandled(ctx context.Context, id int64) (int64, error)
	BulkMarkHandled(ctx context.Context, ids []int64) (int64, error)
	SetMessageStatus(ctx context.Context, id int64, status string) error
	SetMessageCategory(ctx context.Context, id int64, category string) error

	ListResponses(ctx context.Context, messageID int64) ([]models.AiResponse, error)
	MonthlyUsage(ctx context.Context, year, month int) ([]store.UsageRow, error)

	ListTemplates(ctx context.Context, platform string) ([]models.Template, error)
	CreateTemplate(ctx context.Context, t *models.Template) error
	BulkCreateTemplates(ctx context.Context, templates []models.Template) (int64, error)
	UpdateTemplate(ctx context.Context, t *models.Template) error
	DeleteTemplate(ctx context.Context, id int64) error
}

// Lifecycle is the draft/send/discard surface the handlers drive.
type Lifecycle interface {
	Generate(ctx context.Context, messageID int64) (*models.AiResponse, error)
	Classify(ctx context.Context, messageID int64) (string, error)
	Discard(ctx context.Context, responseID int64) (string, error)
	Send(ctx context.Context, responseID int64, finalBody, correctedCategory string) (*respond.SendResult, error)
	SendDirect(ctx context.Context, messageID int64, finalBody, correctedCategory string) (*respond.SendResult, error)
}

// Fetcher triggers an on-demand ingestion cycle.
type Fetcher interface {
	RunAll(ctx context.Context) *ingest.Report
}

// Threads reconstructs conversations for display.
type Threads interface {
	Build(ctx context.Context, messageID int64) (*threads.Thread, error)
	List(ctx context.Context, f store.MessageFilter, skip, limit int) ([]models.Message, error)
}

// Server wires the handlers to their collaborators.
type Server struct {
	store   Store
	threads Threads
	engine  Lifecycle
	fetcher Fetcher
	auth    *authenticator
	log     *slog.Logger
}

func NewServer(st Store, th Threads, engine Lifecycle, fetcher Fetcher, cfg *config.Config, log *slog.Logger) *Server {
	return &Server{
		store:   st,
		threads: th,
		engine:  engine,
		fetcher: fetcher,
		auth:    newAuthenticator(cfg.DashboardPassword, cfg.SessionSecret),
		log:     log,
	}
}

// Routes builds the full route table.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	mux.HandleFunc("GET /api/accounts", s.requireAuth(s.handleListAccounts))

	mux.HandleFunc("GET /api/messages", s.requireAuth(s.handleListMessages))
	mux.HandleFunc("POST /api/messages/fetch", s.requireAuth(s.handleFetch))
	mux.HandleFunc("PUT /api/messages/bulk-handled", s.requireAuth(s.handleBulkHandled))
	mux.HandleFunc("GET /api/messages/{id}", s.requireAuth(s.handleGetMessage))
	mux.HandleFunc("GET /api/messages/{id}/thread", s.requireAuth(s.handleGetThread))
	mux.HandleFunc("PUT /api/messages/{id}/handled", s.requireAuth(s.handleMarkHandled))
	mux.HandleFunc("PUT /api/messages/{id}/reopen", s.requireAuth(s.handleReopen))
	mux.HandleFunc("PUT /api/messages/{id}/category", s.requireAuth(s.handleSetCategory))
	mux.HandleFunc("POST /api/messages/{id}/classify", s.requireAuth(s.handleClassify))

	mux.HandleFunc("POST /api/ai/generate", s.requireAuth(s.handleGenerate))
	mux.HandleFunc("GET /api/ai/responses/{messageID}", s.requireAuth(s.handleListResponses))
	mux.HandleFunc("DELETE /api/ai/{id}/discard", s.requireAuth(s.handleDiscard))
	mux.HandleFunc("PUT /api/ai/{id}/send", s.requireAuth(s.handleSend))
	mux.HandleFunc("POST /api/ai/send-direct", s.requireAuth(s.handleSendDirect))
	mux.HandleFunc("GET /api/ai/usage", s.requireAuth(s.handleUsage))

	mux.HandleFunc("GET /api/templates", s.requireAuth(s.handleListTemplates))
	mux.HandleFunc("POST /api/templates", s.requireAuth(s.handleCreateTemplate))
	mux.HandleFunc("POST /api/templates/bulk", s.requireAuth(s.handleBulkCreateTemplates))
	mux.HandleFunc("PUT /api/templates/{id}", s.requireAuth(s.handleUpdateTemplate))
	mux.HandleFunc("DELETE /api/templates/{id}", s.requireAuth(s.handleDeleteTemplate))

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	report := s.fetcher.RunAll(r.Context())
	writeJSON(w, http.StatusOK, report)
}

// fail maps store errors to HTTP responses and logs the rest.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrAlreadySent):
		writeError(w, http.StatusBadRequest, "すでに送信済みの回答があります")
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}
