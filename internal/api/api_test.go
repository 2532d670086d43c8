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
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sellerdesk/sellerdesk/internal/config"
	"github.com/sellerdesk/sellerdesk/internal/ingest"
	"github.com/sellerdesk/sellerdesk/internal/models"
	"github.com/sellerdesk/sellerdesk/internal/respond"
	"github.com/sellerdesk/sellerdesk/internal/store"
	"github.com/sellerdesk/sellerdesk/internal/threads"
)

type fakeStore struct {
	message      *models.Message
	handledCount int64
	markedID     int64
	bulkIDs      []int64
	statusSet    string
	categorySet  string
	usageRows    []store.UsageRow
	templates    []models.Template
	deletedTmpl  int64
	responseRows []models.AiResponse
}

func (f *fakeStore) ListAccounts(context.Context) ([]models.Account, error) {
	return []models.Account{{ID: 1, Name: "MORABLU", Channel: "amazon"}}, nil
}

func (f *fakeStore) GetMessage(_ context.Context, id int64) (*models.Message, error) {
	if f.message == nil || f.message.ID != id {
		return nil, store.ErrNotFound
	}
	return f.message, nil
}

func (f *fakeStore) MarkThreadHandled(_ context.Context, id int64) (int64, error) {
	f.markedID = id
	return f.handledCount, nil
}

func (f *fakeStore) BulkMarkHandled(_ context.Context, ids []int64) (int64, error) {
	f.bulkIDs = ids
	return int64(len(ids)), nil
}

func (f *fakeStore) SetMessageStatus(_ context.Context, _ int64, status string) error {
	f.statusSet = status
	return nil
}

func (f *fakeStore) SetMessageCategory(_ context.Context, _ int64, category string) error {
	f.categorySet = category
	return nil
}

func (f *fakeStore) ListResponses(_ context.Context, _ int64) ([]models.AiResponse, error) {
	return f.responseRows, nil
}

func (f *fakeStore) MonthlyUsage(_ context.Context, _, _ int) ([]store.UsageRow, error) {
	return f.usageRows, nil
}

func (f *fakeStore) ListTemplates(_ context.Context, _ string) ([]models.Template, error) {
	return f.templates, nil
}

func (f *fakeStore) CreateTemplate(_ context.Context, t *models.Template) error {
	t.ID = 11
	f.templates = append(f.templates, *t)
	return nil
}

func (f *fakeStore) BulkCreateTemplates(_ context.Context, templates []models.Template) (int64, error) {
	f.templates = append(f.templates, templates...)
	return int64(len(templates)), nil
}

func (f *fakeStore) UpdateTemplate(_ context.Context, t *models.Template) error {
	for i := range f.templates {
		if f.templates[i].ID == t.ID {
			f.templates[i] = *t
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) DeleteTemplate(_ context.Context, id int64) error {
	f.deletedTmpl = id
	return nil
}

type fakeLifecycle struct {
	draft      *models.AiResponse
	genererr   error
	discardErr error
	sendResult *respond.SendResult
	category   string
	sentBody   string
}

func (f *fakeLifecycle) Generate(_ context.Context, _ int64) (*models.AiResponse, error) {
	return f.draft, f.genererr
}

func (f *fakeLifecycle) Classify(_ context.Context, _ int64) (string, error) {
	return f.category, nil
}

func (f *fakeLifecycle) Discard(_ context.Context, _ int64) (string, error) {
	if f.discardErr != nil {
		return "", f.discardErr
	}
	return models.StatusNew, nil
}

func (f *fakeLifecycle) Send(_ context.Context, _ int64, finalBody, _ string) (*respond.SendResult, error) {
	f.sentBody = finalBody
	return f.sendResult, nil
}

func (f *fakeLifecycle) SendDirect(_ context.Context, _ int64, finalBody, _ string) (*respond.SendResult, error) {
	f.sentBody = finalBody
	return f.sendResult, nil
}

type fakeFetcher struct{ report *ingest.Report }

func (f *fakeFetcher) RunAll(context.Context) *ingest.Report { return f.report }

type fakeThreads struct {
	thread *threads.Thread
	listed []models.Message
	filter store.MessageFilter
	skip   int
	limit  int
}

func (f *fakeThreads) Build(_ context.Context, _ int64) (*threads.Thread, error) {
	if f.thread == nil {
		return nil, store.ErrNotFound
	}
	return f.thread, nil
}

func (f *fakeThreads) List(_ context.Context, filter store.MessageFilter, skip, limit int) ([]models.Message, error) {
	f.filter = filter
	f.skip = skip
	f.limit = limit
	return f.listed, nil
}

const testPassword = "hunter2"

func testServer(st *fakeStore, th *fakeThreads, lc *fakeLifecycle, fetcher *fakeFetcher) *Server {
	if st == nil {
		st = &fakeStore{}
	}
	if th == nil {
		th = &fakeThreads{}
	}
	if lc == nil {
		lc = &fakeLifecycle{}
	}
	if fetcher == nil {
		fetcher = &fakeFetcher{report: &ingest.Report{}}
	}
	cfg := &config.Config{DashboardPassword: testPassword, SessionSecret: "test-secret"}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(st, th, lc, fetcher, cfg, log)
}

// login returns a valid session cookie for authenticated requests.
func login(t *testing.T, handler http.Handler) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/auth/login", strings.NewReader(`{"password":"`+testPassword+`"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func doJSON(t *testing.T, handler http.Handler, cookie *http.Cookie, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			decoded = nil
		}
	}
	return rec, decoded
}

func TestAuthRequired(t *testing.T) {
	handler := testServer(nil, nil, nil, nil).Routes()

	paths := []struct{ method, path string }{
		{"GET", "/api/messages"},
		{"GET", "/api/accounts"},
		{"POST", "/api/ai/generate"},
		{"GET", "/api/templates"},
	}
	for _, p := range paths {
		rec, _ := doJSON(t, handler, nil, p.method, p.path, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without session: status = %d, want 401", p.method, p.path, rec.Code)
		}
	}

	// Health stays open for probes.
	rec, _ := doJSON(t, handler, nil, "GET", "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	handler := testServer(nil, nil, nil, nil).Routes()
	rec, body := doJSON(t, handler, nil, "POST", "/api/auth/login", `{"password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["detail"] != "パスワードが正しくありません" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	handler := testServer(nil, nil, nil, nil).Routes()
	rec, _ := doJSON(t, handler, nil, "POST", "/api/auth/logout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie && c.MaxAge >= 0 {
			t.Errorf("session cookie not expired: MaxAge = %d", c.MaxAge)
		}
	}
}

func TestListMessagesPassesFilter(t *testing.T) {
	th := &fakeThreads{listed: []models.Message{{ID: 1}}}
	handler := testServer(nil, th, nil, nil).Routes()
	cookie := login(t, handler)

	rec, _ := doJSON(t, handler, cookie, "GET",
		"/api/messages?channel=amazon&status=new&account_id=3&search=届かない&skip=10&limit=25", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	want := store.MessageFilter{Channel: "amazon", Status: "new", Search: "届かない", AccountID: 3}
	if th.filter != want {
		t.Errorf("filter = %+v", th.filter)
	}
	if th.skip != 10 || th.limit != 25 {
		t.Errorf("pagination skip=%d limit=%d", th.skip, th.limit)
	}
}

func TestListMessagesEmptyIsArray(t *testing.T) {
	handler := testServer(nil, &fakeThreads{}, nil, nil).Routes()
	cookie := login(t, handler)

	rec, _ := doJSON(t, handler, cookie, "GET", "/api/messages", "")
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want empty JSON array", got)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	handler := testServer(&fakeStore{}, nil, nil, nil).Routes()
	cookie := login(t, handler)

	rec, _ := doJSON(t, handler, cookie, "GET", "/api/messages/42", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMarkHandled(t *testing.T) {
	st := &fakeStore{message: &models.Message{ID: 5}, handledCount: 3}
	handler := testServer(st, nil, nil, nil).Routes()
	cookie := login(t, handler)

	rec, body := doJSON(t, handler, cookie, "PUT", "/api/messages/5/handled", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if st.markedID != 5 {
		t.Errorf("marked id = %d", st.markedID)
	}
	if body["detail"] != "対応済みにしました（3件）" {
		t.Errorf("detail = %v", body["detail"])
	}
	if body["status"] != models.StatusHandled {
		t.Errorf("status = %v", body["status"])
	}
}

func TestBulkHandled(t *testing.T) {
	st := &fakeStore{}
	handler := testServer(st, nil, nil, nil).Routes()
	cookie := login(t, handler)

	rec, body := doJSON(t, handler, cookie, "PUT", "/api/messages/bulk-handled", "[1,2,3]")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(st.bulkIDs) != 3 {
		t.Errorf("ids = %v", st.bulkIDs)
	}
	if body["detail"] != "3件を対応済みにしました" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestReopen(t *testing.T) {
	st := &fakeStore{}
	handler := testServer(st, nil, nil, nil).Routes()
	cookie := login(t, handler)

	rec, body := doJSON(t, handler, cookie, "PUT", "/api/messages/9/reopen", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if st.statusSet != models.StatusNew {
		t.Errorf("status set = %q", st.statusSet)
	}
	if body["detail"] != "新着に戻しました" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestSetCategoryRequiresBody(t *testing.T) {
	handler := testServer(&fakeStore{}, nil, nil, nil).Routes()
	cookie := login(t, handler)

	rec, _ := doJSON(t, handler, cookie, "PUT", "/api/messages/9/category", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGenerateCreated(t *testing.T) {
	lc := &fakeLifecycle{draft: &models.AiResponse{ID: 7, MessageID: 5, DraftBody: "回答案"}}
	handler := testServer(nil, nil, lc, nil).Routes()
	cookie := login(t, handler)

	rec, body := doJSON(t, handler, cookie, "POST", "/api/ai/generate", `{"message_id":5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if body["draft_body"] != "回答案" {
		t.Errorf("draft_body = %v", body["draft_body"])
	}
}

func TestGenerateRequiresMessageID(t *testing.T) {
	handler := testServer(nil, nil, &fakeLifecycle{}, nil).Routes()
	cookie := login(t, handler)

	rec, _ := doJSON(t, handler, cookie, "POST", "/api/ai/generate", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDiscardAlreadySent(t *testing.T) {
	lc := &fakeLifecycle{discardErr: store.ErrAlreadySent}
	handler := testServer(nil, nil, lc, nil).Routes()
	cookie := login(t, handler)

	rec, body := doJSON(t, handler, cookie, "DELETE", "/api/ai/7/discard", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body["detail"] != "送信済みの回答は破棄できません" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestSendReportsDeliveryFlag(t *testing.T) {
	lc := &fakeLifecycle{sendResult: &respond.SendResult{
		Response:  &models.AiResponse{ID: 7, IsSent: true},
		Delivered: false,
	}}
	handler := testServer(nil, nil, lc, nil).Routes()
	cookie := login(t, handler)

	rec, body := doJSON(t, handler, cookie, "PUT", "/api/ai/7/send", `{"final_body":"最終本文"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if lc.sentBody != "最終本文" {
		t.Errorf("sent body = %q", lc.sentBody)
	}
	if delivered, ok := body["delivered"].(bool); !ok || delivered {
		t.Errorf("delivered = %v, want false", body["delivered"])
	}
}

func TestSendDirectRequiresMessageID(t *testing.T) {
	handler := testServer(nil, nil, &fakeLifecycle{}, nil).Routes()
	cookie := login(t, handler)

	rec, _ := doJSON(t, handler, cookie, "POST", "/api/ai/send-direct", `{"final_body":"本文"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUsagePricing(t *testing.T) {
	st := &fakeStore{usageRows: []store.UsageRow{
		{AccountName: "MORABLU", Count: 2, InputTokens: 1_000_000, OutputTokens: 1_000_000},
		{AccountName: "SUBSHOP", Count: 1, InputTokens: 500_000, OutputTokens: 0},
	}}
	handler := testServer(st, nil, nil, nil).Routes()
	cookie := login(t, handler)

	rec, body := doJSON(t, handler, cookie, "GET", "/api/ai/usage?year=2026&month=8", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	accounts := body["accounts"].([]any)
	if len(accounts) != 2 {
		t.Fatalf("accounts = %d", len(accounts))
	}
	first := accounts[0].(map[string]any)
	if first["cost_usd"].(float64) != 18.0 {
		t.Errorf("first cost = %v, want 18.0", first["cost_usd"])
	}
	total := body["total"].(map[string]any)
	if total["cost_usd"].(float64) != 19.5 {
		t.Errorf("total cost = %v, want 19.5", total["cost_usd"])
	}
	if total["input_tokens"].(float64) != 1_500_000 {
		t.Errorf("total input tokens = %v", total["input_tokens"])
	}
}

func TestUsageValidatesMonth(t *testing.T) {
	handler := testServer(&fakeStore{}, nil, nil, nil).Routes()
	cookie := login(t, handler)

	rec, _ := doJSON(t, handler, cookie, "GET", "/api/ai/usage?year=2026&month=13", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateTemplate(t *testing.T) {
	st := &fakeStore{}
	handler := testServer(st, nil, nil, nil).Routes()
	cookie := login(t, handler)

	rec, body := doJSON(t, handler, cookie, "POST", "/api/templates",
		`{"category":"shipping","answer_template":"発送済みです。","platform":"amazon"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if body["id"].(float64) == 0 {
		t.Error("created template has no id")
	}
	if len(st.templates) != 1 || st.templates[0].Category != "shipping" {
		t.Errorf("stored = %+v", st.templates)
	}
}

func TestCreateTemplateRequiresFields(t *testing.T) {
	handler := testServer(&fakeStore{}, nil, nil, nil).Routes()
	cookie := login(t, handler)

	rec, _ := doJSON(t, handler, cookie, "POST", "/api/templates", `{"category":"shipping"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestBulkCreateTemplates(t *testing.T) {
	st := &fakeStore{}
	handler := testServer(st, nil, nil, nil).Routes()
	cookie := login(t, handler)

	rec, body := doJSON(t, handler, cookie, "POST", "/api/templates/bulk",
		`[{"category":"shipping","answer_template":"発送済みです。"},
		  {"category":"refund","answer_template":"返金いたします。","platform":"amazon"}]`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if body["inserted"].(float64) != 2 {
		t.Errorf("inserted = %v", body["inserted"])
	}
	if len(st.templates) != 2 {
		t.Errorf("stored = %d", len(st.templates))
	}

	rec, _ = doJSON(t, handler, cookie, "POST", "/api/templates/bulk", `[]`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty array status = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, handler, cookie, "POST", "/api/templates/bulk", `[{"category":"shipping"}]`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing answer_template status = %d, want 400", rec.Code)
	}
}

func TestDeleteTemplate(t *testing.T) {
	st := &fakeStore{}
	handler := testServer(st, nil, nil, nil).Routes()
	cookie := login(t, handler)

	rec, body := doJSON(t, handler, cookie, "DELETE", "/api/templates/4", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if st.deletedTmpl != 4 {
		t.Errorf("deleted id = %d", st.deletedTmpl)
	}
	if body["detail"] != "テンプレートを削除しました" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestFetchRunsPipeline(t *testing.T) {
	fetcher := &fakeFetcher{report: &ingest.Report{TotalNew: 4}}
	handler := testServer(nil, nil, nil, fetcher).Routes()
	cookie := login(t, handler)

	rec, body := doJSON(t, handler, cookie, "POST", "/api/messages/fetch", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["total_new"].(float64) != 4 {
		t.Errorf("total_new = %v", body["total_new"])
	}
}
