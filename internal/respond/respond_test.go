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

package respond

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sellerdesk/sellerdesk/internal/ai"
	"github.com/sellerdesk/sellerdesk/internal/assemble"
	"github.com/sellerdesk/sellerdesk/internal/config"
	"github.com/sellerdesk/sellerdesk/internal/models"
	"github.com/sellerdesk/sellerdesk/internal/orders"
	"github.com/sellerdesk/sellerdesk/internal/store"
)

type fakeStore struct {
	message  *models.Message
	account  *models.Account
	drafts   []*models.AiResponse
	outbound []*models.Message

	titleSet    string
	categorySet string

	finalizeResp *models.AiResponse
	directResp   *models.AiResponse
}

func (s *fakeStore) GetMessage(_ context.Context, id int64) (*models.Message, error) {
	if s.message == nil || s.message.ID != id {
		return nil, store.ErrNotFound
	}
	copied := *s.message
	return &copied, nil
}

func (s *fakeStore) GetAccount(_ context.Context, id int64) (*models.Account, error) {
	if s.account == nil || s.account.ID != id {
		return nil, store.ErrNotFound
	}
	return s.account, nil
}

func (s *fakeStore) InsertMessage(_ context.Context, m *models.Message) (bool, error) {
	s.outbound = append(s.outbound, m)
	return true, nil
}

func (s *fakeStore) SetProductTitle(_ context.Context, _ int64, title string) error {
	s.titleSet = title
	return nil
}

func (s *fakeStore) SetMessageCategory(_ context.Context, _ int64, category string) error {
	s.categorySet = category
	return nil
}

func (s *fakeStore) InsertDraft(_ context.Context, r *models.AiResponse) error {
	r.ID = int64(len(s.drafts) + 1)
	s.drafts = append(s.drafts, r)
	return nil
}

func (s *fakeStore) GetResponse(_ context.Context, id int64) (*models.AiResponse, error) {
	for _, d := range s.drafts {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) DiscardDraft(_ context.Context, _ int64) (string, error) {
	return models.StatusNew, nil
}

func (s *fakeStore) FinalizeSend(_ context.Context, _ int64, finalBody, _ string) (*models.AiResponse, error) {
	if s.finalizeResp == nil {
		return nil, store.ErrNotFound
	}
	s.finalizeResp.FinalBody = &finalBody
	s.finalizeResp.IsSent = true
	now := time.Now().UTC()
	s.finalizeResp.SentAt = &now
	return s.finalizeResp, nil
}

func (s *fakeStore) CreateDirectSend(_ context.Context, messageID int64, finalBody, _ string) (*models.AiResponse, error) {
	s.directResp = &models.AiResponse{ID: 99, MessageID: messageID, DraftBody: finalBody, FinalBody: &finalBody, IsSent: true}
	return s.directResp, nil
}

func (s *fakeStore) CategoryCorrections(context.Context, int) ([]store.CategoryCorrection, error) {
	return nil, nil
}

type fakeDrafter struct {
	result   *ai.Result
	err      error
	category string
	prompt   string
}

func (d *fakeDrafter) GenerateDraft(_ context.Context, userContent string) (*ai.Result, error) {
	d.prompt = userContent
	if d.err != nil {
		return nil, d.err
	}
	return d.result, nil
}

func (d *fakeDrafter) Classify(context.Context, string, string, []store.CategoryCorrection) string {
	if d.category == "" {
		return ai.FallbackCategory
	}
	return d.category
}

type fakeDeliverer struct {
	err   error
	calls int
	to    string
	body  string
}

func (d *fakeDeliverer) SendReply(_ config.AccountConfig, to, _, body, _ string) error {
	d.calls++
	d.to = to
	d.body = body
	return d.err
}

// evidence fakes for the concrete assembler.

type emptyEvidenceStore struct{}

func (emptyEvidenceStore) SearchTemplates(context.Context, string, []string, int) ([]models.Template, error) {
	return nil, nil
}
func (emptyEvidenceStore) PastResponsesByProduct(context.Context, string, int) ([]store.PastResponse, error) {
	return nil, nil
}
func (emptyEvidenceStore) PastResponsesByCategory(context.Context, string, string, int) ([]store.PastResponse, error) {
	return nil, nil
}

type fixedProducts struct{ fact *models.ProductFact }

func (p fixedProducts) Get(context.Context, string, string) (*models.ProductFact, error) {
	return p.fact, nil
}

type noOrders struct{}

func (noOrders) Get(_ context.Context, orderID, _ string) *orders.Info {
	return &orders.Info{OrderID: orderID, ErrorReason: "SP APIクレデンシャル未設定"}
}

func testConfig() *config.Config {
	return &config.Config{
		Accounts: []config.AccountConfig{
			{Name: "MORABLU", Channel: "amazon", MailAddress: "m@example.com", MailPassword: "pw"},
		},
	}
}

func testEngine(st *fakeStore, drafter *fakeDrafter, deliverer *fakeDeliverer, fact *models.ProductFact) *Engine {
	asm := assemble.New(emptyEvidenceStore{}, fixedProducts{fact: fact}, noOrders{})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(st, testConfig(), asm, drafter, deliverer, log)
}

func inboundMessage() *models.Message {
	id := "m1@marketplace.amazon.co.jp"
	return &models.Message{
		ID:                1,
		AccountID:         7,
		ExternalOrderID:   "503-1234567-8901234",
		ExternalMessageID: &id,
		Sender:            "田中太郎",
		Subject:           "商品がまだ届きません",
		Body:              "いつ届きますか",
		Direction:         models.DirectionInbound,
		Status:            models.StatusNew,
		ASIN:              "B0EXAMPLE01",
		ReplyToAddress:    "alias1@marketplace.amazon.co.jp",
		ReceivedAt:        time.Now().UTC(),
	}
}

func TestGenerateBuildsDraft(t *testing.T) {
	st := &fakeStore{
		message: inboundMessage(),
		account: &models.Account{ID: 7, Name: "MORABLU", Channel: "amazon"},
	}
	drafter := &fakeDrafter{result: &ai.Result{
		Text: "お問い合わせありがとうございます。", InputTokens: 1000, OutputTokens: 200, Model: "claude-sonnet-4-5-20250929",
	}}
	engine := testEngine(st, drafter, &fakeDeliverer{}, &models.ProductFact{
		ASIN: "B0EXAMPLE01", Title: "LEDヘッドライト", FetchedAt: time.Now().UTC(),
	})

	draft, err := engine.Generate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if draft.DraftBody != "お問い合わせありがとうございます。" {
		t.Errorf("draft body = %q", draft.DraftBody)
	}
	if draft.AISuggestedCategory != ai.FallbackCategory {
		t.Errorf("category = %q, want fallback when unset", draft.AISuggestedCategory)
	}
	if draft.InputTokens == nil || *draft.InputTokens != 1000 {
		t.Error("input tokens not recorded")
	}
	if len(st.drafts) != 1 {
		t.Fatalf("drafts stored = %d", len(st.drafts))
	}

	// The catalog title backfills the message when it arrived without one.
	if st.titleSet != "LEDヘッドライト" {
		t.Errorf("product title backfill = %q", st.titleSet)
	}
	// The unconfirmed order marker must reach the model.
	if !strings.Contains(drafter.prompt, "【未確認】") {
		t.Error("prompt missing unconfirmed order marker")
	}
}

func TestGenerateSurfacesDrafterFailure(t *testing.T) {
	st := &fakeStore{
		message: inboundMessage(),
		account: &models.Account{ID: 7, Name: "MORABLU", Channel: "amazon"},
	}
	drafter := &fakeDrafter{err: errors.New("overloaded")}
	engine := testEngine(st, drafter, &fakeDeliverer{}, nil)

	if _, err := engine.Generate(context.Background(), 1); err == nil {
		t.Fatal("expected generation failure to propagate")
	}
	if len(st.drafts) != 0 {
		t.Error("no draft must be stored on failure")
	}
}

func TestSendDeliversAndRecordsOutbound(t *testing.T) {
	st := &fakeStore{
		message:      inboundMessage(),
		account:      &models.Account{ID: 7, Name: "MORABLU", Channel: "amazon"},
		finalizeResp: &models.AiResponse{ID: 3, MessageID: 1, DraftBody: "draft"},
	}
	deliverer := &fakeDeliverer{}
	engine := testEngine(st, &fakeDrafter{}, deliverer, nil)

	result, err := engine.Send(context.Background(), 3, "最終回答です。", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !result.Delivered {
		t.Error("Delivered = false, want true")
	}
	if !result.Response.IsSent {
		t.Error("response not marked sent")
	}
	if deliverer.calls != 1 || deliverer.to != "alias1@marketplace.amazon.co.jp" {
		t.Errorf("delivery calls=%d to=%q", deliverer.calls, deliverer.to)
	}

	if len(st.outbound) != 1 {
		t.Fatalf("outbound messages recorded = %d", len(st.outbound))
	}
	out := st.outbound[0]
	if out.Direction != models.DirectionOutbound || out.Status != models.StatusSent {
		t.Errorf("outbound direction=%s status=%s", out.Direction, out.Status)
	}
	if out.Sender != "MORABLU" {
		t.Errorf("outbound sender = %q", out.Sender)
	}
	if out.Subject != "Re: 商品がまだ届きません" {
		t.Errorf("outbound subject = %q", out.Subject)
	}
	if out.Body != "最終回答です。" {
		t.Errorf("outbound body = %q", out.Body)
	}
}

func TestSendSurvivesDeliveryFailure(t *testing.T) {
	st := &fakeStore{
		message:      inboundMessage(),
		account:      &models.Account{ID: 7, Name: "MORABLU", Channel: "amazon"},
		finalizeResp: &models.AiResponse{ID: 3, MessageID: 1, DraftBody: "draft"},
	}
	deliverer := &fakeDeliverer{err: errors.New("smtp down")}
	engine := testEngine(st, &fakeDrafter{}, deliverer, nil)

	result, err := engine.Send(context.Background(), 3, "最終回答です。", "")
	if err != nil {
		t.Fatalf("Send must not fail when only delivery fails: %v", err)
	}
	if result.Delivered {
		t.Error("Delivered = true after a delivery failure")
	}
	if !result.Response.IsSent {
		t.Error("database send must remain committed")
	}
	if len(st.outbound) != 0 {
		t.Error("no outbound message must be recorded on delivery failure")
	}
}

func TestSendWithoutReplyAlias(t *testing.T) {
	msg := inboundMessage()
	msg.ReplyToAddress = ""
	st := &fakeStore{
		message:      msg,
		account:      &models.Account{ID: 7, Name: "MORABLU", Channel: "amazon"},
		finalizeResp: &models.AiResponse{ID: 3, MessageID: 1, DraftBody: "draft"},
	}
	deliverer := &fakeDeliverer{}
	engine := testEngine(st, &fakeDrafter{}, deliverer, nil)

	result, err := engine.Send(context.Background(), 3, "本文", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Delivered {
		t.Error("Delivered = true without a reply alias")
	}
	if deliverer.calls != 0 {
		t.Error("delivery attempted without a reply alias")
	}
}

func TestSendDirect(t *testing.T) {
	st := &fakeStore{
		message: inboundMessage(),
		account: &models.Account{ID: 7, Name: "MORABLU", Channel: "amazon"},
	}
	deliverer := &fakeDeliverer{}
	engine := testEngine(st, &fakeDrafter{}, deliverer, nil)

	result, err := engine.SendDirect(context.Background(), 1, "テンプレート回答", "refund")
	if err != nil {
		t.Fatalf("SendDirect: %v", err)
	}
	if !result.Delivered || !result.Response.IsSent {
		t.Errorf("result = %+v", result)
	}
	if deliverer.body != "テンプレート回答" {
		t.Errorf("delivered body = %q", deliverer.body)
	}
}

func TestClassifyPersistsCategory(t *testing.T) {
	st := &fakeStore{
		message: inboundMessage(),
		account: &models.Account{ID: 7, Name: "MORABLU", Channel: "amazon"},
	}
	drafter := &fakeDrafter{category: "shipping"}
	engine := testEngine(st, drafter, &fakeDeliverer{}, nil)

	category, err := engine.Classify(context.Background(), 1)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if category != "shipping" || st.categorySet != "shipping" {
		t.Errorf("category = %q, persisted = %q", category, st.categorySet)
	}
}
