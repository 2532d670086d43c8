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
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sellerdesk/sellerdesk/internal/models"
)

// newTestStore connects to the database named by TEST_DATABASE_URL and
// skips the test when none is configured. These tests exercise the real
// lifecycle queries, which the fakes in other packages only mirror.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	st, err := New(ctx, pool)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	return st
}

// newTestMessage inserts an account and one new inbound message with
// unique identifiers, so tests do not collide on the dedup constraints.
func newTestMessage(t *testing.T, st *Store) *models.Message {
	t.Helper()
	ctx := context.Background()

	name := fmt.Sprintf("test-%d", time.Now().UnixNano())
	account, err := st.GetOrCreateAccount(ctx, name, "amazon")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	externalID := name + "@marketplace.amazon.co.jp"
	msg := &models.Message{
		AccountID:         account.ID,
		ExternalOrderID:   "503-1234567-8901234",
		ExternalMessageID: &externalID,
		Sender:            "田中太郎",
		Subject:           "商品について",
		Body:              "いつ届きますか",
		Direction:         models.DirectionInbound,
		Status:            models.StatusNew,
		QuestionCategory:  "shipping",
		ReceivedAt:        time.Now().UTC(),
	}
	if _, err := st.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("insert message: %v", err)
	}
	return msg
}

func addDraft(t *testing.T, st *Store, messageID int64, body string) *models.AiResponse {
	t.Helper()
	draft := &models.AiResponse{MessageID: messageID, DraftBody: body}
	if err := st.InsertDraft(context.Background(), draft); err != nil {
		t.Fatalf("insert draft: %v", err)
	}
	return draft
}

func messageStatus(t *testing.T, st *Store, id int64) string {
	t.Helper()
	msg, err := st.GetMessage(context.Background(), id)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	return msg.Status
}

func TestDiscardDraftStatusRecompute(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	t.Run("last draft returns message to new", func(t *testing.T) {
		msg := newTestMessage(t, st)
		draft := addDraft(t, st, msg.ID, "案1")

		status, err := st.DiscardDraft(ctx, draft.ID)
		if err != nil {
			t.Fatalf("DiscardDraft: %v", err)
		}
		if status != models.StatusNew {
			t.Errorf("status = %q, want new", status)
		}
		if got := messageStatus(t, st, msg.ID); got != models.StatusNew {
			t.Errorf("message status = %q, want new", got)
		}
	})

	t.Run("remaining unsent draft keeps ai_drafted", func(t *testing.T) {
		msg := newTestMessage(t, st)
		first := addDraft(t, st, msg.ID, "案1")
		addDraft(t, st, msg.ID, "案2")

		status, err := st.DiscardDraft(ctx, first.ID)
		if err != nil {
			t.Fatalf("DiscardDraft: %v", err)
		}
		if status != models.StatusAIDrafted {
			t.Errorf("status = %q, want ai_drafted", status)
		}
	})

	t.Run("remaining sent response keeps sent", func(t *testing.T) {
		msg := newTestMessage(t, st)
		sent := addDraft(t, st, msg.ID, "案1")
		if _, err := st.FinalizeSend(ctx, sent.ID, "最終回答", ""); err != nil {
			t.Fatalf("FinalizeSend: %v", err)
		}
		later := addDraft(t, st, msg.ID, "案2")

		status, err := st.DiscardDraft(ctx, later.ID)
		if err != nil {
			t.Fatalf("DiscardDraft: %v", err)
		}
		if status != models.StatusSent {
			t.Errorf("status = %q, want sent", status)
		}
	})

	t.Run("sent response cannot be discarded", func(t *testing.T) {
		msg := newTestMessage(t, st)
		sent := addDraft(t, st, msg.ID, "案1")
		if _, err := st.FinalizeSend(ctx, sent.ID, "最終回答", ""); err != nil {
			t.Fatalf("FinalizeSend: %v", err)
		}

		if _, err := st.DiscardDraft(ctx, sent.ID); !errors.Is(err, ErrAlreadySent) {
			t.Errorf("err = %v, want ErrAlreadySent", err)
		}
	})
}

func TestFinalizeSendCollapsesDrafts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	msg := newTestMessage(t, st)

	addDraft(t, st, msg.ID, "案1")
	second := addDraft(t, st, msg.ID, "案2")

	resp, err := st.FinalizeSend(ctx, second.ID, "最終回答です。", "refund")
	if err != nil {
		t.Fatalf("FinalizeSend: %v", err)
	}
	if !resp.IsSent || resp.FinalBody == nil || *resp.FinalBody != "最終回答です。" || resp.SentAt == nil {
		t.Errorf("resp = %+v, want sent with final body and timestamp", resp)
	}

	remaining, err := st.ListResponses(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != second.ID || !remaining[0].IsSent {
		t.Errorf("remaining = %+v, want only the sent response", remaining)
	}

	if got := messageStatus(t, st, msg.ID); got != models.StatusSent {
		t.Errorf("message status = %q, want sent", got)
	}
	updated, err := st.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if updated.QuestionCategory != "refund" {
		t.Errorf("category = %q, want staff correction recorded", updated.QuestionCategory)
	}
}

func TestFinalizeSendRejectsSecondSend(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	msg := newTestMessage(t, st)

	first := addDraft(t, st, msg.ID, "案1")
	if _, err := st.FinalizeSend(ctx, first.ID, "最終回答", ""); err != nil {
		t.Fatalf("FinalizeSend: %v", err)
	}

	// Re-sending the sent response is rejected.
	if _, err := st.FinalizeSend(ctx, first.ID, "上書き", ""); !errors.Is(err, ErrAlreadySent) {
		t.Errorf("resend err = %v, want ErrAlreadySent", err)
	}

	// A later draft cannot be sent once a sibling is sent.
	later := addDraft(t, st, msg.ID, "案2")
	if _, err := st.FinalizeSend(ctx, later.ID, "二通目", ""); !errors.Is(err, ErrAlreadySent) {
		t.Errorf("sibling err = %v, want ErrAlreadySent", err)
	}

	responses, err := st.ListResponses(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	var sentCount int
	for _, r := range responses {
		if r.IsSent {
			sentCount++
		}
	}
	if sentCount != 1 {
		t.Errorf("sent responses = %d, want exactly one", sentCount)
	}
}

func TestCreateDirectSendCollapsesDrafts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	msg := newTestMessage(t, st)

	addDraft(t, st, msg.ID, "案1")
	addDraft(t, st, msg.ID, "案2")

	resp, err := st.CreateDirectSend(ctx, msg.ID, "テンプレート回答", "")
	if err != nil {
		t.Fatalf("CreateDirectSend: %v", err)
	}
	if !resp.IsSent || resp.DraftBody != "テンプレート回答" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.FinalBody == nil || *resp.FinalBody != resp.DraftBody {
		t.Error("direct send must record identical draft and final text")
	}

	remaining, err := st.ListResponses(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != resp.ID {
		t.Errorf("remaining = %+v, want only the direct send", remaining)
	}
	if got := messageStatus(t, st, msg.ID); got != models.StatusSent {
		t.Errorf("message status = %q, want sent", got)
	}

	if _, err := st.CreateDirectSend(ctx, msg.ID, "二通目", ""); !errors.Is(err, ErrAlreadySent) {
		t.Errorf("second direct send err = %v, want ErrAlreadySent", err)
	}
}
