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

// Package respond drives the response lifecycle: generating drafts from
// assembled evidence, discarding them, and finalizing sends. State
// transitions commit in the database first; outbound delivery happens
// after the commit and a delivery failure never rolls the send back, it
// is surfaced to the operator instead.
package respond

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sellerdesk/sellerdesk/internal/ai"
	"github.com/sellerdesk/sellerdesk/internal/assemble"
	"github.com/sellerdesk/sellerdesk/internal/config"
	"github.com/sellerdesk/sellerdesk/internal/models"
	"github.com/sellerdesk/sellerdesk/internal/store"
)

// correctionSampleSize bounds how many staff corrections are replayed
// to the classifier as few-shot examples.
const correctionSampleSize = 20

// Store is the persistence surface the engine mutates.
type Store interface {
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	GetAccount(ctx context.Context, id int64) (*models.Account, error)
	InsertMessage(ctx context.Context, m *models.Message) (bool, error)
	SetProductTitle(ctx context.Context, id int64, title string) error
	SetMessageCategory(ctx context.Context, id int64, category string) error

	InsertDraft(ctx context.Context, r *models.AiResponse) error
	GetResponse(ctx context.Context, id int64) (*models.AiResponse, error)
	DiscardDraft(ctx context.Context, responseID int64) (string, error)
	FinalizeSend(ctx context.Context, responseID int64, finalBody, correctedCategory string) (*models.AiResponse, error)
	CreateDirectSend(ctx context.Context, messageID int64, finalBody, correctedCategory string) (*models.AiResponse, error)
	CategoryCorrections(ctx context.Context, limit int) ([]store.CategoryCorrection, error)
}

// Drafter produces reply drafts.
type Drafter interface {
	GenerateDraft(ctx context.Context, userContent string) (*ai.Result, error)
	Classify(ctx context.Context, body, subject string, corrections []store.CategoryCorrection) string
}

// Deliverer submits a composed reply to the marketplace relay.
type Deliverer interface {
	SendReply(account config.AccountConfig, to, subject, body, inReplyTo string) error
}

// SendResult is the outcome of a send operation. Delivered is false when
// the database committed the send but outbound mail could not be
// delivered.
type SendResult struct {
	Response  *models.AiResponse `json:"response"`
	Delivered bool               `json:"delivered"`
}

// Engine owns the draft/send/discard state machine.
type Engine struct {
	store     Store
	cfg       *config.Config
	assembler *assemble.Assembler
	drafter   Drafter
	deliverer Deliverer
	log       *slog.Logger
}

func NewEngine(st Store, cfg *config.Config, asm *assemble.Assembler, drafter Drafter, deliverer Deliverer, log *slog.Logger) *Engine {
	return &Engine{store: st, cfg: cfg, assembler: asm, drafter: drafter, deliverer: deliverer, log: log}
}

// Generate assembles evidence for a message and produces a new draft.
// The message moves to ai_drafted; earlier unsent drafts stay until a
// send or discard resolves them. Generation failures propagate so the
// operator sees them rather than an empty draft.
func (e *Engine) Generate(ctx context.Context, messageID int64) (*models.AiResponse, error) {
	msg, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	account, err := e.store.GetAccount(ctx, msg.AccountID)
	if err != nil {
		return nil, err
	}

	category := msg.QuestionCategory
	if category == "" {
		category = ai.FallbackCategory
	}

	ev, err := e.assembler.Gather(ctx, msg, account.Name, account.Channel, category)
	if err != nil {
		return nil, err
	}

	// Backfill the product title from the catalog when the inbound mail
	// did not carry one.
	if msg.ProductTitle == "" && ev.ProductFact != nil && ev.ProductFact.Title != "" {
		if err := e.store.SetProductTitle(ctx, msg.ID, ev.ProductFact.Title); err != nil {
			e.log.Warn("product title backfill failed", "message_id", msg.ID, "error", err)
		} else {
			msg.ProductTitle = ev.ProductFact.Title
		}
	}

	prompt := assemble.RenderPrompt(msg, category, ev)
	result, err := e.drafter.GenerateDraft(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating draft for message %d: %w", messageID, err)
	}

	draft := &models.AiResponse{
		MessageID:           msg.ID,
		DraftBody:           result.Text,
		AISuggestedCategory: category,
		InputTokens:         &result.InputTokens,
		OutputTokens:        &result.OutputTokens,
		ModelUsed:           result.Model,
	}
	if err := e.store.InsertDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("saving draft for message %d: %w", messageID, err)
	}
	e.log.Info("draft generated", "message_id", msg.ID, "response_id", draft.ID,
		"input_tokens", result.InputTokens, "output_tokens", result.OutputTokens)
	return draft, nil
}

// Classify assigns an inquiry category to a message, replaying recent
// staff corrections as few-shot examples, and persists the result.
func (e *Engine) Classify(ctx context.Context, messageID int64) (string, error) {
	msg, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		return "", err
	}
	corrections, err := e.store.CategoryCorrections(ctx, correctionSampleSize)
	if err != nil {
		e.log.Warn("loading category corrections failed", "error", err)
		corrections = nil
	}
	category := e.drafter.Classify(ctx, msg.Body, msg.Subject, corrections)
	if err := e.store.SetMessageCategory(ctx, msg.ID, category); err != nil {
		return "", err
	}
	return category, nil
}

// Discard deletes an unsent draft and returns the message status after
// recomputation. Sent responses cannot be discarded.
func (e *Engine) Discard(ctx context.Context, responseID int64) (string, error) {
	status, err := e.store.DiscardDraft(ctx, responseID)
	if err != nil {
		return "", err
	}
	e.log.Info("draft discarded", "response_id", responseID, "message_status", status)
	return status, nil
}

// Send finalizes a draft with the staff's edited body, commits the send,
// then delivers the reply and records the outbound message.
func (e *Engine) Send(ctx context.Context, responseID int64, finalBody, correctedCategory string) (*SendResult, error) {
	resp, err := e.store.FinalizeSend(ctx, responseID, finalBody, correctedCategory)
	if err != nil {
		return nil, err
	}
	delivered := e.deliver(ctx, resp.MessageID, finalBody)
	return &SendResult{Response: resp, Delivered: delivered}, nil
}

// SendDirect sends a staff-written reply with no prior draft. Any unsent
// drafts on the message are collapsed into the single sent record.
func (e *Engine) SendDirect(ctx context.Context, messageID int64, finalBody, correctedCategory string) (*SendResult, error) {
	resp, err := e.store.CreateDirectSend(ctx, messageID, finalBody, correctedCategory)
	if err != nil {
		return nil, err
	}
	delivered := e.deliver(ctx, messageID, finalBody)
	return &SendResult{Response: resp, Delivered: delivered}, nil
}

// deliver sends the reply mail and records the outbound message for
// thread display. Failures are logged and reported, never fatal: the
// send already committed.
func (e *Engine) deliver(ctx context.Context, messageID int64, finalBody string) bool {
	msg, err := e.store.GetMessage(ctx, messageID)
	if err != nil {
		e.log.Error("loading message for delivery", "message_id", messageID, "error", err)
		return false
	}
	account, err := e.store.GetAccount(ctx, msg.AccountID)
	if err != nil {
		e.log.Error("loading account for delivery", "message_id", messageID, "error", err)
		return false
	}
	accountCfg, ok := e.cfg.Account(account.Name)
	if !ok {
		e.log.Warn("no mail configuration for account, reply not delivered",
			"account", account.Name, "message_id", messageID)
		return false
	}
	if msg.ReplyToAddress == "" {
		e.log.Warn("no reply alias on message, reply not delivered", "message_id", messageID)
		return false
	}

	inReplyTo := ""
	if msg.ExternalMessageID != nil {
		inReplyTo = *msg.ExternalMessageID
	}
	if err := e.deliverer.SendReply(accountCfg, msg.ReplyToAddress, msg.Subject, finalBody, inReplyTo); err != nil {
		e.log.Error("reply delivery failed, send already committed",
			"message_id", messageID, "error", err)
		return false
	}

	subject := "Re: Amazon お問い合わせ"
	if msg.Subject != "" {
		subject = "Re: " + msg.Subject
	}
	outbound := &models.Message{
		AccountID:        msg.AccountID,
		ExternalOrderID:  msg.ExternalOrderID,
		Sender:           account.Name,
		Subject:          subject,
		Body:             finalBody,
		Direction:        models.DirectionOutbound,
		Status:           models.StatusSent,
		ASIN:             msg.ASIN,
		ProductTitle:     msg.ProductTitle,
		QuestionCategory: msg.QuestionCategory,
		ReceivedAt:       time.Now().UTC(),
	}
	if _, err := e.store.InsertMessage(ctx, outbound); err != nil {
		e.log.Error("recording outbound message failed", "message_id", messageID, "error", err)
	}
	return true
}
