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

// Package models defines the data structures shared across the support desk.
package models

import "time"

// Message direction values.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message lifecycle status values. "handled" is an orthogonal triage flag
// reachable from new or ai_drafted; outbound messages are always sent.
const (
	StatusNew       = "new"
	StatusAIDrafted = "ai_drafted"
	StatusSent      = "sent"
	StatusHandled   = "handled"
)

// Message is a single piece of customer correspondence, inbound or outbound.
type Message struct {
	ID                int64      `json:"id"`
	AccountID         int64      `json:"account_id"`
	AccountName       string     `json:"account_name,omitempty"`
	ExternalOrderID   string     `json:"external_order_id,omitempty"`
	ExternalMessageID *string    `json:"external_message_id,omitempty"`
	Sender            string     `json:"sender"`
	Subject           string     `json:"subject,omitempty"`
	Body              string     `json:"body"`
	Direction         string     `json:"direction"`
	Status            string     `json:"status"`
	ASIN              string     `json:"asin,omitempty"`
	SKU               string     `json:"sku,omitempty"`
	ProductTitle      string     `json:"product_title,omitempty"`
	ReplyToAddress    string     `json:"reply_to_address,omitempty"`
	QuestionCategory  string     `json:"question_category,omitempty"`
	ReceivedAt        time.Time  `json:"received_at"`
	CreatedAt         time.Time  `json:"created_at"`
	ThreadCount       int        `json:"thread_count,omitempty"`
}

// AiResponse is one generation attempt tied to exactly one Message.
// FinalBody and SentAt are set together with IsSent, atomically.
type AiResponse struct {
	ID                  int64      `json:"id"`
	MessageID           int64      `json:"message_id"`
	DraftBody           string     `json:"draft_body"`
	FinalBody           *string    `json:"final_body,omitempty"`
	AISuggestedCategory string     `json:"ai_suggested_category,omitempty"`
	IsSent              bool       `json:"is_sent"`
	InputTokens         *int       `json:"input_tokens,omitempty"`
	OutputTokens        *int       `json:"output_tokens,omitempty"`
	ModelUsed           string     `json:"model_used,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	SentAt              *time.Time `json:"sent_at,omitempty"`
}
