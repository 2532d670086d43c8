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

// Package assemble gathers every piece of evidence relevant to one
// customer message and renders it as the drafting prompt: confirmed
// order status, cached product facts, answer templates matched by
// keyword, and past staff answers for the same product and category.
package assemble

import (
	"context"
	"fmt"
	"strings"

	"github.com/sellerdesk/sellerdesk/internal/catalog"
	"github.com/sellerdesk/sellerdesk/internal/models"
	"github.com/sellerdesk/sellerdesk/internal/orders"
	"github.com/sellerdesk/sellerdesk/internal/store"
)

const (
	templateLimit     = 10
	pastProductLimit  = 5
	pastCategoryLimit = 5
)

// keywordGroups are synonym sets for template matching. A hit on any
// member pulls in the whole group so near-synonym template categories
// still match.
var keywordGroups = [][]string{
	{"発送", "配送", "届", "いつ届"},
	{"不備", "不良", "壊れ", "破損", "不具合"},
	{"返品", "交換", "返送"},
	{"返金", "払い戻し"},
	{"キャンセル"},
	{"領収書", "請求書", "インボイス"},
	{"適合", "仕様", "スペック", "車検"},
	{"届け先", "届先", "住所変更", "届け先変更"},
	{"日時指定", "時間指定", "配送日"},
	{"再送", "もう一度送"},
	{"欠品", "在庫切れ", "品切れ"},
	{"郵便局留め", "営業所留め", "局留"},
	{"離島", "送料"},
}

// MatchKeywords returns the union of synonym groups in which any member
// occurs in the message body or subject. An empty result means no group
// matched.
func MatchKeywords(body, subject string) []string {
	searchText := strings.ToLower(body + " " + subject)
	var matched []string
	for _, group := range keywordGroups {
		for _, kw := range group {
			if strings.Contains(searchText, kw) {
				matched = append(matched, group...)
				break
			}
		}
	}
	return matched
}

// EvidenceStore is the persistence surface the assembler reads from.
type EvidenceStore interface {
	SearchTemplates(ctx context.Context, platform string, keywords []string, limit int) ([]models.Template, error)
	PastResponsesByProduct(ctx context.Context, asin string, limit int) ([]store.PastResponse, error)
	PastResponsesByCategory(ctx context.Context, category, excludeASIN string, limit int) ([]store.PastResponse, error)
}

// ProductSource resolves an ASIN to product facts.
type ProductSource interface {
	Get(ctx context.Context, asin, accountName string) (*models.ProductFact, error)
}

// OrderSource resolves an order ID to order status.
type OrderSource interface {
	Get(ctx context.Context, orderID, accountName string) *orders.Info
}

// Evidence is everything gathered for one message.
type Evidence struct {
	OrderStatus  string
	ProductInfo  string
	ProductFact  *models.ProductFact
	Templates    []models.Template
	PastProduct  []store.PastResponse
	PastCategory []store.PastResponse
}

// Assembler builds evidence bundles.
type Assembler struct {
	store    EvidenceStore
	products ProductSource
	orders   OrderSource
}

func New(store EvidenceStore, products ProductSource, orders OrderSource) *Assembler {
	return &Assembler{store: store, products: products, orders: orders}
}

// Gather collects evidence for a message. Collaborator failures degrade
// the bundle (an unconfirmed order, a missing product) rather than
// failing assembly; only store errors propagate.
func (a *Assembler) Gather(ctx context.Context, msg *models.Message, accountName, platform, category string) (*Evidence, error) {
	ev := &Evidence{}

	if msg.ExternalOrderID != "" {
		ev.OrderStatus = orders.FormatForPrompt(a.orders.Get(ctx, msg.ExternalOrderID, accountName))
	}

	if msg.ASIN != "" {
		fact, err := a.products.Get(ctx, msg.ASIN, accountName)
		if err != nil {
			return nil, fmt.Errorf("assembling product facts: %w", err)
		}
		if fact != nil {
			ev.ProductFact = fact
			ev.ProductInfo = catalog.FormatForPrompt(fact)
		}

		past, err := a.store.PastResponsesByProduct(ctx, msg.ASIN, pastProductLimit)
		if err != nil {
			return nil, fmt.Errorf("assembling product history: %w", err)
		}
		ev.PastProduct = past
	}

	keywords := MatchKeywords(msg.Body, msg.Subject)
	templates, err := a.store.SearchTemplates(ctx, platform, keywords, templateLimit)
	if err != nil {
		return nil, fmt.Errorf("assembling templates: %w", err)
	}
	ev.Templates = templates

	pastCategory, err := a.store.PastResponsesByCategory(ctx, category, msg.ASIN, pastCategoryLimit)
	if err != nil {
		return nil, fmt.Errorf("assembling category history: %w", err)
	}
	ev.PastCategory = pastCategory

	return ev, nil
}

// RenderPrompt flattens a message and its evidence into the user prompt
// handed to the drafting model.
func RenderPrompt(msg *models.Message, category string, ev *Evidence) string {
	var b strings.Builder

	if msg.ExternalOrderID != "" {
		fmt.Fprintf(&b, "注文番号: %s\n", msg.ExternalOrderID)
	}
	if msg.ASIN != "" {
		fmt.Fprintf(&b, "ASIN: %s\n", msg.ASIN)
	}
	if msg.ProductTitle != "" {
		fmt.Fprintf(&b, "商品名: %s\n", msg.ProductTitle)
	}
	if category != "" {
		fmt.Fprintf(&b, "質問カテゴリ（AI分類）: %s\n", category)
	}
	if msg.Subject != "" {
		fmt.Fprintf(&b, "件名: %s\n", msg.Subject)
	}
	fmt.Fprintf(&b, "\nお客様のメッセージ:\n%s", msg.Body)

	if ev.OrderStatus != "" {
		b.WriteString("\n\n===== 注文情報（SP API Ordersより取得） =====")
		b.WriteString("\n" + ev.OrderStatus)
	} else {
		b.WriteString("\n\n===== 注文情報 =====")
		b.WriteString("\n注文ステータス: 【未確認】")
		b.WriteString("\n※注文の状態が確認できていません。発送済み・未発送などの断定はしないでください。")
	}

	if ev.ProductInfo != "" {
		b.WriteString("\n\n===== 該当商品の情報（Amazon商品ページより） =====")
		b.WriteString("\n" + ev.ProductInfo)
	}

	if len(ev.PastProduct) > 0 {
		b.WriteString("\n\n===== この商品の過去対応履歴（スタッフ実績） =====")
		for i, r := range ev.PastProduct {
			fmt.Fprintf(&b, "\n\n--- 事例%d ---", i+1)
			fmt.Fprintf(&b, "\n顧客の質問: %s", r.CustomerQuestion)
			if r.QuestionCategory != "" {
				fmt.Fprintf(&b, "\nカテゴリ: %s", r.QuestionCategory)
			}
			fmt.Fprintf(&b, "\nスタッフの回答:\n%s", r.StaffAnswer)
		}
	}

	if len(ev.Templates) > 0 {
		b.WriteString("\n\n===== 社内Q&Aテンプレート =====")
		for _, t := range ev.Templates {
			fmt.Fprintf(&b, "\n\n【カテゴリ】%s", t.Category)
			if t.Subcategory != "" {
				fmt.Fprintf(&b, "\n【種類】%s", t.Subcategory)
			}
			fmt.Fprintf(&b, "\n【回答テンプレート】\n%s", t.AnswerTemplate)
			if t.StaffNotes != "" {
				fmt.Fprintf(&b, "\n【スタッフ向けメモ】%s", t.StaffNotes)
			}
		}
	}

	if len(ev.PastCategory) > 0 {
		b.WriteString("\n\n===== 同カテゴリの過去対応履歴（参考） =====")
		for i, r := range ev.PastCategory {
			fmt.Fprintf(&b, "\n\n--- 参考事例%d ---", i+1)
			if r.ProductTitle != "" {
				fmt.Fprintf(&b, "\n商品: %s", r.ProductTitle)
			}
			fmt.Fprintf(&b, "\n顧客の質問: %s", r.CustomerQuestion)
			fmt.Fprintf(&b, "\nスタッフの回答:\n%s", r.StaffAnswer)
		}
	}

	b.WriteString("\n\n上記を踏まえて、お客様への回答案を作成してください。")
	return b.String()
}
