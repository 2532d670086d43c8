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

package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sellerdesk/sellerdesk/internal/store"
)

// FallbackCategory is assigned when classification fails or yields an
// unknown key, so ingestion never blocks on the model.
const FallbackCategory = "other"

type category struct {
	Key         string
	Description string
}

// Categories enumerates the inquiry categories a message can be
// assigned, in prompt order.
var Categories = []category{
	{"shipping", "発送・配送（いつ届くか、配送状況の確認）"},
	{"defect", "商品不備・不良（壊れている、動かない、傷がある）"},
	{"return", "返品・交換の依頼"},
	{"refund", "返金の依頼"},
	{"cancel", "注文キャンセル"},
	{"spec", "商品の仕様・適合確認（サイズ、対応機種など）"},
	{"receipt", "領収書・請求書の発行依頼"},
	{"address", "届け先の変更"},
	{"delivery_time", "配送日時・時間指定"},
	{"resend", "再送依頼"},
	{"stock", "欠品・在庫切れ"},
	{"other", "上記に該当しない問い合わせ"},
}

// KnownCategory reports whether key is one of the defined categories.
func KnownCategory(key string) bool {
	for _, c := range Categories {
		if c.Key == key {
			return true
		}
	}
	return false
}

// jsonObject pulls the first JSON object out of a completion that may be
// wrapped in a markdown code fence.
var jsonObject = regexp.MustCompile(`\{[^}]+\}`)

// Classify assigns an inquiry category to a customer message. Staff
// corrections from earlier sends are included as few-shot examples. Any
// failure falls back to FallbackCategory.
func (c *Client) Classify(ctx context.Context, body, subject string, corrections []store.CategoryCorrection) string {
	var list strings.Builder
	for _, cat := range Categories {
		fmt.Fprintf(&list, "- %s: %s\n", cat.Key, cat.Description)
	}

	system := fmt.Sprintf(`あなたはカスタマーサポートメッセージの分類AIです。
顧客のメッセージを読み、以下のカテゴリのうち最も適切なものを1つ選んでください。

カテゴリ一覧:
%s
回答はカテゴリのキー（英語）のみをJSON形式で返してください。
例: {"category": "shipping"}`, list.String())

	var user strings.Builder
	if subject != "" {
		fmt.Fprintf(&user, "件名: %s\n", subject)
	}
	fmt.Fprintf(&user, "メッセージ:\n%s", body)

	if len(corrections) > 0 {
		user.WriteString("\n\n===== 過去の分類修正履歴（学習データ） =====")
		user.WriteString("\n以下はAIの分類をスタッフが修正した事例です。同様のケースでは修正後のカテゴリを参考にしてください。\n")
		for _, h := range corrections {
			fmt.Fprintf(&user, "\n- メッセージ要約: %s\n  AI分類: %s → スタッフ修正: %s\n",
				h.MessageSummary, h.AICategory, h.CorrectCategory)
		}
	}

	result, err := c.complete(ctx, system, user.String(), classifyMaxTokens)
	if err != nil {
		c.log.Warn("message classification failed", "error", err)
		return FallbackCategory
	}

	raw := strings.TrimSpace(result.Text)
	if m := jsonObject.FindString(raw); m != "" {
		raw = m
	}
	var parsed struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		c.log.Warn("unparseable classification", "raw", raw, "error", err)
		return FallbackCategory
	}
	if !KnownCategory(parsed.Category) {
		return FallbackCategory
	}
	return parsed.Category
}
