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

// SellerDesk seed command.
//
// Standalone CLI tool that creates the configured accounts and,
// optionally, a batch of sample inbound messages. Intended for new
// deployments and local development.
//
// Usage:
//
//	go run ./cmd/seed/ [--samples]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/sellerdesk/sellerdesk/internal/config"
	"github.com/sellerdesk/sellerdesk/internal/models"
	"github.com/sellerdesk/sellerdesk/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	samplesFlag := flag.Bool("samples", false, "also insert sample inbound messages")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st, err := store.New(ctx, pool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	accounts := make(map[string]*models.Account)
	for _, a := range cfg.Accounts {
		account, err := st.GetOrCreateAccount(ctx, a.Name, a.Channel)
		if err != nil {
			slog.Error("failed to create account", "account", a.Name, "error", err)
			os.Exit(1)
		}
		accounts[a.Name] = account
		slog.Info("account ready", "account", account.Name, "id", account.ID)
	}

	if !*samplesFlag {
		return
	}
	if len(cfg.Accounts) == 0 {
		slog.Error("no accounts configured, cannot seed samples")
		os.Exit(1)
	}

	primary := accounts[cfg.Accounts[0].Name]
	inserted := 0
	for _, sample := range sampleMessages(primary.ID) {
		ok, err := st.InsertMessage(ctx, &sample)
		if err != nil {
			slog.Error("failed to insert sample", "subject", sample.Subject, "error", err)
			os.Exit(1)
		}
		if ok {
			inserted++
		}
	}
	slog.Info("sample messages seeded", "inserted", inserted)
}

// sampleMessages builds a realistic inquiry per category. External
// message IDs make reruns idempotent.
func sampleMessages(accountID int64) []models.Message {
	now := time.Now().UTC()
	samples := []struct {
		id       string
		orderID  string
		sender   string
		subject  string
		body     string
		asin     string
		title    string
		age      time.Duration
	}{
		{
			id:      "seed-shipping-1@sellerdesk.local",
			orderID: "503-1234567-8901234",
			sender:  "田中太郎",
			subject: "商品がまだ届きません",
			body:    "先週注文した商品がまだ届いていません。いつ届きますか？追跡番号を教えていただけますか？",
			asin:    "B0EXAMPLE01",
			title:   "LEDヘッドライト H4 車検対応",
			age:     2 * time.Hour,
		},
		{
			id:      "seed-defect-1@sellerdesk.local",
			orderID: "503-2345678-9012345",
			sender:  "佐藤花子",
			subject: "商品に傷がありました",
			body:    "本日届いた商品を確認したところ、本体に目立つ傷がありました。交換または返金をお願いしたいです。",
			asin:    "B0EXAMPLE02",
			title:   "スマホホルダー 車載用 エアコン取付型",
			age:     time.Hour,
		},
		{
			id:      "seed-receipt-1@sellerdesk.local",
			orderID: "503-3456789-0123456",
			sender:  "鈴木一郎",
			subject: "領収書の発行をお願いします",
			body:    "先日購入した商品の領収書をいただけますでしょうか。宛名は「株式会社ABC」でお願いいたします。",
			asin:    "B0EXAMPLE03",
			title:   "ワイヤレスイヤホン Bluetooth 5.3",
			age:     45 * time.Minute,
		},
		{
			id:      "seed-cancel-1@sellerdesk.local",
			orderID: "503-4567890-1234567",
			sender:  "高橋美咲",
			subject: "注文をキャンセルしたい",
			body:    "昨日注文したのですが、間違えて2個注文してしまいました。1個キャンセルすることはできますか？",
			asin:    "B0EXAMPLE04",
			title:   "USB-C ハブ 7in1 4K HDMI対応",
			age:     30 * time.Minute,
		},
		{
			id:      "seed-spec-1@sellerdesk.local",
			orderID: "503-5678901-2345678",
			sender:  "山田健太",
			subject: "この商品は車検に通りますか？",
			body:    "LEDヘッドライト H4を購入検討中です。こちらの商品は車検に対応していますか？取付工賃は含まれていますか？",
			asin:    "B0EXAMPLE01",
			title:   "LEDヘッドライト H4 車検対応",
			age:     15 * time.Minute,
		},
		{
			id:      "seed-address-1@sellerdesk.local",
			orderID: "503-6789012-3456789",
			sender:  "伊藤裕子",
			subject: "届け先を変更したい",
			body:    "注文後に引っ越しが決まりました。届け先の住所を変更できますか？新しい住所は東京都渋谷区〇〇です。",
			asin:    "B0EXAMPLE05",
			title:   "ポータブル電源 大容量 300W",
			age:     10 * time.Minute,
		},
	}

	messages := make([]models.Message, 0, len(samples))
	for _, s := range samples {
		id := s.id
		messages = append(messages, models.Message{
			AccountID:         accountID,
			ExternalOrderID:   s.orderID,
			ExternalMessageID: &id,
			Sender:            s.sender,
			Subject:           s.subject,
			Body:              s.body,
			Direction:         models.DirectionInbound,
			Status:            models.StatusNew,
			ASIN:              s.asin,
			ProductTitle:      s.title,
			ReceivedAt:        now.Add(-s.age),
		})
	}
	return messages
}
