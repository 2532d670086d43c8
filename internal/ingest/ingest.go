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

// Package ingest orchestrates the per-account fetch cycle: list candidate
// messages in the inbox and sent folder, filter duplicates with a bulk
// header pre-check, fully download and parse the survivors, and persist
// the new records. Account-level errors are collected into a report and
// never raised to the scheduler.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/sellerdesk/sellerdesk/internal/config"
	"github.com/sellerdesk/sellerdesk/internal/extract"
	"github.com/sellerdesk/sellerdesk/internal/mailbox"
	"github.com/sellerdesk/sellerdesk/internal/models"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	GetOrCreateAccount(ctx context.Context, name, channel string) (*models.Account, error)
	ExistingMessageIDs(ctx context.Context, accountID int64) (map[string]struct{}, error)
	HasFallbackDuplicate(ctx context.Context, accountID int64, receivedAt time.Time, subject string) (bool, error)
	InsertMessage(ctx context.Context, m *models.Message) (bool, error)
}

// Session is one authenticated mailbox connection for an account cycle.
type Session interface {
	SearchInbox(since time.Time) ([]imap.UID, error)
	SearchSent(since time.Time) ([]imap.UID, bool, error)
	FetchMessageIDs(uids []imap.UID) (map[imap.UID]string, error)
	FetchFull(uid imap.UID) ([]byte, error)
	Close()
}

// AccountResult reports the outcome of one account's fetch cycle.
type AccountResult struct {
	Account string `json:"account"`
	Fetched int    `json:"fetched"`
	New     int    `json:"new"`
	Err     string `json:"error,omitempty"`
}

// Report summarises a full ingestion cycle across all accounts.
type Report struct {
	Results  []AccountResult `json:"accounts"`
	TotalNew int             `json:"total_new"`
}

// Pipeline runs ingestion cycles for the configured accounts.
type Pipeline struct {
	store    Store
	seen     *SeenFilter
	accounts []config.AccountConfig
	lookback time.Duration
	dial     func(config.AccountConfig) (Session, error)
}

// Config holds dependencies for the pipeline.
type Config struct {
	Store    Store
	Seen     *SeenFilter // optional fast-path filter
	Accounts []config.AccountConfig
	IMAPHost string
	Lookback time.Duration

	// Dial overrides the mailbox connection factory, for tests.
	Dial func(config.AccountConfig) (Session, error)
}

// New creates an ingestion pipeline.
func New(cfg Config) *Pipeline {
	dial := cfg.Dial
	if dial == nil {
		dial = func(a config.AccountConfig) (Session, error) {
			return mailbox.NewClient(cfg.IMAPHost, a.MailAddress, a.MailPassword).Open()
		}
	}
	lookback := cfg.Lookback
	if lookback == 0 {
		lookback = 90 * 24 * time.Hour
	}
	return &Pipeline{
		store:    cfg.Store,
		seen:     cfg.Seen,
		accounts: cfg.Accounts,
		lookback: lookback,
		dial:     dial,
	}
}

// RunAll executes one fetch cycle for every configured account,
// sequentially. Per-account failures are recorded in the report, never
// propagated.
func (p *Pipeline) RunAll(ctx context.Context) *Report {
	report := &Report{}
	for _, account := range p.accounts {
		result := p.runAccount(ctx, account)
		report.Results = append(report.Results, result)
		report.TotalNew += result.New
	}
	return report
}

// runAccount performs the fetch cycle for a single account.
func (p *Pipeline) runAccount(ctx context.Context, cfg config.AccountConfig) AccountResult {
	result := AccountResult{Account: cfg.Name}

	if !cfg.MailConfigured() {
		result.Err = "mailbox credentials not configured"
		return result
	}

	account, err := p.store.GetOrCreateAccount(ctx, cfg.Name, cfg.Channel)
	if err != nil {
		result.Err = fmt.Sprintf("load account: %v", err)
		return result
	}

	sess, err := p.dial(cfg)
	if err != nil {
		slog.Error("mailbox connect failed", "account", cfg.Name, "error", err)
		result.Err = fmt.Sprintf("mailbox connect: %v", err)
		return result
	}
	defer sess.Close()

	since := time.Now().UTC().Add(-p.lookback)

	inboxUIDs, err := sess.SearchInbox(since)
	if err != nil {
		result.Err = fmt.Sprintf("search inbox: %v", err)
		return result
	}
	fetched, newCount := p.processCandidates(ctx, sess, account, inboxUIDs, models.DirectionInbound)
	result.Fetched += fetched
	result.New += newCount

	sentUIDs, ok, err := sess.SearchSent(since)
	if err != nil {
		// Inbox results still count; surface the sent-folder failure.
		result.Err = fmt.Sprintf("search sent folder: %v", err)
		return result
	}
	if !ok {
		slog.Info("no sent folder available", "account", cfg.Name)
	} else {
		fetched, newCount = p.processCandidates(ctx, sess, account, sentUIDs, models.DirectionOutbound)
		result.Fetched += fetched
		result.New += newCount
	}

	slog.Info("account fetch cycle complete",
		"account", cfg.Name,
		"fetched", result.Fetched,
		"new", result.New,
	)
	return result
}

// processCandidates runs the two-phase candidate processing for one folder:
// bulk header pre-check first, full download and parse only for survivors.
func (p *Pipeline) processCandidates(ctx context.Context, sess Session, account *models.Account, uids []imap.UID, direction string) (fetched, newCount int) {
	if len(uids) == 0 {
		return 0, 0
	}

	existing, err := p.store.ExistingMessageIDs(ctx, account.ID)
	if err != nil {
		slog.Error("load existing message IDs failed", "account", account.Name, "error", err)
		return 0, 0
	}

	// Phase 1: one round trip for every candidate's Message-ID header.
	headerIDs, err := sess.FetchMessageIDs(uids)
	if err != nil {
		slog.Warn("bulk header fetch failed, falling back to full fetch for all candidates",
			"account", account.Name,
			"direction", direction,
			"error", err,
		)
		headerIDs = make(map[imap.UID]string, len(uids))
	}

	type candidate struct {
		uid   imap.UID
		preID string
	}
	var survivors []candidate
	for _, uid := range uids {
		preID := headerIDs[uid]
		if preID != "" {
			if _, dup := existing[preID]; dup {
				continue
			}
			if p.seen.Contains(ctx, account.Name, preID) {
				continue
			}
		}
		survivors = append(survivors, candidate{uid: uid, preID: preID})
	}

	slog.Info("candidate pre-check complete",
		"account", account.Name,
		"direction", direction,
		"candidates", len(uids),
		"new", len(survivors),
		"skipped", len(uids)-len(survivors),
	)

	// Phase 2: full download and parse for survivors only. A failure on
	// one candidate is logged and skipped, never aborts the cycle.
	for _, c := range survivors {
		select {
		case <-ctx.Done():
			return fetched, newCount
		default:
		}

		raw, err := sess.FetchFull(c.uid)
		if err != nil {
			slog.Warn("full fetch failed", "account", account.Name, "uid", c.uid, "error", err)
			continue
		}

		msg, err := p.buildMessage(raw, account, direction, c.preID)
		if err != nil {
			slog.Warn("message parse failed",
				"account", account.Name,
				"uid", c.uid,
				"direction", direction,
				"error", err,
			)
			continue
		}
		if msg == nil {
			continue // parse rejection, a normal skip
		}
		fetched++

		// Re-check dedup immediately before insert to close the window
		// between the bulk pre-check and the full fetch.
		var externalID string
		if msg.ExternalMessageID != nil {
			externalID = *msg.ExternalMessageID
		}
		if externalID != "" {
			if _, dup := existing[externalID]; dup {
				continue
			}
		} else {
			dup, err := p.store.HasFallbackDuplicate(ctx, account.ID, msg.ReceivedAt, msg.Subject)
			if err != nil {
				slog.Warn("fallback dedup check failed", "account", account.Name, "error", err)
			} else if dup {
				continue
			}
		}

		inserted, err := p.store.InsertMessage(ctx, msg)
		if err != nil {
			slog.Error("persist message failed", "account", account.Name, "uid", c.uid, "error", err)
			continue
		}
		if !inserted {
			continue
		}
		newCount++

		if externalID != "" {
			existing[externalID] = struct{}{}
			if err := p.seen.Add(ctx, account.Name, externalID); err != nil {
				slog.Debug("seen filter update failed", "error", err)
			}
		}
	}

	return fetched, newCount
}

// buildMessage parses a raw transport message into a Message record for
// the given direction. A nil message with nil error is a rejection.
func (p *Pipeline) buildMessage(raw []byte, account *models.Account, direction, preID string) (*models.Message, error) {
	if direction == models.DirectionInbound {
		parsed, err := extract.ParseInbound(raw)
		if err != nil || parsed == nil {
			return nil, err
		}
		return &models.Message{
			AccountID:         account.ID,
			ExternalOrderID:   parsed.OrderID,
			ExternalMessageID: nullable(firstOf(parsed.MessageID, preID)),
			Sender:            parsed.Sender,
			Subject:           parsed.Subject,
			Body:              parsed.Body,
			Direction:         models.DirectionInbound,
			Status:            models.StatusNew,
			ASIN:              parsed.ASIN,
			ProductTitle:      parsed.ProductTitle,
			ReplyToAddress:    parsed.ReplyToAddress,
			ReceivedAt:        parsed.ReceivedAt,
		}, nil
	}

	parsed, err := extract.ParseOutbound(raw)
	if err != nil || parsed == nil {
		return nil, err
	}
	return &models.Message{
		AccountID:         account.ID,
		ExternalOrderID:   parsed.OrderID,
		ExternalMessageID: nullable(firstOf(parsed.MessageID, preID)),
		Sender:            account.Name,
		Subject:           parsed.Subject,
		Body:              parsed.Body,
		Direction:         models.DirectionOutbound,
		Status:            models.StatusSent,
		ReceivedAt:        parsed.ReceivedAt,
	}, nil
}

func firstOf(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
