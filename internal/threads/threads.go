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

// Package threads reconstructs conversation threads on read. A thread is
// the set of inbound messages from one sender to one account; nothing is
// persisted, since message status changes independently of membership.
package threads

import (
	"context"
	"fmt"

	"github.com/sellerdesk/sellerdesk/internal/models"
	"github.com/sellerdesk/sellerdesk/internal/store"
)

// Store is the read surface thread reconstruction needs.
type Store interface {
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	ThreadMessages(ctx context.Context, accountID int64, sender string) ([]models.Message, error)
	ListResponses(ctx context.Context, messageID int64) ([]models.AiResponse, error)
	ListInbound(ctx context.Context, f store.MessageFilter) ([]models.Message, error)
}

// Entry pairs one inbound message with its ordered AI response history.
type Entry struct {
	Message   models.Message      `json:"message"`
	Responses []models.AiResponse `json:"responses"`
}

// Thread is a reconstructed conversation: all inbound messages for one
// (account, sender) pair in ascending received order, plus the distinct
// order IDs observed across them.
type Thread struct {
	OrderID  string   `json:"order_id,omitempty"`
	OrderIDs []string `json:"order_ids"`
	Entries  []Entry  `json:"thread"`
}

// Service reconstructs threads and computes list representatives.
type Service struct {
	store Store
}

// NewService creates a thread service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Build returns the full thread containing the given inbound message.
func (s *Service) Build(ctx context.Context, messageID int64) (*Thread, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.ThreadMessages(ctx, msg.AccountID, msg.Sender)
	if err != nil {
		return nil, fmt.Errorf("load thread messages: %w", err)
	}

	thread := &Thread{OrderIDs: []string{}}
	seen := make(map[string]struct{})
	for _, m := range messages {
		responses, err := s.store.ListResponses(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("load responses for message %d: %w", m.ID, err)
		}
		thread.Entries = append(thread.Entries, Entry{Message: m, Responses: responses})

		if m.ExternalOrderID != "" {
			if _, dup := seen[m.ExternalOrderID]; !dup {
				seen[m.ExternalOrderID] = struct{}{}
				thread.OrderIDs = append(thread.OrderIDs, m.ExternalOrderID)
			}
		}
	}

	if len(thread.OrderIDs) == 1 {
		thread.OrderID = thread.OrderIDs[0]
	}
	return thread, nil
}

// List returns one representative message per thread, newest thread first,
// with the thread size attached. The representative is the earliest
// still-new message in the group, else the group's most recent message.
func (s *Service) List(ctx context.Context, f store.MessageFilter, skip, limit int) ([]models.Message, error) {
	messages, err := s.store.ListInbound(ctx, f)
	if err != nil {
		return nil, err
	}

	type group struct {
		key      string
		messages []models.Message
	}
	index := make(map[string]int)
	var groups []group
	for _, m := range messages {
		key := fmt.Sprintf("%d_%s", m.AccountID, m.Sender)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{key: key})
		}
		groups[i].messages = append(groups[i].messages, m)
	}

	var result []models.Message
	for _, g := range groups {
		// Messages arrive newest first; the last new one is the earliest.
		rep := g.messages[0]
		for _, m := range g.messages {
			if m.Status == models.StatusNew {
				rep = m
			}
		}
		rep.ThreadCount = len(g.messages)
		result = append(result, rep)
	}

	if skip >= len(result) {
		return []models.Message{}, nil
	}
	result = result[skip:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
