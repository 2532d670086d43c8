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

// Package mailbox provides authenticated IMAP search and fetch over a
// seller account's message store. It exposes the two-phase access pattern
// the ingestion pipeline relies on: list candidate UIDs per folder, bulk
// fetch only the Message-ID header of every candidate in one round trip,
// then fully download the survivors.
package mailbox

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// MarketplaceDomain is the sender/recipient domain that marks a message as
// marketplace correspondence in either direction.
const MarketplaceDomain = "marketplace.amazon"

// sentFolders are the known sent-folder naming variants, tried in order.
// The first is the Japanese-locale Gmail name; the client transparently
// encodes it for servers that require modified UTF-7.
var sentFolders = []string{
	"[Gmail]/送信済みメール",
	"[Gmail]/Sent Mail",
}

// Client holds connection parameters for one account's mailbox.
type Client struct {
	host     string
	username string
	password string
}

// NewClient creates a mailbox client for one account credential set.
// host is "imap.example.com:993".
func NewClient(host, username, password string) *Client {
	return &Client{host: host, username: username, password: password}
}

// Session is one authenticated IMAP connection, used for a single
// ingestion cycle and then closed.
type Session struct {
	client *imapclient.Client
}

// Open dials the server and authenticates. The caller must Close the
// returned session.
func (c *Client) Open() (*Session, error) {
	client, err := imapclient.DialTLS(c.host, nil)
	if err != nil {
		return nil, fmt.Errorf("dial IMAP %s: %w", c.host, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("IMAP login for %s: %w", c.username, err)
	}

	return &Session{client: client}, nil
}

// Close logs out and releases the connection.
func (s *Session) Close() {
	_ = s.client.Logout().Wait()
}

// SearchInbox selects INBOX and returns the UIDs of messages from the
// marketplace domain received since the given time.
func (s *Session) SearchInbox(since time.Time) ([]imap.UID, error) {
	if _, err := s.client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("select INBOX: %w", err)
	}
	return s.search(since, "From")
}

// SearchSent selects the account's sent folder, trying the known naming
// variants, and returns the UIDs of messages to the marketplace domain
// since the given time. A missing sent folder is not an error: ok is
// false and the caller treats the account as having no sent folder.
func (s *Session) SearchSent(since time.Time) (uids []imap.UID, ok bool, err error) {
	for _, folder := range sentFolders {
		if _, err := s.client.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
			slog.Debug("sent folder not selectable", "folder", folder, "error", err)
			continue
		}
		uids, err = s.search(since, "To")
		if err != nil {
			return nil, false, err
		}
		return uids, true, nil
	}
	return nil, false, nil
}

func (s *Session) search(since time.Time, headerField string) ([]imap.UID, error) {
	criteria := &imap.SearchCriteria{
		Since: since,
		Header: []imap.SearchCriteriaHeaderField{
			{Key: headerField, Value: MarketplaceDomain},
		},
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("UID search: %w", err)
	}
	return data.AllUIDs(), nil
}

// FetchMessageIDs retrieves only the Message-ID header of every candidate
// in a single fetch command. Full-message download dominates ingestion
// cost, so this one round trip is what makes the dedup pre-check cheap.
// Candidates whose header cannot be read map to an empty string.
func (s *Session) FetchMessageIDs(uids []imap.UID) (map[imap.UID]string, error) {
	ids := make(map[imap.UID]string, len(uids))
	if len(uids) == 0 {
		return ids, nil
	}

	section := &imap.FetchItemBodySection{
		Specifier:    imap.PartSpecifierHeader,
		HeaderFields: []string{"Message-Id"},
		Peek:         true,
	}
	fetchCmd := s.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		raw := buf.FindBodySection(section)
		ids[buf.UID] = parseMessageID(raw)
	}

	if err := fetchCmd.Close(); err != nil {
		return ids, fmt.Errorf("bulk header fetch: %w", err)
	}
	return ids, nil
}

// FetchFull downloads the complete raw message for one UID.
func (s *Session) FetchFull(uid imap.UID) ([]byte, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := s.client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collect message UID %d: %w", uid, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body section", uid)
	}

	if err := fetchCmd.Close(); err != nil {
		return raw, fmt.Errorf("full fetch: %w", err)
	}
	return raw, nil
}

// parseMessageID extracts a trimmed Message-ID value from raw header bytes.
func parseMessageID(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(raw)))
	header, err := reader.ReadMIMEHeader()
	if err != nil && len(header) == 0 {
		return ""
	}
	return strings.TrimSpace(header.Get("Message-Id"))
}
