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

// Package extract parses raw transport messages into normalized inbound or
// outbound records. Parsing never panics or lets an error escape per
// candidate: a message that does not look like marketplace correspondence
// is a rejection (nil record), not an error.
package extract

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	_ "github.com/emersion/go-message/charset"
)

var (
	// Amazon order identifiers: 3-7-7 digit groups.
	orderIDPattern = regexp.MustCompile(`\d{3}-\d{7}-\d{7}`)

	// ASIN marker embedded in notification bodies.
	asinPattern = regexp.MustCompile(`\[ASIN:\s*(B[A-Z0-9]+)\]`)

	// Product title on the line between the order header and the ASIN marker.
	productTitlePattern = regexp.MustCompile(`# \d{3}-\d{7}-\d{7}:\n\d+ / (.+?)\s*\[ASIN:`)

	// Encrypted buyer alias in the reply-routing header
	// (e.g. xyz123@marketplace.amazon.co.jp).
	replyAliasPattern = regexp.MustCompile(`[\w.+-]+@marketplace\.amazon\.[\w.]+`)

	// Delimiter lines that bracket the customer's own text in a
	// notification body.
	delimiterPattern = regexp.MustCompile(`^-{5,}.*-{5,}$`)

	// Quote headers that start the quoted tail of a reply.
	quoteHeaderPattern = regexp.MustCompile(`^(On |>|---.*---$|20\d{2}/\d{1,2}/\d{1,2}.*wrote:)`)
)

// Inbound is a normalized customer message extracted from a marketplace
// notification email.
type Inbound struct {
	MessageID      string
	Sender         string
	Subject        string
	OrderID        string
	ASIN           string
	ProductTitle   string
	Body           string
	ReplyToAddress string
	ReceivedAt     time.Time
}

// Outbound is a normalized staff reply extracted from a sent email.
type Outbound struct {
	MessageID  string
	Subject    string
	OrderID    string
	Body       string
	ReceivedAt time.Time
}

// ParseInbound extracts a normalized inbound record from a raw transport
// message. It returns (nil, nil) when the message is not marketplace
// correspondence or carries no extractable customer text.
func ParseInbound(raw []byte) (*Inbound, error) {
	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	from, _ := r.Header.Text("From")
	if !strings.Contains(from, marketplaceDomain) {
		return nil, nil
	}

	body := plainText(r)
	if body == "" {
		return nil, nil
	}

	customerText := delimitedBody(body)
	if customerText == "" {
		return nil, nil
	}

	subject, _ := r.Header.Subject()

	rec := &Inbound{
		MessageID:  messageID(r.Header),
		Sender:     senderName(from),
		Subject:    subject,
		OrderID:    orderIDPattern.FindString(subject + body),
		Body:       customerText,
		ReceivedAt: receivedAt(r.Header),
	}

	if m := asinPattern.FindStringSubmatch(body); m != nil {
		rec.ASIN = m[1]
	}
	if m := productTitlePattern.FindStringSubmatch(body); m != nil {
		rec.ProductTitle = strings.TrimSpace(m[1])
	}

	replyTo, _ := r.Header.Text("Reply-To")
	rec.ReplyToAddress = replyAliasPattern.FindString(replyTo)

	return rec, nil
}

// ParseOutbound extracts a normalized record from a sent reply. It returns
// (nil, nil) when the recipient is not the marketplace domain or nothing
// remains after quote trimming.
func ParseOutbound(raw []byte) (*Outbound, error) {
	r, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	to, _ := r.Header.Text("To")
	if !strings.Contains(to, marketplaceDomain) {
		return nil, nil
	}

	body := plainText(r)
	if body == "" {
		return nil, nil
	}

	text := trimQuotedTail(body)
	if text == "" {
		return nil, nil
	}

	subject, _ := r.Header.Subject()

	return &Outbound{
		MessageID:  messageID(r.Header),
		Subject:    subject,
		OrderID:    orderIDPattern.FindString(subject + body),
		Body:       text,
		ReceivedAt: receivedAt(r.Header),
	}, nil
}

const marketplaceDomain = "marketplace.amazon"

// senderName returns the display-name token preceding the first address
// delimiter, or the unknown-sender placeholder.
func senderName(from string) string {
	if i := strings.Index(from, "<"); i > 0 {
		if name := strings.TrimSpace(strings.Trim(from[:i], `" `)); name != "" {
			return name
		}
	}
	return "不明"
}

// delimitedBody isolates the customer's own text between the two delimiter
// lines of a notification body.
func delimitedBody(body string) string {
	var msgLines []string
	inMsg := false
	for _, line := range strings.Split(body, "\n") {
		if delimiterPattern.MatchString(strings.TrimSpace(line)) {
			if !inMsg {
				inMsg = true
				continue
			}
			break
		}
		if inMsg {
			msgLines = append(msgLines, line)
		}
	}
	return strings.TrimSpace(strings.Join(msgLines, "\n"))
}

// trimQuotedTail truncates a reply body at the first quote-header line.
func trimQuotedTail(body string) string {
	var clean []string
	for _, line := range strings.Split(body, "\n") {
		if quoteHeaderPattern.MatchString(strings.TrimSpace(line)) {
			break
		}
		clean = append(clean, line)
	}
	return strings.TrimSpace(strings.Join(clean, "\n"))
}

// plainText returns the first text/plain part of the message, decoded.
func plainText(r *mail.Reader) string {
	for {
		part, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			return ""
		}
		if err != nil {
			return ""
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, err := header.ContentType()
		if err == nil && mediaType != "text/plain" {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			return ""
		}
		// Mail bodies arrive with CRLF line endings; the extraction
		// patterns work on bare newlines.
		return strings.ReplaceAll(string(data), "\r\n", "\n")
	}
}

func messageID(h mail.Header) string {
	id, _ := h.Text("Message-Id")
	return strings.TrimSpace(id)
}

// receivedAt returns the Date header in UTC, or the current time when the
// header is missing or unparseable.
func receivedAt(h mail.Header) time.Time {
	if date, err := h.Date(); err == nil && !date.IsZero() {
		return date.UTC()
	}
	return time.Now().UTC()
}
