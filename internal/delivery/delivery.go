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

// Package delivery sends replies to the marketplace relay alias over
// SMTPS. The marketplace forwards the mail to the buyer; the seller's
// real address never reaches the customer.
package delivery

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/sellerdesk/sellerdesk/internal/config"
)

// ErrNotConfigured reports a send attempt for an account without mail
// credentials.
var ErrNotConfigured = errors.New("mail credentials not configured")

// Sender submits composed replies through the configured SMTPS host.
type Sender struct {
	host string
	log  *slog.Logger
}

func NewSender(host string, log *slog.Logger) *Sender {
	return &Sender{host: host, log: log}
}

// SendReply delivers one reply for the given account. The subject gains
// a "Re:" prefix when missing, and inReplyTo (the inbound message's
// Message-ID) threads the reply on the buyer's side.
func (s *Sender) SendReply(account config.AccountConfig, to, subject, body, inReplyTo string) error {
	if !account.MailConfigured() {
		return fmt.Errorf("delivery for %s: %w", account.Name, ErrNotConfigured)
	}
	if to == "" {
		return fmt.Errorf("delivery: no reply alias for %s", account.Name)
	}

	if subject == "" {
		subject = "Amazon お問い合わせ"
	}
	if !strings.HasPrefix(subject, "Re:") {
		subject = "Re: " + subject
	}

	raw, err := compose(account.MailAddress, to, subject, body, inReplyTo)
	if err != nil {
		return fmt.Errorf("composing reply: %w", err)
	}

	client, err := smtp.DialTLS(s.host, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", s.host, err)
	}
	defer client.Close()

	auth := sasl.NewPlainClient("", account.MailAddress, account.MailPassword)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("authenticating %s: %w", account.MailAddress, err)
	}
	if err := client.SendMail(account.MailAddress, []string{to}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	if err := client.Quit(); err != nil {
		s.log.Warn("smtp quit failed", "error", err)
	}

	s.log.Info("reply sent", "account", account.Name, "to", to, "subject", subject)
	return nil
}

func compose(from, to, subject, body, inReplyTo string) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetSubject(subject)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetMessageID(newMessageID(from))
	if inReplyTo != "" {
		id := strings.Trim(inReplyTo, "<>")
		h.SetMsgIDList("In-Reply-To", []string{id})
		h.SetMsgIDList("References", []string{id})
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// newMessageID builds a globally unique Message-ID using the sending
// address's domain.
func newMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 {
		domain = from[at+1:]
	}
	return uuid.NewString() + "@" + domain
}
