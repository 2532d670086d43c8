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

// Package spapi builds authenticated HTTP clients for the Selling Partner
// API. Each seller account carries its own Login-with-Amazon refresh token;
// the oauth2 token source exchanges and renews access tokens transparently.
package spapi

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/sellerdesk/sellerdesk/internal/config"
)

// requestTimeout bounds every SP-API call so a slow collaborator is a
// recoverable failure for that unit of work only.
const requestTimeout = 20 * time.Second

// NewHTTPClient returns an HTTP client whose requests carry a valid LWA
// access token for the given account, refreshing as needed.
func NewHTTPClient(ctx context.Context, tokenURL string, account config.AccountConfig) *http.Client {
	conf := &oauth2.Config{
		ClientID:     account.LWAClientID,
		ClientSecret: account.LWAClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
	client := conf.Client(ctx, &oauth2.Token{RefreshToken: account.RefreshToken})
	client.Timeout = requestTimeout
	return client
}

// Clients builds one authenticated client per account that has LWA
// credentials configured, keyed by account name.
func Clients(ctx context.Context, cfg *config.Config) map[string]*http.Client {
	clients := make(map[string]*http.Client)
	for _, account := range cfg.Accounts {
		if !account.SPAPIConfigured() {
			continue
		}
		clients[account.Name] = NewHTTPClient(ctx, cfg.LWATokenURL, account)
	}
	return clients
}
