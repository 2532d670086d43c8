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
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sellerdesk/sellerdesk/internal/store"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-key", "claude-sonnet-4-5-20250929", slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetBaseURL(srv.URL)
	return c
}

func completionResponse(text string, inTokens, outTokens int) string {
	return fmt.Sprintf(`{"model":"claude-sonnet-4-5-20250929","content":[{"type":"text","text":%q}],"usage":{"input_tokens":%d,"output_tokens":%d}}`,
		text, inTokens, outTokens)
}

func TestGenerateDraft(t *testing.T) {
	var gotBody map[string]any
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Error("api key header missing")
		}
		if r.Header.Get("Anthropic-Version") == "" {
			t.Error("version header missing")
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, completionResponse("お問い合わせありがとうございます。", 1200, 340))
	})

	result, err := client.GenerateDraft(context.Background(), "注文番号: 503-1234567-8901234")
	if err != nil {
		t.Fatalf("GenerateDraft: %v", err)
	}
	if result.Text != "お問い合わせありがとうございます。" {
		t.Errorf("text = %q", result.Text)
	}
	if result.InputTokens != 1200 || result.OutputTokens != 340 {
		t.Errorf("usage = %d/%d", result.InputTokens, result.OutputTokens)
	}
	if result.Model != "claude-sonnet-4-5-20250929" {
		t.Errorf("model = %q", result.Model)
	}

	if system, _ := gotBody["system"].(string); system == "" {
		t.Error("system prompt missing")
	}
	if gotBody["max_tokens"].(float64) != draftMaxTokens {
		t.Errorf("max_tokens = %v", gotBody["max_tokens"])
	}
}

func TestGenerateDraftSurfacesFailures(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
	})
	if _, err := client.GenerateDraft(context.Background(), "x"); err == nil {
		t.Fatal("expected error from a failed completion")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"plain json", `{"category": "shipping"}`, "shipping"},
		{"code fence", "```json\n{\"category\": \"defect\"}\n```", "defect"},
		{"unknown key falls back", `{"category": "weather"}`, FallbackCategory},
		{"garbage falls back", "shipping probably", FallbackCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, completionResponse(tt.response, 50, 10))
			})
			got := client.Classify(context.Background(), "いつ届きますか", "配送について", nil)
			if got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyIncludesCorrections(t *testing.T) {
	var prompt string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		prompt = body.Messages[0].Content
		fmt.Fprint(w, completionResponse(`{"category": "defect"}`, 50, 10))
	})

	corrections := []store.CategoryCorrection{
		{MessageSummary: "傷がありました", AICategory: "shipping", CorrectCategory: "defect"},
	}
	client.Classify(context.Background(), "壊れています", "", corrections)

	if !strings.Contains(prompt, "傷がありました") {
		t.Errorf("correction history missing from prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "shipping → スタッフ修正: defect") {
		t.Errorf("correction mapping missing from prompt:\n%s", prompt)
	}
}

func TestClassifyFailsOpen(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	if got := client.Classify(context.Background(), "body", "", nil); got != FallbackCategory {
		t.Errorf("Classify = %q, want fallback", got)
	}
}
