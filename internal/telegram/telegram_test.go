package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReplySendsMessage(t *testing.T) {
	var captured sendMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottest-token/sendMessage" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	if err := client.Reply(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if captured.ChatID != 42 || captured.Text != "hello" {
		t.Fatalf("unexpected payload: %+v", captured)
	}
}

func TestReplySurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  403,
			"description": "bot was blocked by the user",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	if err := client.Reply(context.Background(), 42, "hello"); err == nil {
		t.Fatal("expected error from API failure")
	}
}

func TestSetWebhookRegistersURL(t *testing.T) {
	var gotURL, gotSecret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotURL = r.Form.Get("url")
		gotSecret = r.Form.Get("secret_token")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	if err := client.SetWebhook(context.Background(), "https://bot.example/telegram/webhook", "s3cret"); err != nil {
		t.Fatalf("set webhook: %v", err)
	}
	if gotURL != "https://bot.example/telegram/webhook" || gotSecret != "s3cret" {
		t.Fatalf("unexpected form values: url=%q secret=%q", gotURL, gotSecret)
	}
}
