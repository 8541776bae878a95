package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendTextPostsToMessagesEndpoint(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := MustNew(Config{
		APIToken:      "graph-token",
		PhoneNumberID: "1045",
		GraphURL:      server.URL,
	}, WithHTTPClient(server.Client()))

	if err := client.SendText(context.Background(), "34606523222", "See you Thursday"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}

	if gotPath != "/1045/messages" {
		t.Fatalf("path = %q, want /1045/messages", gotPath)
	}
	if gotAuth != "Bearer graph-token" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotPayload["to"] != "34606523222" || gotPayload["messaging_product"] != "whatsapp" {
		t.Fatalf("payload = %v", gotPayload)
	}
	text, _ := gotPayload["text"].(map[string]any)
	if text["body"] != "See you Thursday" {
		t.Fatalf("text body = %v", text["body"])
	}
}

func TestSendTextSurfacesAPIFailureWithoutLeakingNumber(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"token expired"}}`, http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client := MustNew(Config{
		APIToken:      "stale",
		PhoneNumberID: "1045",
		GraphURL:      server.URL,
	}, WithHTTPClient(server.Client()))

	err := client.SendText(context.Background(), "34606523222", "hi")
	if err == nil {
		t.Fatal("SendText() error = nil, want failure")
	}
	if strings.Contains(err.Error(), "34606523222") {
		t.Fatalf("error leaks the full number: %v", err)
	}
	if !strings.Contains(err.Error(), "***3222") {
		t.Fatalf("error should carry the masked number: %v", err)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{PhoneNumberID: "1045"}); err == nil {
		t.Fatal("NewClient() without token, want error")
	}
	if _, err := NewClient(Config{APIToken: "tok"}); err == nil {
		t.Fatal("NewClient() without phone number id, want error")
	}
}
