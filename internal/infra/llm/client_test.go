package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Complete(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Temos sim! ||| Pedir"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := NewClient(Options{APIKey: "test", BaseURL: server.URL + "/v1/"})
	reply, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "prompt"},
		{Role: RoleUser, Content: "tem heineken?"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if reply != "Temos sim! ||| Pedir" {
		t.Errorf("Unexpected reply: %q", reply)
	}

	if got.Model != defaultModel {
		t.Errorf("Expected model %s, got %s", defaultModel, got.Model)
	}
	if got.MaxTokens != defaultMaxTokens {
		t.Errorf("Expected max_tokens %d, got %d", defaultMaxTokens, got.MaxTokens)
	}
	if len(got.Messages) != 2 || got.Messages[1].Role != RoleUser {
		t.Errorf("Unexpected messages: %+v", got.Messages)
	}
}

func TestClient_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	client := NewClient(Options{APIKey: "test", BaseURL: server.URL})
	if _, err := client.Complete(context.Background(), nil); err == nil {
		t.Error("Expected error for empty choices")
	}
}

func TestClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer server.Close()

	client := NewClient(Options{APIKey: "test", BaseURL: server.URL})
	if _, err := client.Complete(context.Background(), nil); err == nil {
		t.Error("Expected error for HTTP 500")
	}
}
