package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/user/synapse/pkg/llm"
)

func TestCompleteTextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("unexpected model: %s", req.Model)
		}
		if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hi there"}},
			},
			"usage": map[string]int{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		})
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, APIKey: "test-key", Model: "test-model"})
	resp, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "hello"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hi there" {
		t.Errorf("unexpected content: %s", resp.Content)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestCompleteToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role":    "assistant",
					"content": "",
					"tool_calls": []map[string]any{
						{
							"id":   "call_1",
							"type": "function",
							"function": map[string]any{
								"name":      "web_search",
								"arguments": `{"query":"go"}`,
							},
						},
					},
				}},
			},
		})
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, APIKey: "k", Model: "m"})
	resp, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "search go"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Function.Name != "web_search" {
		t.Errorf("unexpected tool name: %s", resp.ToolCalls[0].Function.Name)
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(resp.ToolCalls[0].Function.Arguments, &args); err != nil {
		t.Fatalf("arguments not normalized to a JSON object: %v", err)
	}
	if args.Query != "go" {
		t.Errorf("unexpected query argument: %s", args.Query)
	}
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(&llm.Config{BaseURL: server.URL, APIKey: "k", Model: "m"})
	if _, err := client.Complete(context.Background(), []llm.Message{{Role: "user", Content: "x"}}, nil); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
