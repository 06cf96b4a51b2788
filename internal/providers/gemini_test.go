package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiWireFormat(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-2.5-flash:generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		fmt.Fprint(w, `{"candidates": [{"content": {"parts": [{"text": "done"}]}, "finishReason": "STOP"}]}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider("test-key", WithGeminiBaseURL(srv.URL))
	_, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "checking", ToolCalls: []ToolCall{
				{ID: "call_execute_shell_0", Name: "execute_shell", Arguments: map[string]interface{}{"command": "ls"}},
			}},
			{Role: "tool", ToolName: "execute_shell", Content: "stdout:\nx\n"},
		},
		Tools: []ToolDefinition{{
			Type:     "function",
			Function: ToolFunctionSchema{Name: "execute_shell", Parameters: map[string]interface{}{"type": "object"}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	si := captured["system_instruction"].(map[string]interface{})
	parts := si["parts"].([]interface{})
	if parts[0].(map[string]interface{})["text"] != "be terse" {
		t.Errorf("system_instruction = %v", si)
	}

	contents := captured["contents"].([]interface{})
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}

	asst := contents[1].(map[string]interface{})
	if asst["role"] != "model" {
		t.Errorf("assistant role = %v", asst["role"])
	}
	asstParts := asst["parts"].([]interface{})
	if len(asstParts) != 2 {
		t.Fatalf("assistant parts = %d", len(asstParts))
	}
	fc := asstParts[1].(map[string]interface{})["functionCall"].(map[string]interface{})
	if fc["name"] != "execute_shell" {
		t.Errorf("functionCall = %v", fc)
	}

	toolTurn := contents[2].(map[string]interface{})
	fr := toolTurn["parts"].([]interface{})[0].(map[string]interface{})["functionResponse"].(map[string]interface{})
	if fr["name"] != "execute_shell" {
		t.Errorf("functionResponse = %v", fr)
	}

	tools := captured["tools"].([]interface{})
	decls := tools[0].(map[string]interface{})["functionDeclarations"].([]interface{})
	if len(decls) != 1 {
		t.Errorf("functionDeclarations = %v", decls)
	}
}

func TestGeminiParsesFunctionCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"candidates": [{
				"content": {"parts": [
					{"text": "Let me check."},
					{"functionCall": {"name": "execute_shell", "args": {"command": "free -m"}}}
				]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"promptTokenCount": 30, "candidatesTokenCount": 10, "totalTokenCount": 40}
		}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider("k", WithGeminiBaseURL(srv.URL))
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "memory?"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if resp.Content != "Let me check." {
		t.Errorf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "execute_shell" || tc.Arguments["command"] != "free -m" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.ID == "" {
		t.Error("synthesized tool call ID is empty")
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish_reason = %q", resp.FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 40 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestGeminiStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "alt=sse") {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"candidates": [{"content": {"parts": [{"text": "Hello"}]}}]}`,
			`{"candidates": [{"content": {"parts": [{"text": " there"}]}, "finishReason": "STOP"}], "usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 2, "totalTokenCount": 6}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
	}))
	defer srv.Close()

	p := NewGeminiProvider("k", WithGeminiBaseURL(srv.URL))
	var streamed string
	resp, err := p.ChatStream(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, func(c StreamChunk) { streamed += c.Content })
	if err != nil {
		t.Fatal(err)
	}

	if streamed != "Hello there" || resp.Content != "Hello there" {
		t.Errorf("streamed = %q content = %q", streamed, resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 6 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestFactory(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
		wantErr  bool
	}{
		{"google", "google", false},
		{"gemini", "google", false},
		{"anthropic", "anthropic", false},
		{"openai", "openai", false},
		{"openrouter", "openrouter", false},
		{"xai", "xai", false},
		{"cohere", "", true},
	}
	for _, tt := range tests {
		p, err := New(tt.provider, "key", "", "")
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%q): want error", tt.provider)
			}
			continue
		}
		if err != nil {
			t.Errorf("New(%q): %v", tt.provider, err)
			continue
		}
		if p.Name() != tt.wantName {
			t.Errorf("New(%q).Name() = %q", tt.provider, p.Name())
		}
	}

	if _, err := New("openai", "", "", ""); err == nil {
		t.Error("empty API key should error")
	}
}
