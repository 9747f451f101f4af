package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "test-key", "test-model")
}

func candidateResponse(text string) string {
	payload := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestGenerateContent(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if key := r.URL.Query().Get("key"); key != "test-key" {
			t.Errorf("expected api key in query, got %q", key)
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "hello" {
			t.Errorf("unexpected request contents: %+v", req.Contents)
		}
		w.Write([]byte(candidateResponse("world")))
	})

	text, err := client.GenerateContent(context.Background(), "hello")
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}
	if text != "world" {
		t.Errorf("expected world, got %q", text)
	}
	if gotPath != "/v1beta/models/test-model:generateContent" {
		t.Errorf("unexpected path %q", gotPath)
	}
}

func TestGenerateJSONSetsResponseMIME(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.GenerationConfig == nil || req.GenerationConfig.ResponseMIMEType != "application/json" {
			t.Error("expected json response mime type")
		}
		w.Write([]byte(candidateResponse("```json\n{\"complete\": true}\n```")))
	})

	var out struct {
		Complete bool `json:"complete"`
	}
	if err := client.GenerateJSON(context.Background(), "evaluate", &out); err != nil {
		t.Fatalf("GenerateJSON failed: %v", err)
	}
	if !out.Complete {
		t.Error("expected complete=true after stripping code fences")
	}
}

func TestChatWithHistoryMapsRoles(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		roles := make([]string, len(req.Contents))
		for i, c := range req.Contents {
			roles[i] = c.Role
		}
		want := []string{"user", "user", "model", "user"}
		if len(roles) != len(want) {
			t.Fatalf("expected %d contents, got %d", len(want), len(roles))
		}
		for i := range want {
			if roles[i] != want[i] {
				t.Errorf("content %d: expected role %s, got %s", i, want[i], roles[i])
			}
		}
		w.Write([]byte(candidateResponse("reply")))
	})

	history := []Message{
		{Role: "user", Content: "first question"},
		{Role: "agent", Content: "first answer"},
	}
	reply, err := client.ChatWithHistory(context.Background(), "you are a coach", history, "next question")
	if err != nil {
		t.Fatalf("ChatWithHistory failed: %v", err)
	}
	if reply != "reply" {
		t.Errorf("expected reply, got %q", reply)
	}
}

func TestUpstreamErrorIncludesStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})
	if _, err := client.GenerateContent(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"```json\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"```\n{\"a\": 1}\n```", "{\"a\": 1}"},
		{"  ```json\n{}\n```  ", "{}"},
	}
	for _, tc := range cases {
		if got := StripCodeFences(tc.in); got != tc.want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
