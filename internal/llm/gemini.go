// Package llm wraps the Google Generative Language API for the coaching agents.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one turn of an agent conversation.
type Message struct {
	Role    string // "user" or "agent"
	Content string
}

// Client calls the Gemini generateContent endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	hc      *http.Client
}

func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		hc:      &http.Client{Timeout: 60 * time.Second},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"response_mime_type,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateContent sends a single-turn prompt and returns the model's text.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	return c.invoke(ctx, req)
}

// GenerateJSON sends a prompt in JSON response mode and unmarshals the
// result into out. Code fences around the payload are tolerated.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, out any) error {
	req := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &generationConfig{ResponseMIMEType: "application/json"},
	}
	text, err := c.invoke(ctx, req)
	if err != nil {
		return err
	}
	cleaned := StripCodeFences(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

// ChatWithHistory sends a system prompt, prior turns, and the new user
// message as one conversation. Agent turns map to the API's "model" role.
func (c *Client) ChatWithHistory(ctx context.Context, systemPrompt string, history []Message, userMessage string) (string, error) {
	contents := make([]geminiContent, 0, len(history)+2)
	if systemPrompt != "" {
		contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: systemPrompt}}})
	}
	for _, m := range history {
		role := "user"
		if m.Role == "agent" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: userMessage}}})
	return c.invoke(ctx, geminiRequest{Contents: contents})
}

func (c *Client) invoke(ctx context.Context, payload geminiRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("gemini upstream %d: %s", resp.StatusCode, strings.TrimSpace(string(slurp)))
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return gr.Candidates[0].Content.Parts[0].Text, nil
}

// StripCodeFences removes a surrounding markdown code fence, with or
// without a language tag, from a model response.
func StripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line if present.
		first := strings.TrimSpace(trimmed[:idx])
		if first == "" || !strings.ContainsAny(first, " \t") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
