package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/justingibbs/crabgrass-2/internal/llm"
)

// Insight is one finding lifted from a context file.
type Insight struct {
	Quote      string `json:"quote"`
	Relevance  string `json:"relevance"`
	Suggestion string `json:"suggestion"`
}

// ExtractionResult is the outcome of mining a context file for material
// that could strengthen the kernel files.
type ExtractionResult struct {
	Summary  string    `json:"summary"`
	Insights []Insight `json:"insights"`
}

// ContextAgent mines uploaded context files for insights.
type ContextAgent struct {
	llm generator
}

func NewContextAgent(g generator) *ContextAgent {
	return &ContextAgent{llm: g}
}

// ExtractInput describes the file under analysis and how far along the
// idea's kernel is, so the model can target incomplete files.
type ExtractInput struct {
	Filename   string
	Content    string
	Completion map[string]bool // file_type -> is_complete
}

func (a *ContextAgent) Extract(ctx context.Context, input ExtractInput) (ExtractionResult, error) {
	prompt := contextSystemPrompt + "\n\n" + extractionPrompt(input.Filename, input.Content, input.Completion)
	var result ExtractionResult
	if err := a.llm.GenerateJSON(ctx, prompt, &result); err != nil {
		return ExtractionResult{}, fmt.Errorf("extract insights: %w", err)
	}
	return result, nil
}

// Coach discusses a context file with the user.
func (a *ContextAgent) Coach(ctx context.Context, filename, content string, history []llm.Message, userMessage string) (string, error) {
	intro := fmt.Sprintf("Here is the content of the context file %q:\n\n```\n%s\n```\n\nHelp the user apply it to their idea.", filename, content)
	turns := make([]llm.Message, 0, len(history)+1)
	turns = append(turns, llm.Message{Role: "user", Content: intro})
	turns = append(turns, history...)

	response, err := a.llm.ChatWithHistory(ctx, contextSystemPrompt, turns, userMessage)
	if err != nil {
		return "", fmt.Errorf("context coach: %w", err)
	}
	return response, nil
}

// MapToKernel names the kernel file types an insight's relevance text
// mentions, defaulting to challenge when it names none.
func MapToKernel(insight Insight) []string {
	relevance := strings.ToLower(insight.Relevance)
	var types []string
	if strings.Contains(relevance, "summary") {
		types = append(types, "summary")
	}
	if strings.Contains(relevance, "challenge") {
		types = append(types, "challenge")
	}
	if strings.Contains(relevance, "approach") {
		types = append(types, "approach")
	}
	if strings.Contains(relevance, "steps") || strings.Contains(relevance, "coherent") {
		types = append(types, "coherent_steps")
	}
	if len(types) == 0 {
		types = append(types, "challenge")
	}
	return types
}
