package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/justingibbs/crabgrass-2/internal/llm"
)

// FeedbackTasksFilename is the context file the coherence agent maintains.
const FeedbackTasksFilename = "feedback-tasks.md"

// CoherenceAgent reviews all four kernel files together and maintains a
// feedback-tasks.md document of cross-file inconsistencies.
type CoherenceAgent struct {
	llm generator
	now func() time.Time
}

func NewCoherenceAgent(g generator) *CoherenceAgent {
	return &CoherenceAgent{llm: g, now: time.Now}
}

// CoherenceInput is the material for one coherence review.
type CoherenceInput struct {
	Kernel           map[string]string // file_type -> content
	PreviousFeedback string            // existing feedback-tasks.md, empty if none
	CompleteCount    int
}

// Evaluate produces the updated feedback-tasks.md content.
func (a *CoherenceAgent) Evaluate(ctx context.Context, input CoherenceInput) (string, error) {
	previous := input.PreviousFeedback
	if previous == "" {
		previous = "No previous feedback available."
	}
	timestamp := a.now().UTC().Format("2006-01-02 15:04 UTC")

	prompt := coherenceSystemPrompt + "\n\n" +
		coherencePrompt(input.Kernel, previous, timestamp, input.CompleteCount)
	feedback, err := a.llm.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("coherence evaluate: %w", err)
	}
	return llm.StripCodeFences(feedback), nil
}

// Coach answers a user question about cross-file coherence.
func (a *CoherenceAgent) Coach(ctx context.Context, input CoherenceInput, history []llm.Message, userMessage string) (string, error) {
	intro := coherencePrompt(input.Kernel, "See the conversation.", a.now().UTC().Format("2006-01-02 15:04 UTC"), input.CompleteCount)
	turns := make([]llm.Message, 0, len(history)+1)
	turns = append(turns, llm.Message{Role: "user", Content: intro})
	turns = append(turns, history...)

	response, err := a.llm.ChatWithHistory(ctx, coherenceSystemPrompt, turns, userMessage)
	if err != nil {
		return "", fmt.Errorf("coherence coach: %w", err)
	}
	return response, nil
}
