package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/justingibbs/crabgrass-2/internal/llm"
)

// ObjectiveAgent helps org admins shape objectives and reports how linked
// ideas align with them.
type ObjectiveAgent struct {
	llm generator
}

func NewObjectiveAgent(g generator) *ObjectiveAgent {
	return &ObjectiveAgent{llm: g}
}

var objectiveCriteria = []string{"clear", "measurable", "time_bound"}

type objectiveEvalResponse struct {
	Clear              bool   `json:"clear"`
	ClearFeedback      string `json:"clear_feedback"`
	Measurable         bool   `json:"measurable"`
	MeasurableFeedback string `json:"measurable_feedback"`
	TimeBound          bool   `json:"time_bound"`
	TimeBoundFeedback  string `json:"time_bound_feedback"`
	OverallFeedback    string `json:"overall_feedback"`
}

func (r *objectiveEvalResponse) evaluation() Evaluation {
	return buildEvaluation(r.OverallFeedback,
		CriterionResult{Name: "clear", Met: r.Clear, Feedback: r.ClearFeedback},
		CriterionResult{Name: "measurable", Met: r.Measurable, Feedback: r.MeasurableFeedback},
		CriterionResult{Name: "time_bound", Met: r.TimeBound, Feedback: r.TimeBoundFeedback},
	)
}

// Evaluate judges an objective description for clarity, measurability,
// and a bounded timeframe.
func (a *ObjectiveAgent) Evaluate(ctx context.Context, content string) (Evaluation, error) {
	if tooShort(content) {
		eval := Evaluation{OverallFeedback: "The objective is still in its early stages. Describe the goal, how success is measured, and by when."}
		for _, c := range objectiveCriteria {
			eval.Criteria = append(eval.Criteria, CriterionResult{Name: c})
		}
		return eval, nil
	}

	prompt := objectiveSystemPrompt + "\n\n" + evaluationPrompt("Objective", content, objectiveCriteria, "")
	resp := &objectiveEvalResponse{}
	if err := a.llm.GenerateJSON(ctx, prompt, resp); err != nil {
		return Evaluation{}, fmt.Errorf("evaluate objective: %w", err)
	}
	return resp.evaluation(), nil
}

// LinkedIdea is the slice of an idea the alignment summary needs.
type LinkedIdea struct {
	Title            string
	Status           string
	KernelCompletion int
}

// SummarizeAlignment reports how the linked ideas support the objective.
// With no linked ideas it returns a canned recommendation without calling
// the model.
func (a *ObjectiveAgent) SummarizeAlignment(ctx context.Context, title, timeframe, objectiveContent string, ideas []LinkedIdea) (string, error) {
	if len(ideas) == 0 {
		return fmt.Sprintf(`## Alignment Summary for %q

No ideas are currently linked to this objective.

**Recommendation**: Start linking ideas that could contribute to achieving this objective. Consider:
- What initiatives are already underway that address this goal?
- What new ideas could be proposed to tackle this objective?
- What departments or teams should be encouraged to contribute?
`, title), nil
	}

	if strings.TrimSpace(objectiveContent) == "" {
		objectiveContent = "_No objective description yet_"
	}
	if timeframe == "" {
		timeframe = "Not specified"
	}

	var b strings.Builder
	for i, idea := range ideas {
		ideaTitle := idea.Title
		if ideaTitle == "" {
			ideaTitle = "Untitled"
		}
		fmt.Fprintf(&b, "### Idea %d: %s\n- Status: %s\n- Kernel completion: %d/4\n\n", i+1, ideaTitle, idea.Status, idea.KernelCompletion)
	}

	prompt := objectiveSystemPrompt + "\n\n" + alignmentPrompt(title, timeframe, objectiveContent, b.String())
	response, err := a.llm.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize alignment: %w", err)
	}
	return response, nil
}

// EditSelection rewrites a selected passage of the objective document per
// the user's instruction, returning only the replacement text.
func (a *ObjectiveAgent) EditSelection(ctx context.Context, document, selection, instruction string) (string, error) {
	prompt := selectionEditSystemPrompt + "\n\n" + selectionEditPrompt("Objective", document, selection, instruction)
	response, err := a.llm.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("edit selection: %w", err)
	}
	return llm.StripCodeFences(response), nil
}

// Coach answers a user message about the objective.
func (a *ObjectiveAgent) Coach(ctx context.Context, content string, history []llm.Message, userMessage string) (string, error) {
	intro := fmt.Sprintf("Here is the current state of the objective:\n\n```markdown\n%s\n```\n\nHelp the user sharpen it.", content)
	turns := make([]llm.Message, 0, len(history)+1)
	turns = append(turns, llm.Message{Role: "user", Content: intro})
	turns = append(turns, history...)

	response, err := a.llm.ChatWithHistory(ctx, objectiveSystemPrompt, turns, userMessage)
	if err != nil {
		return "", fmt.Errorf("objective coach: %w", err)
	}
	return response, nil
}
