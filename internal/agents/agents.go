// Package agents implements the coaching agents that evaluate and discuss
// idea documents. Agents hold no storage: callers pass content in and act
// on the results.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/justingibbs/crabgrass-2/internal/llm"
)

// generator is the LLM surface agents need.
type generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string, out any) error
	ChatWithHistory(ctx context.Context, systemPrompt string, history []llm.Message, userMessage string) (string, error)
}

// minEvaluationLength short-circuits evaluation of near-empty documents
// so template placeholder text never reaches the model.
const minEvaluationLength = 100

// CriterionResult is one rubric criterion's verdict.
type CriterionResult struct {
	Name     string `json:"name"`
	Met      bool   `json:"met"`
	Feedback string `json:"feedback"`
}

// Evaluation is the outcome of judging a document against its rubric.
// Complete is true only when every criterion is met.
type Evaluation struct {
	Complete        bool              `json:"complete"`
	Criteria        []CriterionResult `json:"criteria"`
	OverallFeedback string            `json:"overall_feedback"`
}

// rubricResponse is the model's JSON reply for one agent's rubric. Each
// agent decodes into its own tagged struct so fields the model omits
// default to false/empty instead of failing the evaluation.
type rubricResponse interface {
	evaluation() Evaluation
}

func buildEvaluation(overall string, criteria ...CriterionResult) Evaluation {
	eval := Evaluation{Complete: true, Criteria: criteria, OverallFeedback: overall}
	for _, c := range criteria {
		if !c.Met {
			eval.Complete = false
		}
	}
	return eval
}

type challengeEvalResponse struct {
	Specific            bool   `json:"specific"`
	SpecificFeedback    string `json:"specific_feedback"`
	Measurable          bool   `json:"measurable"`
	MeasurableFeedback  string `json:"measurable_feedback"`
	Significant         bool   `json:"significant"`
	SignificantFeedback string `json:"significant_feedback"`
	OverallFeedback     string `json:"overall_feedback"`
}

func (r *challengeEvalResponse) evaluation() Evaluation {
	return buildEvaluation(r.OverallFeedback,
		CriterionResult{Name: "specific", Met: r.Specific, Feedback: r.SpecificFeedback},
		CriterionResult{Name: "measurable", Met: r.Measurable, Feedback: r.MeasurableFeedback},
		CriterionResult{Name: "significant", Met: r.Significant, Feedback: r.SignificantFeedback},
	)
}

type summaryEvalResponse struct {
	Clear              bool   `json:"clear"`
	ClearFeedback      string `json:"clear_feedback"`
	Concise            bool   `json:"concise"`
	ConciseFeedback    string `json:"concise_feedback"`
	Compelling         bool   `json:"compelling"`
	CompellingFeedback string `json:"compelling_feedback"`
	OverallFeedback    string `json:"overall_feedback"`
}

func (r *summaryEvalResponse) evaluation() Evaluation {
	return buildEvaluation(r.OverallFeedback,
		CriterionResult{Name: "clear", Met: r.Clear, Feedback: r.ClearFeedback},
		CriterionResult{Name: "concise", Met: r.Concise, Feedback: r.ConciseFeedback},
		CriterionResult{Name: "compelling", Met: r.Compelling, Feedback: r.CompellingFeedback},
	)
}

type approachEvalResponse struct {
	Feasible                   bool   `json:"feasible"`
	FeasibleFeedback           string `json:"feasible_feedback"`
	Differentiated             bool   `json:"differentiated"`
	DifferentiatedFeedback     string `json:"differentiated_feedback"`
	AddressesChallenge         bool   `json:"addresses_challenge"`
	AddressesChallengeFeedback string `json:"addresses_challenge_feedback"`
	OverallFeedback            string `json:"overall_feedback"`
}

func (r *approachEvalResponse) evaluation() Evaluation {
	return buildEvaluation(r.OverallFeedback,
		CriterionResult{Name: "feasible", Met: r.Feasible, Feedback: r.FeasibleFeedback},
		CriterionResult{Name: "differentiated", Met: r.Differentiated, Feedback: r.DifferentiatedFeedback},
		CriterionResult{Name: "addresses_challenge", Met: r.AddressesChallenge, Feedback: r.AddressesChallengeFeedback},
	)
}

type stepsEvalResponse struct {
	Concrete           bool   `json:"concrete"`
	ConcreteFeedback   string `json:"concrete_feedback"`
	Sequenced          bool   `json:"sequenced"`
	SequencedFeedback  string `json:"sequenced_feedback"`
	Assignable         bool   `json:"assignable"`
	AssignableFeedback string `json:"assignable_feedback"`
	OverallFeedback    string `json:"overall_feedback"`
}

func (r *stepsEvalResponse) evaluation() Evaluation {
	return buildEvaluation(r.OverallFeedback,
		CriterionResult{Name: "concrete", Met: r.Concrete, Feedback: r.ConcreteFeedback},
		CriterionResult{Name: "sequenced", Met: r.Sequenced, Feedback: r.SequencedFeedback},
		CriterionResult{Name: "assignable", Met: r.Assignable, Feedback: r.AssignableFeedback},
	)
}

// FileAgent coaches one kernel file type. The four kernel agents share
// this machinery and differ only in rubric and prompts.
type FileAgent struct {
	agentType    string
	fileType     string
	label        string
	systemPrompt string
	criteria     []string
	emptyAdvice  string
	newResponse  func() rubricResponse
	llm          generator
}

func (a *FileAgent) AgentType() string { return a.agentType }
func (a *FileAgent) FileType() string  { return a.fileType }

func NewChallengeAgent(g generator) *FileAgent {
	return &FileAgent{
		agentType:    "challenge",
		fileType:     "challenge",
		label:        "Challenge statement",
		systemPrompt: challengeSystemPrompt,
		criteria:     []string{"specific", "measurable", "significant"},
		emptyAdvice:  "The challenge is still in its early stages. Add more detail about the problem you're solving.",
		newResponse:  func() rubricResponse { return &challengeEvalResponse{} },
		llm:          g,
	}
}

func NewSummaryAgent(g generator) *FileAgent {
	return &FileAgent{
		agentType:    "summary",
		fileType:     "summary",
		label:        "Summary",
		systemPrompt: summarySystemPrompt,
		criteria:     []string{"clear", "concise", "compelling"},
		emptyAdvice:  "The summary is still in its early stages. Describe what the idea is and why it matters.",
		newResponse:  func() rubricResponse { return &summaryEvalResponse{} },
		llm:          g,
	}
}

func NewApproachAgent(g generator) *FileAgent {
	return &FileAgent{
		agentType:    "approach",
		fileType:     "approach",
		label:        "Approach",
		systemPrompt: approachSystemPrompt,
		criteria:     []string{"feasible", "differentiated", "addresses_challenge"},
		emptyAdvice:  "The approach is still in its early stages. Explain how you plan to solve the challenge.",
		newResponse:  func() rubricResponse { return &approachEvalResponse{} },
		llm:          g,
	}
}

func NewStepsAgent(g generator) *FileAgent {
	return &FileAgent{
		agentType:    "steps",
		fileType:     "coherent_steps",
		label:        "Coherent Steps",
		systemPrompt: stepsSystemPrompt,
		criteria:     []string{"concrete", "sequenced", "assignable"},
		emptyAdvice:  "The steps are still in their early stages. Break the approach into specific actions.",
		newResponse:  func() rubricResponse { return &stepsEvalResponse{} },
		llm:          g,
	}
}

// Evaluate judges content against the agent's rubric. extraContext carries
// companion material (the approach agent receives the challenge text, the
// steps agent the approach text) and may be empty.
func (a *FileAgent) Evaluate(ctx context.Context, content, extraContext string) (Evaluation, error) {
	if tooShort(content) {
		eval := Evaluation{OverallFeedback: a.emptyAdvice}
		for _, c := range a.criteria {
			eval.Criteria = append(eval.Criteria, CriterionResult{Name: c})
		}
		return eval, nil
	}

	prompt := a.systemPrompt + "\n\n" + evaluationPrompt(a.label, content, a.criteria, extraContext)
	resp := a.newResponse()
	if err := a.llm.GenerateJSON(ctx, prompt, resp); err != nil {
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", a.fileType, err)
	}
	return resp.evaluation(), nil
}

// Coach answers a user message about the file, with the current content
// and prior session turns as context.
func (a *FileAgent) Coach(ctx context.Context, content string, history []llm.Message, userMessage string) (string, error) {
	intro := fmt.Sprintf("Here is the current content of the %s:\n\n```markdown\n%s\n```\n\nPlease help the user improve it.", a.label, content)
	turns := make([]llm.Message, 0, len(history)+2)
	turns = append(turns,
		llm.Message{Role: "user", Content: intro},
		llm.Message{Role: "agent", Content: "I've reviewed the content. How can I help you improve it?"},
	)
	turns = append(turns, history...)

	response, err := a.llm.ChatWithHistory(ctx, a.systemPrompt, turns, userMessage)
	if err != nil {
		return "", fmt.Errorf("coach %s: %w", a.fileType, err)
	}
	return response, nil
}

// EditSelection rewrites a selected passage per the user's instruction,
// returning only the replacement text.
func (a *FileAgent) EditSelection(ctx context.Context, document, selection, instruction string) (string, error) {
	prompt := selectionEditSystemPrompt + "\n\n" + selectionEditPrompt(a.label, document, selection, instruction)
	response, err := a.llm.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("edit selection: %w", err)
	}
	return llm.StripCodeFences(response), nil
}

func tooShort(content string) bool {
	return len(strings.TrimSpace(content)) < minEvaluationLength
}
