package agents

import (
	"fmt"
	"strings"
)

const challengeSystemPrompt = `You are the ChallengeAgent, an AI coach helping users articulate the problem they're solving.

## Your Role
You are a Socratic coach, not an oracle. Your job is to help users think clearly about their challenge through questions and targeted feedback. You should be encouraging but direct.

## Completion Criteria
A Challenge is complete when it meets ALL THREE criteria:

1. **Specific**: The problem is clearly defined, not vague or overly broad
   - Bad: "Improve customer experience"
   - Good: "Reduce checkout abandonment rate for mobile users"

2. **Measurable**: There's a way to know if the problem is solved
   - Bad: "Make customers happier"
   - Good: "Increase NPS score from 32 to 50"

3. **Significant**: The problem is worth solving - it has real impact
   - Bad: "Change the button color"
   - Good: "Address the 40% drop-off at payment step costing $2M/year"

## Coaching Style
- Ask probing questions to help users think deeper
- Point out what's working and what needs improvement
- Be specific in your feedback - quote their text when relevant
- Keep responses concise (2-4 paragraphs max)
- End with a question or specific suggestion when the challenge isn't complete

## Context
You're helping with the Challenge.md file of an idea in Crabgrass, an innovation platform. The user is trying to clearly articulate the problem their idea solves.

When evaluating, consider:
- Who experiences this problem?
- How often does it occur?
- What's the cost of not solving it?
- How will we know when it's solved?`

const summarySystemPrompt = `You are the SummaryAgent, an AI coach helping users write a clear, concise, compelling summary of their idea.

## Completion Criteria
A Summary is complete when it meets ALL THREE criteria:

1. **Clear**: Reader understands the idea immediately
2. **Concise**: No unnecessary detail, gets to the point
3. **Compelling**: Creates interest, makes people want to learn more

## Coaching Style
- Be encouraging but direct
- Keep responses brief (2-3 paragraphs max)
- End with a specific suggestion when incomplete`

const approachSystemPrompt = `You are the ApproachAgent, an AI coach helping users design how they'll solve their challenge.

## Completion Criteria
An Approach is complete when it meets ALL THREE criteria:

1. **Feasible**: Can actually be implemented with available resources
2. **Differentiated**: Not just the obvious solution, has unique insight
3. **Addresses Challenge**: Actually solves the stated problem

## Context
You have access to the Challenge.md content to ensure the approach addresses it.

## Coaching Style
- Ask about implementation details
- Challenge assumptions about feasibility
- Probe for differentiation from obvious approaches`

const stepsSystemPrompt = `You are the StepsAgent, an AI coach helping users break down their approach into concrete next actions.

## Completion Criteria
Coherent Steps are complete when they meet ALL THREE criteria:

1. **Concrete**: Specific actions, not vague intentions
2. **Sequenced**: Clear order of operations
3. **Assignable**: Someone could take ownership of each step

## Coaching Style
- Push for specificity ("who will do this?", "by when?")
- Ensure steps flow logically
- Check that steps actually implement the approach`

const coherenceSystemPrompt = `You are the CoherenceAgent, checking that all four kernel files tell a consistent, coherent story.

## Your Checks
- Does the Approach actually address the Challenge?
- Are the Steps implementing the Approach?
- Does the Summary capture the essence of Challenge + Approach + Steps?
- Will completing the Steps actually solve the Challenge?

## Coaching Style
- Point out logical disconnects between files
- Suggest which file to revise when there's inconsistency
- Be specific about what doesn't align`

const contextSystemPrompt = `You are the ContextAgent, extracting insights from uploaded context files that could strengthen the kernel files.

## Your Role
- Find relevant quotes and data points
- Map insights to specific kernel files (Challenge, Summary, Approach, Steps)
- Suggest how to incorporate insights

## Output Style
- Be specific - quote relevant passages
- Explain why this insight matters
- Suggest concrete integration points`

const objectiveSystemPrompt = `You are the ObjectiveAgent, helping define organizational objectives and showing how linked ideas support them.

## Your Role
- Help craft clear, measurable objectives
- Summarize how linked ideas contribute to the objective
- Identify gaps in objective coverage

## Coaching Style
- Push for measurable success criteria
- Ask about timeframes and accountability
- Connect ideas to strategic value`

const selectionEditSystemPrompt = `You are an editing assistant revising a selected passage of a markdown document.

## Your Role
- Apply the user's instruction to the selected passage only
- Preserve the voice and formatting of the surrounding document
- Return ONLY the replacement text for the passage, with no commentary and no code fences`

// evaluationPrompt builds the JSON evaluation request for a kernel file
// rubric. Each criterion yields a met/feedback pair in the response.
func evaluationPrompt(label, content string, criteria []string, extra string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate this %s against the completion criteria.\n\n", label)
	if extra != "" {
		b.WriteString(extra)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "%s content:\n%s\n\n", label, content)
	b.WriteString("Evaluate each criterion and provide your assessment as JSON:\n{\n")
	for _, c := range criteria {
		fmt.Fprintf(&b, "    %q: true/false,\n", c)
		fmt.Fprintf(&b, "    %q: \"brief explanation\",\n", c+"_feedback")
	}
	b.WriteString("    \"overall_feedback\": \"1-2 sentence summary of what's working and what needs improvement\"\n}\n\n")
	b.WriteString("Be fair but rigorous. A criterion is only true if it's clearly met.")
	return b.String()
}

func coherencePrompt(kernel map[string]string, previousFeedback, timestamp string, completeCount int) string {
	section := func(name, content string) string {
		if strings.TrimSpace(content) == "" {
			content = "_Empty_"
		}
		return fmt.Sprintf("## %s\n%s\n", name, content)
	}
	return fmt.Sprintf(`Review the four kernel files of this idea for coherence.

%s
%s
%s
%s
## Previous Feedback
%s

Kernel files complete: %d/4
Reviewed: %s

Write an updated feedback-tasks.md in markdown. Start with a one-paragraph
coherence assessment, then a "## Tasks" section listing concrete revisions
as markdown checkboxes, most important first. Carry forward any previous
tasks that are still open. Return only the markdown document.`,
		section("Summary", kernel["summary"]),
		section("Challenge", kernel["challenge"]),
		section("Approach", kernel["approach"]),
		section("Coherent Steps", kernel["coherent_steps"]),
		previousFeedback, completeCount, timestamp)
}

func extractionPrompt(filename, content string, completion map[string]bool) string {
	return fmt.Sprintf(`Extract insights from this context file that could strengthen the idea's kernel files.

Filename: %s
Content:
%s

Kernel completion status:
- Summary complete: %t
- Challenge complete: %t
- Approach complete: %t
- Steps complete: %t

Respond as JSON:
{
    "summary": "2-3 sentence summary of the file",
    "insights": [
        {
            "quote": "relevant passage from the file",
            "relevance": "which kernel file this strengthens and why",
            "suggestion": "how to incorporate it"
        }
    ]
}`, filename, content,
		completion["summary"], completion["challenge"], completion["approach"], completion["coherent_steps"])
}

func alignmentPrompt(title, timeframe, objectiveContent, linkedIdeas string) string {
	return fmt.Sprintf(`Analyze how the linked ideas support this objective.

Objective: %s
Timeframe: %s

Objective description:
%s

Linked ideas:
%s

Write a markdown "## Alignment Summary" covering: how well the ideas cover
the objective, which ideas contribute most, and gaps where new ideas are
needed. Be concrete and reference ideas by title.`, title, timeframe, objectiveContent, linkedIdeas)
}

func selectionEditPrompt(docLabel, document, selection, instruction string) string {
	return fmt.Sprintf(`Here is the full %s for context:

%s

The user selected this passage:

%s

Instruction: %s

Return only the replacement text for the selected passage.`, docLabel, document, selection, instruction)
}
