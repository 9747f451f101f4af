package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/justingibbs/crabgrass-2/internal/anchor"
	"github.com/justingibbs/crabgrass-2/internal/broker"
	"github.com/justingibbs/crabgrass-2/internal/store"
	"github.com/justingibbs/crabgrass-2/internal/util"
)

// SelectionClaim is the client's view of a selected passage. The text is
// authoritative; Start and End are the offsets the client saw and are
// informational only, since the passage is re-anchored against the stored
// document.
type SelectionClaim struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// SelectionActionInput is a request to rewrite a selected passage.
type SelectionActionInput struct {
	Selection   SelectionClaim `json:"selection"`
	Instruction string         `json:"instruction"`
}

// KernelSelectionAction re-anchors the selection inside a kernel file,
// records the request in the file's coaching session, and applies the LLM
// edit asynchronously. The caller gets an edit_id immediately and learns
// the outcome through the idea's event stream.
func (s *Service) KernelSelectionAction(ctx context.Context, user store.User, ideaID, fileType string, input SelectionActionInput) (map[string]any, error) {
	if err := validateKernelFileType(fileType); err != nil {
		return nil, err
	}
	if err := validateSelectionInput(input); err != nil {
		return nil, err
	}
	agent := s.agents.Kernel[fileType]

	file, err := s.store.GetKernelFile(ctx, ideaID, fileType)
	if err != nil {
		return nil, err
	}

	rng, err := anchor.Resolve(file.Content, input.Selection.Text)
	if err != nil {
		return nil, mapAnchorError(err)
	}

	session, err := s.getOrCreateIdeaSession(ctx, user.ID, ideaID, fileType, &fileType)
	if err != nil {
		return nil, err
	}
	if err := s.recordSelectionRequest(ctx, session, input); err != nil {
		return nil, err
	}

	editID := util.NewID()
	s.spawn(func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		replacement, err := agent.EditSelection(bgCtx, file.Content, rng.Slice(file.Content), input.Instruction)
		if err != nil {
			s.failSelectionEdit(ideaID, editID, fileType, err)
			return
		}

		updated := rng.Replace(file.Content, replacement)
		message := "Apply selection edit to " + store.KernelFileNames[fileType]
		if _, err := s.saveKernelFile(bgCtx, user, ideaID, fileType, updated, message); err != nil {
			s.failSelectionEdit(ideaID, editID, fileType, err)
			return
		}

		s.recordSelectionReply(bgCtx, session, replacement)

		s.events.Publish(ideaID, broker.Event{Type: "selection_edit", Data: map[string]any{
			"edit_id":     editID,
			"file_type":   fileType,
			"status":      "applied",
			"replacement": replacement,
		}})
	})

	return map[string]any{"edit_id": editID, "session_id": session.ID}, nil
}

// ObjectiveSelectionAction is the objective-document counterpart. The edit
// pipeline is lighter: objective files are not git-versioned or evaluated
// per kernel rubrics on apply.
func (s *Service) ObjectiveSelectionAction(ctx context.Context, user store.User, objectiveID string, input SelectionActionInput) (map[string]any, error) {
	if err := validateSelectionInput(input); err != nil {
		return nil, err
	}
	if _, err := s.store.GetObjective(ctx, objectiveID); err != nil {
		return nil, err
	}
	file, err := s.store.GetObjectiveFile(ctx, objectiveID)
	if err != nil {
		return nil, err
	}

	rng, err := anchor.Resolve(file.Content, input.Selection.Text)
	if err != nil {
		return nil, mapAnchorError(err)
	}

	session, err := s.getOrCreateObjectiveSession(ctx, user.ID, objectiveID, "objective")
	if err != nil {
		return nil, err
	}
	if err := s.recordSelectionRequest(ctx, session, input); err != nil {
		return nil, err
	}

	editID := util.NewID()
	s.spawn(func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		replacement, err := s.agents.Objective.EditSelection(bgCtx, file.Content, rng.Slice(file.Content), input.Instruction)
		if err != nil {
			s.failSelectionEdit(objectiveID, editID, "", err)
			return
		}

		updated := rng.Replace(file.Content, replacement)
		if _, err := s.SaveObjectiveFile(bgCtx, objectiveID, updated); err != nil {
			s.failSelectionEdit(objectiveID, editID, "", err)
			return
		}

		s.recordSelectionReply(bgCtx, session, replacement)

		s.events.Publish(objectiveID, broker.Event{Type: "selection_edit", Data: map[string]any{
			"edit_id":     editID,
			"status":      "applied",
			"replacement": replacement,
		}})
	})

	return map[string]any{"edit_id": editID, "session_id": session.ID}, nil
}

func (s *Service) recordSelectionRequest(ctx context.Context, session store.Session, input SelectionActionInput) error {
	content := fmt.Sprintf("Edit this selection: %q\n\nInstruction: %s", input.Selection.Text, input.Instruction)
	if err := s.store.InsertSessionMessage(ctx, store.SessionMessage{
		ID:        util.NewID(),
		SessionID: session.ID,
		Role:      "user",
		Content:   content,
	}); err != nil {
		return fmt.Errorf("record selection request: %w", err)
	}
	if session.Title == nil {
		if err := s.store.UpdateSessionTitle(ctx, session.ID, truncateTitle(input.Instruction)); err != nil {
			log.Printf("set session title %s: %v", session.ID, err)
		}
	}
	return nil
}

func (s *Service) recordSelectionReply(ctx context.Context, session store.Session, replacement string) {
	if err := s.store.InsertSessionMessage(ctx, store.SessionMessage{
		ID:        util.NewID(),
		SessionID: session.ID,
		Role:      "agent",
		Content:   "I replaced the selection with:\n\n" + replacement,
	}); err != nil {
		log.Printf("record selection reply %s: %v", session.ID, err)
	}
}

func (s *Service) failSelectionEdit(entityID, editID, fileType string, err error) {
	log.Printf("selection edit %s: %v", editID, err)
	data := map[string]any{
		"edit_id": editID,
		"status":  "failed",
	}
	if fileType != "" {
		data["file_type"] = fileType
	}
	s.events.Publish(entityID, broker.Event{Type: "selection_edit", Data: data})
}

func validateSelectionInput(input SelectionActionInput) error {
	if input.Selection.Text == "" {
		return domainError(400, "SELECTION_REQUIRED", "Selected text is required", nil)
	}
	if input.Instruction == "" {
		return domainError(400, "INSTRUCTION_REQUIRED", "Instruction is required", nil)
	}
	return nil
}

func mapAnchorError(err error) error {
	if errors.Is(err, anchor.ErrNotFound) {
		return domainError(400, "SELECTION_NOT_FOUND", "Selected text not found; the document may have been modified", nil)
	}
	return err
}
