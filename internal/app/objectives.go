package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/justingibbs/crabgrass-2/internal/agents"
	"github.com/justingibbs/crabgrass-2/internal/broker"
	"github.com/justingibbs/crabgrass-2/internal/llm"
	"github.com/justingibbs/crabgrass-2/internal/store"
	"github.com/justingibbs/crabgrass-2/internal/util"
)

// CreateObjective creates an org-level objective with its single document.
// Role enforcement happens at the HTTP layer; creation here assumes the
// caller already passed the manage_objectives gate.
func (s *Service) CreateObjective(ctx context.Context, user store.User, title, description, timeframe string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(400, "TITLE_REQUIRED", "Objective title is required", nil)
	}

	objective := store.Objective{
		ID:          util.NewID(),
		OrgID:       user.OrgID,
		Title:       title,
		Description: description,
		OwnerID:     &user.ID,
		Timeframe:   timeframe,
		Status:      "active",
		CreatedBy:   &user.ID,
	}
	if err := s.store.InsertObjective(ctx, objective); err != nil {
		return nil, fmt.Errorf("insert objective: %w", err)
	}

	if err := s.store.InsertObjectiveFile(ctx, store.ObjectiveFile{
		ID:          util.NewID(),
		ObjectiveID: objective.ID,
		Content:     objectiveFileTemplate,
	}); err != nil {
		return nil, fmt.Errorf("insert objective file: %w", err)
	}

	created, err := s.store.GetObjective(ctx, objective.ID)
	if err != nil {
		return nil, err
	}
	payload := objectivePayload(created)
	payload["linked_ideas"] = 0
	return payload, nil
}

func (s *Service) ListObjectives(ctx context.Context, user store.User) ([]map[string]any, error) {
	objectives, err := s.store.ListObjectives(ctx, user.OrgID)
	if err != nil {
		return nil, fmt.Errorf("list objectives: %w", err)
	}
	payload := make([]map[string]any, 0, len(objectives))
	for _, objective := range objectives {
		entry := objectivePayload(objective)
		if count, err := s.store.CountLinkedIdeas(ctx, objective.ID); err == nil {
			entry["linked_ideas"] = count
		}
		payload = append(payload, entry)
	}
	return payload, nil
}

func (s *Service) GetObjective(ctx context.Context, objectiveID string) (map[string]any, error) {
	objective, err := s.store.GetObjective(ctx, objectiveID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountLinkedIdeas(ctx, objectiveID)
	if err != nil {
		return nil, fmt.Errorf("count linked ideas: %w", err)
	}
	payload := objectivePayload(objective)
	payload["linked_ideas"] = count
	return payload, nil
}

func (s *Service) UpdateObjective(ctx context.Context, objectiveID string, title, description, timeframe, ownerID, status *string) (map[string]any, error) {
	if _, err := s.store.GetObjective(ctx, objectiveID); err != nil {
		return nil, err
	}
	if title != nil && strings.TrimSpace(*title) == "" {
		return nil, domainError(400, "TITLE_REQUIRED", "Objective title cannot be empty", nil)
	}
	if status != nil {
		switch *status {
		case "active", "completed", "archived":
		default:
			return nil, domainError(400, "INVALID_STATUS", "Unknown objective status", nil)
		}
	}
	if err := s.store.UpdateObjective(ctx, objectiveID, title, description, timeframe, ownerID, status); err != nil {
		return nil, fmt.Errorf("update objective: %w", err)
	}
	return s.GetObjective(ctx, objectiveID)
}

// ArchiveObjective archives the objective. Linked ideas keep their
// objective_id; the link simply points at an archived objective.
func (s *Service) ArchiveObjective(ctx context.Context, objectiveID string) error {
	if _, err := s.store.GetObjective(ctx, objectiveID); err != nil {
		return err
	}
	if err := s.store.ArchiveObjective(ctx, objectiveID); err != nil {
		return fmt.Errorf("archive objective: %w", err)
	}
	return nil
}

func (s *Service) ObjectiveIdeas(ctx context.Context, objectiveID string) ([]map[string]any, error) {
	if _, err := s.store.GetObjective(ctx, objectiveID); err != nil {
		return nil, err
	}
	ideas, err := s.store.ListIdeasForObjective(ctx, objectiveID)
	if err != nil {
		return nil, fmt.Errorf("list objective ideas: %w", err)
	}
	payload := make([]map[string]any, 0, len(ideas))
	for _, idea := range ideas {
		payload = append(payload, ideaPayload(idea))
	}
	return payload, nil
}

func (s *Service) GetObjectiveFile(ctx context.Context, objectiveID string) (map[string]any, error) {
	if _, err := s.store.GetObjective(ctx, objectiveID); err != nil {
		return nil, err
	}
	file, err := s.store.GetObjectiveFile(ctx, objectiveID)
	if err != nil {
		return nil, err
	}
	return objectiveFilePayload(file), nil
}

// SaveObjectiveFile persists new content and kicks off an async rubric
// evaluation. Objective documents are not git-versioned.
func (s *Service) SaveObjectiveFile(ctx context.Context, objectiveID, content string) (map[string]any, error) {
	if _, err := s.store.GetObjective(ctx, objectiveID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateObjectiveFileContent(ctx, objectiveID, content); err != nil {
		return nil, err
	}

	s.events.Publish(objectiveID, broker.Event{Type: "file_saved", Data: map[string]any{
		"objective_id": objectiveID,
		"content_hash": util.ContentHash(content),
	}})

	s.spawn(func() { s.evaluateObjectiveFile(objectiveID, content) })

	file, err := s.store.GetObjectiveFile(ctx, objectiveID)
	if err != nil {
		return nil, err
	}
	return objectiveFilePayload(file), nil
}

func (s *Service) evaluateObjectiveFile(objectiveID, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	eval, err := s.agents.Objective.Evaluate(ctx, content)
	if err != nil {
		log.Printf("evaluate objective %s: %v", objectiveID, err)
		return
	}
	s.events.Publish(objectiveID, broker.Event{Type: "evaluation", Data: map[string]any{
		"objective_id": objectiveID,
		"evaluation":   eval,
	}})
}

// ObjectiveChat runs one coaching turn with the objective agent.
func (s *Service) ObjectiveChat(ctx context.Context, user store.User, objectiveID, message string) (map[string]any, error) {
	if _, err := s.store.GetObjective(ctx, objectiveID); err != nil {
		return nil, err
	}
	content := ""
	if file, err := s.store.GetObjectiveFile(ctx, objectiveID); err == nil {
		content = file.Content
	}

	session, err := s.getOrCreateObjectiveSession(ctx, user.ID, objectiveID, "objective")
	if err != nil {
		return nil, err
	}
	reply, err := s.chatTurn(ctx, session, message, func(history []llm.Message) (string, error) {
		return s.agents.Objective.Coach(ctx, content, history, message)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"session_id": session.ID, "response": reply}, nil
}

// ObjectiveAlignment summarizes how the linked ideas support the objective.
func (s *Service) ObjectiveAlignment(ctx context.Context, objectiveID string) (map[string]any, error) {
	objective, err := s.store.GetObjective(ctx, objectiveID)
	if err != nil {
		return nil, err
	}
	ideas, err := s.store.ListIdeasForObjective(ctx, objectiveID)
	if err != nil {
		return nil, fmt.Errorf("list objective ideas: %w", err)
	}

	content := ""
	if file, err := s.store.GetObjectiveFile(ctx, objectiveID); err == nil {
		content = file.Content
	}

	linked := make([]agents.LinkedIdea, 0, len(ideas))
	for _, idea := range ideas {
		linked = append(linked, agents.LinkedIdea{
			Title:            idea.Title,
			Status:           idea.Status,
			KernelCompletion: idea.KernelCompletion,
		})
	}

	summary, err := s.agents.Objective.SummarizeAlignment(ctx, objective.Title, objective.Timeframe, content, linked)
	if err != nil {
		return nil, fmt.Errorf("summarize alignment: %w", err)
	}
	return map[string]any{"objective_id": objectiveID, "summary": summary, "idea_count": len(linked)}, nil
}

func (s *Service) ListObjectiveSessions(ctx context.Context, objectiveID, agentType string) ([]map[string]any, error) {
	if _, err := s.store.GetObjective(ctx, objectiveID); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessionsForObjective(ctx, objectiveID, agentType)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	payload := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		payload = append(payload, sessionPayload(session))
	}
	return payload, nil
}

func objectivePayload(objective store.Objective) map[string]any {
	return map[string]any{
		"id":          objective.ID,
		"title":       objective.Title,
		"description": objective.Description,
		"owner_id":    objective.OwnerID,
		"timeframe":   objective.Timeframe,
		"status":      objective.Status,
		"created_at":  objective.CreatedAt,
		"created_by":  objective.CreatedBy,
	}
}

func objectiveFilePayload(file store.ObjectiveFile) map[string]any {
	return map[string]any{
		"id":           file.ID,
		"objective_id": file.ObjectiveID,
		"content":      file.Content,
		"updated_at":   file.UpdatedAt,
	}
}
