package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/justingibbs/crabgrass-2/internal/store"
)

func TestKernelSelectionActionAppliesEdit(t *testing.T) {
	const ideaID = "idea-1"
	document := "# Challenge\n\nReduce churn by half this year.\n"

	var mu sync.Mutex
	var savedContent string
	fs := &fakeStore{
		getIdeaFn: func(_ context.Context, id string) (store.Idea, error) {
			return store.Idea{ID: id, OrgID: AcmeOrgID, Title: "Churn"}, nil
		},
		getKernelFileFn: func(_ context.Context, id, fileType string) (store.KernelFile, error) {
			return store.KernelFile{IdeaID: id, FileType: fileType, Content: document}, nil
		},
		updateKernelFileContentFn: func(_ context.Context, _, _, content, _, _ string) error {
			mu.Lock()
			savedContent = content
			mu.Unlock()
			return nil
		},
	}
	agentSet := testAgents()
	agentSet.Kernel["challenge"] = &fakeFileCoach{
		editSelectionFn: func(_ context.Context, doc, selection, instruction string) (string, error) {
			if selection != "Reduce churn" {
				t.Errorf("unexpected selection %q", selection)
			}
			if instruction != "make it bolder" {
				t.Errorf("unexpected instruction %q", instruction)
			}
			return "Slash churn", nil
		},
	}
	bus := &recordingBus{}
	svc := New(testConfig(), fs, &fakeGit{}, &fakeSearch{}, bus, agentSet)

	result, err := svc.KernelSelectionAction(context.Background(), sally(), ideaID, "challenge", SelectionActionInput{
		Selection:   SelectionClaim{Text: "Reduce churn"},
		Instruction: "make it bolder",
	})
	if err != nil {
		t.Fatalf("KernelSelectionAction failed: %v", err)
	}
	editID, _ := result["edit_id"].(string)
	if editID == "" {
		t.Fatal("missing edit_id")
	}
	if result["session_id"] == "" {
		t.Fatal("missing session_id")
	}

	svc.Wait()

	mu.Lock()
	saved := savedContent
	mu.Unlock()
	if !strings.Contains(saved, "Slash churn by half this year.") {
		t.Errorf("edit not applied in place, got %q", saved)
	}

	edits := bus.byType("selection_edit")
	if len(edits) != 1 {
		t.Fatalf("expected one selection_edit event, got %d", len(edits))
	}
	data := edits[0].Event.Data
	if data["edit_id"] != editID || data["status"] != "applied" {
		t.Errorf("unexpected selection_edit payload %+v", data)
	}
}

func TestKernelSelectionActionRejectsUnanchorableText(t *testing.T) {
	fs := &fakeStore{
		getKernelFileFn: func(_ context.Context, id, fileType string) (store.KernelFile, error) {
			return store.KernelFile{IdeaID: id, FileType: fileType, Content: "completely different document"}, nil
		},
	}
	svc, _, _ := newTestService(fs, &fakeGit{})

	_, err := svc.KernelSelectionAction(context.Background(), sally(), "idea-1", "challenge", SelectionActionInput{
		Selection:   SelectionClaim{Text: "text that no longer exists"},
		Instruction: "rewrite",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "SELECTION_NOT_FOUND" {
		t.Fatalf("expected SELECTION_NOT_FOUND, got %v", err)
	}
	if domainErr.Status != 400 {
		t.Errorf("expected status 400, got %d", domainErr.Status)
	}
}

func TestSelectionActionRequiresInstruction(t *testing.T) {
	svc, _, _ := newTestService(&fakeStore{}, &fakeGit{})

	_, err := svc.KernelSelectionAction(context.Background(), sally(), "idea-1", "challenge", SelectionActionInput{
		Selection:   SelectionClaim{Text: "some text"},
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "INSTRUCTION_REQUIRED" {
		t.Fatalf("expected INSTRUCTION_REQUIRED, got %v", err)
	}
}

func TestObjectiveSelectionActionAppliesEdit(t *testing.T) {
	const objectiveID = "obj-1"
	document := "# Objective\n\nGrow ARR to $10M by Q4.\n"

	var mu sync.Mutex
	var savedContent string
	fs := &fakeStore{
		getObjectiveFn: func(_ context.Context, id string) (store.Objective, error) {
			return store.Objective{ID: id, OrgID: AcmeOrgID, Title: "Grow ARR"}, nil
		},
		getObjectiveFileFn: func(_ context.Context, id string) (store.ObjectiveFile, error) {
			return store.ObjectiveFile{ObjectiveID: id, Content: document}, nil
		},
		updateObjectiveFileFn: func(_ context.Context, _, content string) error {
			mu.Lock()
			savedContent = content
			mu.Unlock()
			return nil
		},
	}
	svc, _, bus := newTestService(fs, &fakeGit{})

	result, err := svc.ObjectiveSelectionAction(context.Background(), sally(), objectiveID, SelectionActionInput{
		Selection:   SelectionClaim{Text: "Grow ARR to $10M"},
		Instruction: "be specific about the date",
	})
	if err != nil {
		t.Fatalf("ObjectiveSelectionAction failed: %v", err)
	}
	if result["edit_id"] == "" || result["session_id"] == "" {
		t.Fatal("missing edit_id or session_id")
	}

	svc.Wait()

	mu.Lock()
	saved := savedContent
	mu.Unlock()
	if !strings.Contains(saved, "edited objective text by Q4.") {
		t.Errorf("edit not applied in place, got %q", saved)
	}
	if len(bus.byType("selection_edit")) != 1 {
		t.Error("selection_edit event not published")
	}
}
