package gitrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func initialKernel() map[string]string {
	return map[string]string{
		"summary":        "# Summary\n\nInitial summary.\n",
		"challenge":      "# Challenge\n\nInitial challenge.\n",
		"approach":       "# Approach\n\nInitial approach.\n",
		"coherent_steps": "# Coherent Steps\n\nInitial steps.\n",
	}
}

func TestIdeaRepoLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	if err := svc.EnsureIdeaRepo("idea-1", initialKernel(), "Sally"); err != nil {
		t.Fatalf("EnsureIdeaRepo() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "idea-1", "Summary.md")); err != nil {
		t.Fatalf("repo missing kernel file: %v", err)
	}

	// Re-initializing must not disturb the existing repo.
	if err := svc.EnsureIdeaRepo("idea-1", initialKernel(), "Sally"); err != nil {
		t.Fatalf("EnsureIdeaRepo() repeat error = %v", err)
	}

	commit, err := svc.CommitFile("idea-1", "challenge", "# Challenge\n\nSharper problem statement.\n", "Sally", "Update challenge")
	if err != nil {
		t.Fatalf("CommitFile() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if commit.Author != "Sally" {
		t.Errorf("expected author Sally, got %s", commit.Author)
	}

	history, err := svc.History("idea-1", "challenge", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries for challenge, got %d", len(history))
	}
	if !strings.Contains(history[0].Message, "Update challenge") {
		t.Errorf("newest entry should be the update, got %q", history[0].Message)
	}

	// Summary was only touched by the initial commit.
	summaryHistory, err := svc.History("idea-1", "summary", 10)
	if err != nil {
		t.Fatalf("History(summary) error = %v", err)
	}
	if len(summaryHistory) != 1 {
		t.Errorf("expected 1 summary entry, got %d", len(summaryHistory))
	}

	// Restore reads the old content at the initial commit.
	old, err := svc.FileAtCommit("idea-1", "challenge", history[1].Hash)
	if err != nil {
		t.Fatalf("FileAtCommit() error = %v", err)
	}
	if old != initialKernel()["challenge"] {
		t.Errorf("unexpected restored content %q", old)
	}

	current, err := svc.FileAtCommit("idea-1", "challenge", history[0].Hash)
	if err != nil {
		t.Fatalf("FileAtCommit(head) error = %v", err)
	}
	if !strings.Contains(current, "Sharper problem statement") {
		t.Errorf("unexpected head content %q", current)
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureIdeaRepo("idea-1", initialKernel(), "Sally"); err != nil {
		t.Fatalf("EnsureIdeaRepo() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		content := fmt.Sprintf("# Summary\n\nRevision %d.\n", i)
		if _, err := svc.CommitFile("idea-1", "summary", content, "Sally", fmt.Sprintf("Revision %d", i)); err != nil {
			t.Fatalf("CommitFile() error = %v", err)
		}
	}

	history, err := svc.History("idea-1", "summary", 3)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Errorf("expected 3 entries with limit, got %d", len(history))
	}
}

func TestUnknownFileType(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureIdeaRepo("idea-1", initialKernel(), "Sally"); err != nil {
		t.Fatalf("EnsureIdeaRepo() error = %v", err)
	}
	if _, err := svc.CommitFile("idea-1", "roadmap", "x", "Sally", "msg"); err == nil {
		t.Fatal("expected error for unknown file type")
	}
	if _, err := svc.History("idea-1", "roadmap", 10); err == nil {
		t.Fatal("expected error for unknown file type")
	}
}

func TestConcurrentCommitsSerialize(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureIdeaRepo("idea-1", initialKernel(), "Sally"); err != nil {
		t.Fatalf("EnsureIdeaRepo() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			content := fmt.Sprintf("# Approach\n\nConcurrent revision %d.\n", n)
			if _, err := svc.CommitFile("idea-1", "approach", content, "Sally", fmt.Sprintf("Concurrent %d", n)); err != nil {
				t.Errorf("CommitFile() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	history, err := svc.History("idea-1", "approach", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 5 {
		t.Errorf("expected 5 approach entries, got %d", len(history))
	}
}
