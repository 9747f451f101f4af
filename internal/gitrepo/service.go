// Package gitrepo versions each idea's kernel files in a per-idea git
// repository, providing history and restore for the editor.
package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/justingibbs/crabgrass-2/internal/store"
)

// CommitInfo is one entry of a kernel file's history.
type CommitInfo struct {
	Hash      string    `json:"change_id"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Service owns the per-idea repositories under baseDir. All operations on
// one idea serialize on that idea's lock.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureIdeaRepo initializes the idea's repository with the given kernel
// files on a main branch. Creating an existing repo is a no-op.
func (s *Service) EnsureIdeaRepo(ideaID string, files map[string]string, author string) error {
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(ideaID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	for fileType, content := range files {
		name, ok := store.KernelFileNames[fileType]
		if !ok {
			return fmt.Errorf("unknown kernel file type %q", fileType)
		}
		if err := os.WriteFile(filepath.Join(path, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		if _, err := worktree.Add(name); err != nil {
			return fmt.Errorf("git add %s: %w", name, err)
		}
	}
	hash, err := worktree.Commit("Initialize kernel files", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit initial kernel: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CommitFile writes one kernel file and commits it.
func (s *Service) CommitFile(ideaID, fileType, content, author, message string) (CommitInfo, error) {
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	name, ok := store.KernelFileNames[fileType]
	if !ok {
		return CommitInfo{}, fmt.Errorf("unknown kernel file type %q", fileType)
	}

	repo, err := git.PlainOpen(s.repoPath(ideaID))
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), name), []byte(content), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := worktree.Add(name); err != nil {
		return CommitInfo{}, fmt.Errorf("git add %s: %w", name, err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(author),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit %s: %w", name, err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists commits that touched the given kernel file, newest first.
func (s *Service) History(ideaID, fileType string, limit int) ([]CommitInfo, error) {
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	name, ok := store.KernelFileNames[fileType]
	if !ok {
		return nil, fmt.Errorf("unknown kernel file type %q", fileType)
	}

	repo, err := git.PlainOpen(s.repoPath(ideaID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash(), FileName: &name})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// FileAtCommit returns the kernel file's content as of the given commit.
// Short hashes are resolved through the repository.
func (s *Service) FileAtCommit(ideaID, fileType, hash string) (string, error) {
	lock := s.ideaLock(ideaID)
	lock.Lock()
	defer lock.Unlock()

	name, ok := store.KernelFileNames[fileType]
	if !ok {
		return "", fmt.Errorf("unknown kernel file type %q", fileType)
	}

	repo, err := git.PlainOpen(s.repoPath(ideaID))
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return "", err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(name)
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", name, err)
	}
	content, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read %s contents: %w", name, err)
	}
	return content, nil
}

func (s *Service) repoPath(ideaID string) string {
	return filepath.Join(s.baseDir, ideaID)
}

func (s *Service) ideaLock(ideaID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[ideaID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[ideaID] = lock
	}
	return lock
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.crabgrass.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
