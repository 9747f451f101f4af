package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/justingibbs/crabgrass-2/internal/agents"
	"github.com/justingibbs/crabgrass-2/internal/broker"
	"github.com/justingibbs/crabgrass-2/internal/config"
	"github.com/justingibbs/crabgrass-2/internal/export"
	"github.com/justingibbs/crabgrass-2/internal/gitrepo"
	"github.com/justingibbs/crabgrass-2/internal/llm"
	"github.com/justingibbs/crabgrass-2/internal/search"
	"github.com/justingibbs/crabgrass-2/internal/store"
	"github.com/justingibbs/crabgrass-2/internal/util"
)

// Stable ids for the seeded dev workspace. The frontend hardcodes the user
// switcher against these.
const (
	AcmeOrgID   = "00000000-0000-0000-0000-000000000001"
	SallyUserID = "00000000-0000-0000-0000-000000000010"
	SamUserID   = "00000000-0000-0000-0000-000000000011"
)

// chatHistoryLimit caps how many prior session messages are replayed to an
// agent on each chat turn.
const chatHistoryLimit = 50

// Starter content for a fresh idea's kernel files. Short enough that the
// agents treat an untouched file as "too early to evaluate".
var kernelTemplates = map[string]string{
	"summary":        "# Summary\n\n_What is this idea, in a paragraph? Why does it matter now?_\n",
	"challenge":      "# Challenge\n\n_What specific, measurable problem does this address?_\n",
	"approach":       "# Approach\n\n_How will you solve the challenge? What makes this different?_\n",
	"coherent_steps": "# Coherent Steps\n\n_What concrete, ordered steps move this forward?_\n",
}

var kernelLabels = map[string]string{
	"summary":        "Summary",
	"challenge":      "Challenge",
	"approach":       "Approach",
	"coherent_steps": "Coherent Steps",
}

const objectiveFileTemplate = "# Objective\n\n_Describe the goal, how success is measured, and by when._\n"

type dataStore interface {
	Ping(ctx context.Context) error
	InsertOrganization(context.Context, store.Organization) error
	InsertUser(context.Context, store.User) error
	CountUsers(context.Context) (int, error)
	GetUser(context.Context, string) (store.User, error)
	ListUsers(context.Context) ([]store.User, error)
	InsertIdea(context.Context, store.Idea) error
	GetIdea(context.Context, string) (store.Idea, error)
	ListIdeasForUser(ctx context.Context, orgID, userID string) ([]store.Idea, error)
	ListIdeasForObjective(context.Context, string) ([]store.Idea, error)
	UpdateIdea(ctx context.Context, ideaID string, title, objectiveID *string) error
	TouchIdea(context.Context, string) error
	ArchiveIdea(context.Context, string) error
	UpdateKernelCompletion(context.Context, string) (int, error)
	InsertKernelFile(context.Context, store.KernelFile) error
	GetKernelFile(ctx context.Context, ideaID, fileType string) (store.KernelFile, error)
	ListKernelFiles(context.Context, string) ([]store.KernelFile, error)
	UpdateKernelFileContent(ctx context.Context, ideaID, fileType, content, contentHash, userID string) error
	SetKernelFileComplete(ctx context.Context, ideaID, fileType string, complete bool) error
	InsertObjective(context.Context, store.Objective) error
	GetObjective(context.Context, string) (store.Objective, error)
	ListObjectives(context.Context, string) ([]store.Objective, error)
	UpdateObjective(ctx context.Context, objectiveID string, title, description, timeframe, ownerID, status *string) error
	ArchiveObjective(context.Context, string) error
	CountLinkedIdeas(context.Context, string) (int, error)
	InsertObjectiveFile(context.Context, store.ObjectiveFile) error
	GetObjectiveFile(context.Context, string) (store.ObjectiveFile, error)
	UpdateObjectiveFileContent(ctx context.Context, objectiveID, content string) error
	InsertContextFile(context.Context, store.ContextFile) error
	GetContextFile(ctx context.Context, ideaID, filename string) (store.ContextFile, error)
	GetContextFileByID(context.Context, string) (store.ContextFile, error)
	ListContextFiles(context.Context, string) ([]store.ContextFile, error)
	UpdateContextFileContent(ctx context.Context, fileID, content string) error
	UpsertContextFile(context.Context, store.ContextFile) error
	DeleteContextFile(ctx context.Context, ideaID, fileID string) (bool, error)
	InsertSession(context.Context, store.Session) error
	GetSession(context.Context, string) (store.Session, error)
	ListSessionsForIdea(ctx context.Context, ideaID, agentType, fileType string) ([]store.Session, error)
	ListSessionsForObjective(ctx context.Context, objectiveID, agentType string) ([]store.Session, error)
	UpdateSessionTitle(ctx context.Context, sessionID, title string) error
	InsertSessionMessage(context.Context, store.SessionMessage) error
	ListSessionMessages(ctx context.Context, sessionID string, limit int) ([]store.SessionMessage, error)
}

type gitService interface {
	EnsureIdeaRepo(ideaID string, files map[string]string, author string) error
	CommitFile(ideaID, fileType, content, author, message string) (gitrepo.CommitInfo, error)
	History(ideaID, fileType string, limit int) ([]gitrepo.CommitInfo, error)
	FileAtCommit(ideaID, fileType, hash string) (string, error)
}

type searcher interface {
	Search(q search.Query) search.Response
	IndexIdea(rec search.IdeaRecord)
	IndexKernelFile(rec search.KernelRecord)
	IndexContextFile(rec search.ContextRecord)
	DeleteIdea(id string)
	DeleteContextFile(id string)
	ReindexAllFromPG(ctx context.Context)
}

type eventBus interface {
	Subscribe(entityID string) chan broker.Event
	Unsubscribe(entityID string, ch chan broker.Event)
	Publish(entityID string, event broker.Event)
}

type fileCoach interface {
	Evaluate(ctx context.Context, content, extraContext string) (agents.Evaluation, error)
	Coach(ctx context.Context, content string, history []llm.Message, userMessage string) (string, error)
	EditSelection(ctx context.Context, document, selection, instruction string) (string, error)
}

type coherenceCoach interface {
	Evaluate(ctx context.Context, input agents.CoherenceInput) (string, error)
	Coach(ctx context.Context, input agents.CoherenceInput, history []llm.Message, userMessage string) (string, error)
}

type contextCoach interface {
	Extract(ctx context.Context, input agents.ExtractInput) (agents.ExtractionResult, error)
	Coach(ctx context.Context, filename, content string, history []llm.Message, userMessage string) (string, error)
}

type objectiveCoach interface {
	Evaluate(ctx context.Context, content string) (agents.Evaluation, error)
	SummarizeAlignment(ctx context.Context, title, timeframe, objectiveContent string, ideas []agents.LinkedIdea) (string, error)
	Coach(ctx context.Context, content string, history []llm.Message, userMessage string) (string, error)
	EditSelection(ctx context.Context, document, selection, instruction string) (string, error)
}

// AgentSet bundles the coaching agents the service dispatches to.
type AgentSet struct {
	Kernel    map[string]fileCoach // keyed by kernel file type
	Coherence coherenceCoach
	Context   contextCoach
	Objective objectiveCoach
}

// DefaultAgents wires the production agents over one Gemini client.
func DefaultAgents(client *llm.Client) AgentSet {
	return AgentSet{
		Kernel: map[string]fileCoach{
			"summary":        agents.NewSummaryAgent(client),
			"challenge":      agents.NewChallengeAgent(client),
			"approach":       agents.NewApproachAgent(client),
			"coherent_steps": agents.NewStepsAgent(client),
		},
		Coherence: agents.NewCoherenceAgent(client),
		Context:   agents.NewContextAgent(client),
		Objective: agents.NewObjectiveAgent(client),
	}
}

type Service struct {
	cfg    config.Config
	store  dataStore
	git    gitService
	search searcher
	events eventBus
	agents AgentSet

	background sync.WaitGroup
}

func New(cfg config.Config, dataStore dataStore, gitService gitService, searchService searcher, events eventBus, agentSet AgentSet) *Service {
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		git:    gitService,
		search: searchService,
		events: events,
		agents: agentSet,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Wait blocks until in-flight background work (agent evaluations, selection
// edits, insight extraction) has finished. Used on shutdown and in tests.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) spawn(fn func()) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn()
	}()
}

// Bootstrap seeds the Acme Corp dev workspace on an empty database and
// rebuilds the search indexes from Postgres.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		if err := s.store.InsertOrganization(ctx, store.Organization{ID: AcmeOrgID, Name: "Acme Corp"}); err != nil {
			return fmt.Errorf("seed organization: %w", err)
		}
		seeds := []store.User{
			{ID: SallyUserID, OrgID: AcmeOrgID, Email: "sally.chen@acme.example", Name: "Sally Chen", Role: "member", Title: "Frontline Worker"},
			{ID: SamUserID, OrgID: AcmeOrgID, Email: "sam.white@acme.example", Name: "Sam White", Role: "org_admin", Title: "VP"},
		}
		for _, user := range seeds {
			if err := s.store.InsertUser(ctx, user); err != nil {
				return fmt.Errorf("seed user %s: %w", user.Name, err)
			}
		}
		log.Printf("seeded dev workspace: Acme Corp with Sally Chen and Sam White")
	}

	s.search.ReindexAllFromPG(ctx)
	return nil
}

// Subscribe and Unsubscribe expose the event bus to the SSE handler.
func (s *Service) Subscribe(entityID string) chan broker.Event {
	return s.events.Subscribe(entityID)
}

func (s *Service) Unsubscribe(entityID string, ch chan broker.Event) {
	s.events.Unsubscribe(entityID, ch)
}

// ResolveUser maps a dev cookie value to a user row, falling back to Sally
// when the cookie is missing, unsigned, or points at a deleted user.
func (s *Service) ResolveUser(ctx context.Context, userID string) (store.User, error) {
	if userID != "" {
		user, err := s.store.GetUser(ctx, userID)
		if err == nil {
			return user, nil
		}
		if !store.NotFound(err) {
			return store.User{}, fmt.Errorf("resolve user: %w", err)
		}
	}
	user, err := s.store.GetUser(ctx, SallyUserID)
	if err != nil {
		return store.User{}, fmt.Errorf("resolve default user: %w", err)
	}
	return user, nil
}

func (s *Service) ListDevUsers(ctx context.Context) ([]map[string]any, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	payload := make([]map[string]any, 0, len(users))
	for _, user := range users {
		payload = append(payload, userPayload(user))
	}
	return payload, nil
}

// SwitchUser validates the target of a user-switch request.
func (s *Service) SwitchUser(ctx context.Context, userID string) (store.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if store.NotFound(err) {
			return store.User{}, domainError(404, "USER_NOT_FOUND", "Unknown user", nil)
		}
		return store.User{}, fmt.Errorf("switch user: %w", err)
	}
	return user, nil
}

// --- Ideas ---

func (s *Service) CreateIdea(ctx context.Context, user store.User, title string, objectiveID *string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(400, "TITLE_REQUIRED", "Idea title is required", nil)
	}
	if objectiveID != nil {
		if err := s.requireObjective(ctx, *objectiveID); err != nil {
			return nil, err
		}
	}

	idea := store.Idea{
		ID:          util.NewID(),
		OrgID:       user.OrgID,
		CreatorID:   user.ID,
		Title:       title,
		ObjectiveID: objectiveID,
		Status:      "draft",
	}
	if err := s.store.InsertIdea(ctx, idea); err != nil {
		return nil, fmt.Errorf("insert idea: %w", err)
	}

	repoFiles := make(map[string]string, len(store.KernelFileTypes))
	for _, fileType := range store.KernelFileTypes {
		content := kernelTemplates[fileType]
		file := store.KernelFile{
			ID:          util.NewID(),
			IdeaID:      idea.ID,
			FileType:    fileType,
			Content:     content,
			ContentHash: util.ContentHash(content),
			UpdatedBy:   user.ID,
		}
		if err := s.store.InsertKernelFile(ctx, file); err != nil {
			return nil, fmt.Errorf("insert kernel file %s: %w", fileType, err)
		}
		repoFiles[fileType] = content
	}

	if err := s.git.EnsureIdeaRepo(idea.ID, repoFiles, user.Name); err != nil {
		return nil, fmt.Errorf("init idea repo: %w", err)
	}

	s.search.IndexIdea(search.IdeaRecord{ID: idea.ID, Title: idea.Title, Status: idea.Status, OrgID: idea.OrgID})

	created, err := s.store.GetIdea(ctx, idea.ID)
	if err != nil {
		return nil, fmt.Errorf("reload idea: %w", err)
	}
	return ideaPayload(created), nil
}

func (s *Service) ListIdeas(ctx context.Context, user store.User) ([]map[string]any, error) {
	ideas, err := s.store.ListIdeasForUser(ctx, user.OrgID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	payload := make([]map[string]any, 0, len(ideas))
	for _, idea := range ideas {
		payload = append(payload, ideaPayload(idea))
	}
	return payload, nil
}

// GetIdea returns the idea with its kernel files in display order.
func (s *Service) GetIdea(ctx context.Context, ideaID string) (map[string]any, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListKernelFiles(ctx, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list kernel files: %w", err)
	}

	kernel := make([]map[string]any, 0, len(files))
	for _, file := range files {
		kernel = append(kernel, kernelFilePayload(file))
	}

	payload := ideaPayload(idea)
	payload["kernel_files"] = kernel
	return payload, nil
}

func (s *Service) UpdateIdea(ctx context.Context, ideaID string, title, objectiveID *string) (map[string]any, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if title != nil && strings.TrimSpace(*title) == "" {
		return nil, domainError(400, "TITLE_REQUIRED", "Idea title cannot be empty", nil)
	}
	if objectiveID != nil && *objectiveID != "" {
		if err := s.requireObjective(ctx, *objectiveID); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdateIdea(ctx, ideaID, title, objectiveID); err != nil {
		return nil, fmt.Errorf("update idea: %w", err)
	}

	updated, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	if updated.Title != idea.Title {
		s.search.IndexIdea(search.IdeaRecord{ID: updated.ID, Title: updated.Title, Status: updated.Status, OrgID: updated.OrgID})
	}
	return ideaPayload(updated), nil
}

func (s *Service) ArchiveIdea(ctx context.Context, ideaID string) error {
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return err
	}
	if err := s.store.ArchiveIdea(ctx, ideaID); err != nil {
		return fmt.Errorf("archive idea: %w", err)
	}
	s.search.DeleteIdea(ideaID)
	return nil
}

// --- Kernel files ---

func (s *Service) GetKernelFile(ctx context.Context, ideaID, fileType string) (map[string]any, error) {
	if err := validateKernelFileType(fileType); err != nil {
		return nil, err
	}
	file, err := s.store.GetKernelFile(ctx, ideaID, fileType)
	if err != nil {
		return nil, err
	}
	return kernelFilePayload(file), nil
}

// SaveKernelFile persists new content and runs the full update pipeline:
// git commit, search indexing, a file_saved broadcast, and an async agent
// evaluation that may flip completion state.
func (s *Service) SaveKernelFile(ctx context.Context, user store.User, ideaID, fileType, content string) (map[string]any, error) {
	if err := validateKernelFileType(fileType); err != nil {
		return nil, err
	}
	message := "Update " + store.KernelFileNames[fileType]
	return s.saveKernelFile(ctx, user, ideaID, fileType, content, message)
}

func (s *Service) saveKernelFile(ctx context.Context, user store.User, ideaID, fileType, content, commitMessage string) (map[string]any, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	hash := util.ContentHash(content)
	if err := s.store.UpdateKernelFileContent(ctx, ideaID, fileType, content, hash, user.ID); err != nil {
		return nil, err
	}
	if err := s.store.TouchIdea(ctx, ideaID); err != nil {
		return nil, fmt.Errorf("touch idea: %w", err)
	}

	commit, err := s.git.CommitFile(ideaID, fileType, content, user.Name, commitMessage)
	if err != nil {
		return nil, fmt.Errorf("commit kernel file: %w", err)
	}

	s.search.IndexKernelFile(search.KernelRecord{
		ID:        ideaID + ":" + fileType,
		IdeaID:    ideaID,
		IdeaTitle: idea.Title,
		FileType:  fileType,
		Content:   content,
		OrgID:     idea.OrgID,
	})

	s.events.Publish(ideaID, broker.Event{Type: "file_saved", Data: map[string]any{
		"file_type":    fileType,
		"content_hash": hash,
		"change_id":    commit.Hash,
		"updated_by":   user.Name,
	}})

	s.spawn(func() { s.evaluateKernelFile(ideaID, fileType, content) })

	file, err := s.store.GetKernelFile(ctx, ideaID, fileType)
	if err != nil {
		return nil, err
	}
	payload := kernelFilePayload(file)
	payload["change_id"] = commit.Hash
	return payload, nil
}

// evaluateKernelFile runs after every save, off the request path. A newly
// met (or newly broken) rubric updates the file flag, recomputes the idea's
// completion count, and broadcasts the change.
func (s *Service) evaluateKernelFile(ideaID, fileType, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	agent, ok := s.agents.Kernel[fileType]
	if !ok {
		return
	}

	extra, err := s.evaluationContext(ctx, ideaID, fileType)
	if err != nil {
		log.Printf("evaluation context for %s/%s: %v", ideaID, fileType, err)
	}

	eval, err := agent.Evaluate(ctx, content, extra)
	if err != nil {
		log.Printf("evaluate %s/%s: %v", ideaID, fileType, err)
		return
	}

	s.events.Publish(ideaID, broker.Event{Type: "evaluation", Data: map[string]any{
		"file_type":  fileType,
		"evaluation": eval,
	}})

	file, err := s.store.GetKernelFile(ctx, ideaID, fileType)
	if err != nil {
		log.Printf("reload kernel file %s/%s: %v", ideaID, fileType, err)
		return
	}
	// The document changed again while the model was thinking; the next
	// save's evaluation supersedes this one.
	if file.ContentHash != util.ContentHash(content) {
		return
	}
	if file.IsComplete == eval.Complete {
		return
	}

	if err := s.store.SetKernelFileComplete(ctx, ideaID, fileType, eval.Complete); err != nil {
		log.Printf("set kernel file complete %s/%s: %v", ideaID, fileType, err)
		return
	}
	completion, err := s.store.UpdateKernelCompletion(ctx, ideaID)
	if err != nil {
		log.Printf("update kernel completion %s: %v", ideaID, err)
		return
	}

	s.events.Publish(ideaID, broker.Event{Type: "completion_changed", Data: map[string]any{
		"file_type":         fileType,
		"is_complete":       eval.Complete,
		"kernel_completion": completion,
	}})
}

// evaluationContext supplies the upstream kernel file an agent judges
// against: the approach is evaluated against the challenge, the steps
// against the approach.
func (s *Service) evaluationContext(ctx context.Context, ideaID, fileType string) (string, error) {
	var upstream string
	switch fileType {
	case "approach":
		upstream = "challenge"
	case "coherent_steps":
		upstream = "approach"
	default:
		return "", nil
	}
	file, err := s.store.GetKernelFile(ctx, ideaID, upstream)
	if err != nil {
		if store.NotFound(err) {
			return "", nil
		}
		return "", err
	}
	return fmt.Sprintf("%s:\n%s", kernelLabels[upstream], file.Content), nil
}

// KernelHistory lists the git commits that touched one kernel file.
func (s *Service) KernelHistory(ctx context.Context, ideaID, fileType string, limit int) ([]map[string]any, error) {
	if err := validateKernelFileType(fileType); err != nil {
		return nil, err
	}
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	commits, err := s.git.History(ideaID, fileType, limit)
	if err != nil {
		return nil, fmt.Errorf("kernel history: %w", err)
	}
	payload := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		payload = append(payload, map[string]any{
			"change_id":  commit.Hash,
			"message":    commit.Message,
			"author":     commit.Author,
			"created_at": commit.CreatedAt,
		})
	}
	return payload, nil
}

// RestoreKernelVersion rewrites the file to its content at an earlier
// commit. The restore itself goes through the normal save pipeline, so it
// produces a new commit rather than rewriting history.
func (s *Service) RestoreKernelVersion(ctx context.Context, user store.User, ideaID, fileType, hash string) (map[string]any, error) {
	if err := validateKernelFileType(fileType); err != nil {
		return nil, err
	}
	content, err := s.git.FileAtCommit(ideaID, fileType, hash)
	if err != nil {
		return nil, domainError(404, "VERSION_NOT_FOUND", "Unknown version for this file", nil)
	}
	message := fmt.Sprintf("Restore %s to %s", store.KernelFileNames[fileType], hash)
	return s.saveKernelFile(ctx, user, ideaID, fileType, content, message)
}

// --- Chat ---

// ChatWithFileAgent runs one coaching turn against a kernel file's agent,
// persisting both sides of the exchange in a per-file session.
func (s *Service) ChatWithFileAgent(ctx context.Context, user store.User, ideaID, fileType, message string) (map[string]any, error) {
	if err := validateKernelFileType(fileType); err != nil {
		return nil, err
	}
	agent := s.agents.Kernel[fileType]

	file, err := s.store.GetKernelFile(ctx, ideaID, fileType)
	if err != nil {
		return nil, err
	}

	session, err := s.getOrCreateIdeaSession(ctx, user.ID, ideaID, fileType, &fileType)
	if err != nil {
		return nil, err
	}

	reply, err := s.chatTurn(ctx, session, message, func(history []llm.Message) (string, error) {
		return agent.Coach(ctx, file.Content, history, message)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"session_id": session.ID, "response": reply}, nil
}

// CoherenceChat discusses cross-file consistency over the whole kernel.
func (s *Service) CoherenceChat(ctx context.Context, user store.User, ideaID, message string) (map[string]any, error) {
	input, err := s.coherenceInput(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	session, err := s.getOrCreateIdeaSession(ctx, user.ID, ideaID, "coherence", nil)
	if err != nil {
		return nil, err
	}
	reply, err := s.chatTurn(ctx, session, message, func(history []llm.Message) (string, error) {
		return s.agents.Coherence.Coach(ctx, input, history, message)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"session_id": session.ID, "response": reply}, nil
}

// CoherenceEvaluate reviews the kernel as a whole and writes the feedback
// into the feedback-tasks context file, where it shows up alongside the
// user's own reference material.
func (s *Service) CoherenceEvaluate(ctx context.Context, ideaID string) (map[string]any, error) {
	input, err := s.coherenceInput(ctx, ideaID)
	if err != nil {
		return nil, err
	}

	feedback, err := s.agents.Coherence.Evaluate(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("coherence evaluate: %w", err)
	}

	file := store.ContextFile{
		ID:             util.NewID(),
		IdeaID:         ideaID,
		Filename:       agents.FeedbackTasksFilename,
		Content:        feedback,
		SizeBytes:      len(feedback),
		CreatedByAgent: true,
	}
	if err := s.store.UpsertContextFile(ctx, file); err != nil {
		return nil, fmt.Errorf("save coherence feedback: %w", err)
	}

	stored, err := s.store.GetContextFile(ctx, ideaID, agents.FeedbackTasksFilename)
	if err != nil {
		return nil, err
	}
	s.indexContextFile(ctx, ideaID, stored)

	s.events.Publish(ideaID, broker.Event{Type: "coherence_feedback", Data: map[string]any{
		"filename": agents.FeedbackTasksFilename,
		"file_id":  stored.ID,
	}})

	return map[string]any{"filename": agents.FeedbackTasksFilename, "file_id": stored.ID, "feedback": feedback}, nil
}

func (s *Service) coherenceInput(ctx context.Context, ideaID string) (agents.CoherenceInput, error) {
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return agents.CoherenceInput{}, err
	}
	files, err := s.store.ListKernelFiles(ctx, ideaID)
	if err != nil {
		return agents.CoherenceInput{}, fmt.Errorf("list kernel files: %w", err)
	}

	kernel := make(map[string]string, len(files))
	complete := 0
	for _, file := range files {
		kernel[file.FileType] = file.Content
		if file.IsComplete {
			complete++
		}
	}

	input := agents.CoherenceInput{Kernel: kernel, CompleteCount: complete}
	previous, err := s.store.GetContextFile(ctx, ideaID, agents.FeedbackTasksFilename)
	if err == nil {
		input.PreviousFeedback = previous.Content
	} else if !store.NotFound(err) {
		return agents.CoherenceInput{}, err
	}
	return input, nil
}

// chatTurn loads prior history, persists the user message, invokes the
// agent, and persists its reply. History is loaded before the user message
// is inserted so the agent sees it exactly once.
func (s *Service) chatTurn(ctx context.Context, session store.Session, message string, invoke func(history []llm.Message) (string, error)) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", domainError(400, "MESSAGE_REQUIRED", "Message is required", nil)
	}

	stored, err := s.store.ListSessionMessages(ctx, session.ID, chatHistoryLimit)
	if err != nil {
		return "", fmt.Errorf("load session history: %w", err)
	}
	history := make([]llm.Message, 0, len(stored))
	for _, msg := range stored {
		history = append(history, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	if err := s.store.InsertSessionMessage(ctx, store.SessionMessage{
		ID:        util.NewID(),
		SessionID: session.ID,
		Role:      "user",
		Content:   message,
	}); err != nil {
		return "", fmt.Errorf("insert user message: %w", err)
	}

	if session.Title == nil {
		if err := s.store.UpdateSessionTitle(ctx, session.ID, truncateTitle(message)); err != nil {
			log.Printf("set session title %s: %v", session.ID, err)
		}
	}

	reply, err := invoke(history)
	if err != nil {
		return "", err
	}

	if err := s.store.InsertSessionMessage(ctx, store.SessionMessage{
		ID:        util.NewID(),
		SessionID: session.ID,
		Role:      "agent",
		Content:   reply,
	}); err != nil {
		return "", fmt.Errorf("insert agent message: %w", err)
	}
	return reply, nil
}

func (s *Service) getOrCreateIdeaSession(ctx context.Context, userID, ideaID, agentType string, fileType *string) (store.Session, error) {
	filter := ""
	if fileType != nil {
		filter = *fileType
	}
	sessions, err := s.store.ListSessionsForIdea(ctx, ideaID, agentType, filter)
	if err != nil {
		return store.Session{}, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) > 0 {
		return sessions[0], nil
	}

	session := store.Session{
		ID:        util.NewID(),
		IdeaID:    &ideaID,
		UserID:    userID,
		AgentType: agentType,
		FileType:  fileType,
	}
	if err := s.store.InsertSession(ctx, session); err != nil {
		return store.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func (s *Service) getOrCreateObjectiveSession(ctx context.Context, userID, objectiveID, agentType string) (store.Session, error) {
	sessions, err := s.store.ListSessionsForObjective(ctx, objectiveID, agentType)
	if err != nil {
		return store.Session{}, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) > 0 {
		return sessions[0], nil
	}

	session := store.Session{
		ID:          util.NewID(),
		ObjectiveID: &objectiveID,
		UserID:      userID,
		AgentType:   agentType,
	}
	if err := s.store.InsertSession(ctx, session); err != nil {
		return store.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func (s *Service) ListIdeaSessions(ctx context.Context, ideaID, agentType, fileType string) ([]map[string]any, error) {
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessionsForIdea(ctx, ideaID, agentType, fileType)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	payload := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		payload = append(payload, sessionPayload(session))
	}
	return payload, nil
}

// GetSessionMessages returns one session with its message transcript.
func (s *Service) GetSessionMessages(ctx context.Context, sessionID string) (map[string]any, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListSessionMessages(ctx, sessionID, chatHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}

	transcript := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		transcript = append(transcript, map[string]any{
			"id":         msg.ID,
			"role":       msg.Role,
			"content":    msg.Content,
			"created_at": msg.CreatedAt,
		})
	}

	payload := sessionPayload(session)
	payload["messages"] = transcript
	return payload, nil
}

// --- Context files ---

func (s *Service) CreateContextFile(ctx context.Context, ideaID, filename, content string) (map[string]any, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, domainError(400, "FILENAME_REQUIRED", "Filename is required", nil)
	}
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetContextFile(ctx, ideaID, filename); err == nil {
		return nil, domainError(409, "CONTEXT_FILE_EXISTS", "A context file with this name already exists", nil)
	} else if !store.NotFound(err) {
		return nil, err
	}

	file := store.ContextFile{
		ID:        util.NewID(),
		IdeaID:    ideaID,
		Filename:  filename,
		Content:   content,
		SizeBytes: len(content),
	}
	if err := s.store.InsertContextFile(ctx, file); err != nil {
		return nil, fmt.Errorf("insert context file: %w", err)
	}

	stored, err := s.store.GetContextFile(ctx, ideaID, filename)
	if err != nil {
		return nil, err
	}
	s.indexContextFile(ctx, ideaID, stored)

	s.spawn(func() { s.extractContextInsights(ideaID, stored) })

	return contextFilePayload(stored), nil
}

// extractContextInsights asks the context agent what a newly added document
// contributes to the kernel and broadcasts the findings.
func (s *Service) extractContextInsights(ideaID string, file store.ContextFile) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	files, err := s.store.ListKernelFiles(ctx, ideaID)
	if err != nil {
		log.Printf("context extraction: list kernel files %s: %v", ideaID, err)
		return
	}
	completion := make(map[string]bool, len(files))
	for _, kernelFile := range files {
		completion[kernelFile.FileType] = kernelFile.IsComplete
	}

	result, err := s.agents.Context.Extract(ctx, agents.ExtractInput{
		Filename:   file.Filename,
		Content:    file.Content,
		Completion: completion,
	})
	if err != nil {
		log.Printf("context extraction %s/%s: %v", ideaID, file.Filename, err)
		return
	}

	insights := make([]map[string]any, 0, len(result.Insights))
	for _, insight := range result.Insights {
		insights = append(insights, map[string]any{
			"quote":        insight.Quote,
			"relevance":    insight.Relevance,
			"suggestion":   insight.Suggestion,
			"kernel_files": agents.MapToKernel(insight),
		})
	}

	s.events.Publish(ideaID, broker.Event{Type: "context_insights", Data: map[string]any{
		"file_id":  file.ID,
		"filename": file.Filename,
		"summary":  result.Summary,
		"insights": insights,
	}})
}

func (s *Service) ListContextFiles(ctx context.Context, ideaID string) ([]map[string]any, error) {
	if _, err := s.store.GetIdea(ctx, ideaID); err != nil {
		return nil, err
	}
	files, err := s.store.ListContextFiles(ctx, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list context files: %w", err)
	}
	payload := make([]map[string]any, 0, len(files))
	for _, file := range files {
		payload = append(payload, contextFilePayload(file))
	}
	return payload, nil
}

func (s *Service) GetContextFile(ctx context.Context, ideaID, fileID string) (map[string]any, error) {
	file, err := s.contextFileForIdea(ctx, ideaID, fileID)
	if err != nil {
		return nil, err
	}
	return contextFilePayload(file), nil
}

func (s *Service) UpdateContextFile(ctx context.Context, ideaID, fileID, content string) (map[string]any, error) {
	if _, err := s.contextFileForIdea(ctx, ideaID, fileID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateContextFileContent(ctx, fileID, content); err != nil {
		return nil, err
	}

	updated, err := s.store.GetContextFileByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	s.indexContextFile(ctx, ideaID, updated)
	return contextFilePayload(updated), nil
}

func (s *Service) DeleteContextFile(ctx context.Context, ideaID, fileID string) error {
	deleted, err := s.store.DeleteContextFile(ctx, ideaID, fileID)
	if err != nil {
		return fmt.Errorf("delete context file: %w", err)
	}
	if !deleted {
		return domainError(404, "NOT_FOUND", "Context file not found", nil)
	}
	s.search.DeleteContextFile(fileID)
	return nil
}

// ContextChat discusses one context file with the context agent.
func (s *Service) ContextChat(ctx context.Context, user store.User, ideaID, fileID, message string) (map[string]any, error) {
	file, err := s.contextFileForIdea(ctx, ideaID, fileID)
	if err != nil {
		return nil, err
	}

	session, err := s.getOrCreateIdeaSession(ctx, user.ID, ideaID, "context", &file.Filename)
	if err != nil {
		return nil, err
	}
	reply, err := s.chatTurn(ctx, session, message, func(history []llm.Message) (string, error) {
		return s.agents.Context.Coach(ctx, file.Filename, file.Content, history, message)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"session_id": session.ID, "response": reply}, nil
}

func (s *Service) contextFileForIdea(ctx context.Context, ideaID, fileID string) (store.ContextFile, error) {
	file, err := s.store.GetContextFileByID(ctx, fileID)
	if err != nil {
		return store.ContextFile{}, err
	}
	if file.IdeaID != ideaID {
		return store.ContextFile{}, domainError(404, "NOT_FOUND", "Context file not found", nil)
	}
	return file, nil
}

func (s *Service) indexContextFile(ctx context.Context, ideaID string, file store.ContextFile) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		log.Printf("index context file %s: %v", file.ID, err)
		return
	}
	s.search.IndexContextFile(search.ContextRecord{
		ID:       file.ID,
		IdeaID:   ideaID,
		Filename: file.Filename,
		Content:  file.Content,
		OrgID:    idea.OrgID,
	})
}

// --- Search ---

func (s *Service) Search(ctx context.Context, user store.User, q search.Query) (map[string]any, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, domainError(400, "QUERY_REQUIRED", "Search query is required", nil)
	}
	q.OrgID = user.OrgID
	if q.Limit <= 0 || q.Limit > 50 {
		q.Limit = 20
	}

	resp := s.search.Search(q)
	return map[string]any{
		"results": resp.Results,
		"total":   resp.Total,
		"limit":   q.Limit,
		"offset":  q.Offset,
	}, nil
}

// --- Export ---

// ExportIdea assembles the kernel packet and renders it as HTML or PDF.
func (s *Service) ExportIdea(ctx context.Context, ideaID string, format export.Format) (*export.Result, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListKernelFiles(ctx, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list kernel files: %w", err)
	}

	author := ""
	if creator, err := s.store.GetUser(ctx, idea.CreatorID); err == nil {
		author = creator.Name
	}

	objectiveTitle := ""
	if idea.ObjectiveID != nil {
		if objective, err := s.store.GetObjective(ctx, *idea.ObjectiveID); err == nil {
			objectiveTitle = objective.Title
		}
	}

	sections := make([]export.Section, 0, len(files))
	for _, file := range files {
		sections = append(sections, export.Section{
			Heading:  kernelLabels[file.FileType],
			Markdown: file.Content,
			Complete: file.IsComplete,
		})
	}

	packet := export.Packet{
		Title:            idea.Title,
		Status:           idea.Status,
		KernelCompletion: idea.KernelCompletion,
		ObjectiveTitle:   objectiveTitle,
		Author:           author,
		UpdatedAt:        idea.UpdatedAt,
		Sections:         sections,
	}
	return export.Export(packet, format)
}

// --- helpers ---

func (s *Service) requireObjective(ctx context.Context, objectiveID string) error {
	if _, err := s.store.GetObjective(ctx, objectiveID); err != nil {
		if store.NotFound(err) {
			return domainError(400, "UNKNOWN_OBJECTIVE", "Linked objective does not exist", nil)
		}
		return err
	}
	return nil
}

func validateKernelFileType(fileType string) error {
	if !store.IsKernelFileType(fileType) {
		return domainError(400, "INVALID_FILE_TYPE", "Unknown kernel file type", map[string]any{"valid": store.KernelFileTypes})
	}
	return nil
}

func truncateTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= 50 {
		return message
	}
	return string(runes[:50])
}

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
		"role":  user.Role,
		"title": user.Title,
	}
}

func ideaPayload(idea store.Idea) map[string]any {
	return map[string]any{
		"id":                idea.ID,
		"title":             idea.Title,
		"status":            idea.Status,
		"objective_id":      idea.ObjectiveID,
		"creator_id":        idea.CreatorID,
		"kernel_completion": idea.KernelCompletion,
		"is_complete":       idea.KernelCompletion == len(store.KernelFileTypes),
		"created_at":        idea.CreatedAt,
		"updated_at":        idea.UpdatedAt,
	}
}

func kernelFilePayload(file store.KernelFile) map[string]any {
	return map[string]any{
		"id":           file.ID,
		"idea_id":      file.IdeaID,
		"file_type":    file.FileType,
		"filename":     store.KernelFileNames[file.FileType],
		"content":      file.Content,
		"content_hash": file.ContentHash,
		"is_complete":  file.IsComplete,
		"updated_at":   file.UpdatedAt,
	}
}

func contextFilePayload(file store.ContextFile) map[string]any {
	return map[string]any{
		"id":               file.ID,
		"idea_id":          file.IdeaID,
		"filename":         file.Filename,
		"content":          file.Content,
		"size_bytes":       file.SizeBytes,
		"created_by_agent": file.CreatedByAgent,
		"created_at":       file.CreatedAt,
		"updated_at":       file.UpdatedAt,
	}
}

func sessionPayload(session store.Session) map[string]any {
	return map[string]any{
		"id":           session.ID,
		"idea_id":      session.IdeaID,
		"objective_id": session.ObjectiveID,
		"user_id":      session.UserID,
		"agent_type":   session.AgentType,
		"file_type":    session.FileType,
		"title":        session.Title,
		"created_at":   session.CreatedAt,
		"last_active":  session.LastActive,
	}
}
