package app

import (
	"context"
	"database/sql"
	"sync"

	"github.com/justingibbs/crabgrass-2/internal/agents"
	"github.com/justingibbs/crabgrass-2/internal/broker"
	"github.com/justingibbs/crabgrass-2/internal/config"
	"github.com/justingibbs/crabgrass-2/internal/gitrepo"
	"github.com/justingibbs/crabgrass-2/internal/llm"
	"github.com/justingibbs/crabgrass-2/internal/search"
	"github.com/justingibbs/crabgrass-2/internal/store"
)

type fakeStore struct {
	pingFn                     func(context.Context) error
	insertOrganizationFn       func(context.Context, store.Organization) error
	insertUserFn               func(context.Context, store.User) error
	countUsersFn               func(context.Context) (int, error)
	getUserFn                  func(context.Context, string) (store.User, error)
	listUsersFn                func(context.Context) ([]store.User, error)
	insertIdeaFn               func(context.Context, store.Idea) error
	getIdeaFn                  func(context.Context, string) (store.Idea, error)
	listIdeasForUserFn         func(context.Context, string, string) ([]store.Idea, error)
	listIdeasForObjectiveFn    func(context.Context, string) ([]store.Idea, error)
	updateIdeaFn               func(context.Context, string, *string, *string) error
	archiveIdeaFn              func(context.Context, string) error
	updateKernelCompletionFn   func(context.Context, string) (int, error)
	insertKernelFileFn         func(context.Context, store.KernelFile) error
	getKernelFileFn            func(context.Context, string, string) (store.KernelFile, error)
	listKernelFilesFn          func(context.Context, string) ([]store.KernelFile, error)
	updateKernelFileContentFn  func(context.Context, string, string, string, string, string) error
	setKernelFileCompleteFn    func(context.Context, string, string, bool) error
	insertObjectiveFn          func(context.Context, store.Objective) error
	getObjectiveFn             func(context.Context, string) (store.Objective, error)
	listObjectivesFn           func(context.Context, string) ([]store.Objective, error)
	updateObjectiveFn          func(context.Context, string, *string, *string, *string, *string, *string) error
	countLinkedIdeasFn         func(context.Context, string) (int, error)
	insertObjectiveFileFn      func(context.Context, store.ObjectiveFile) error
	getObjectiveFileFn         func(context.Context, string) (store.ObjectiveFile, error)
	updateObjectiveFileFn      func(context.Context, string, string) error
	insertContextFileFn        func(context.Context, store.ContextFile) error
	getContextFileFn           func(context.Context, string, string) (store.ContextFile, error)
	getContextFileByIDFn       func(context.Context, string) (store.ContextFile, error)
	listContextFilesFn         func(context.Context, string) ([]store.ContextFile, error)
	updateContextFileContentFn func(context.Context, string, string) error
	upsertContextFileFn        func(context.Context, store.ContextFile) error
	deleteContextFileFn        func(context.Context, string, string) (bool, error)
	insertSessionFn            func(context.Context, store.Session) error
	getSessionFn               func(context.Context, string) (store.Session, error)
	listSessionsForIdeaFn      func(context.Context, string, string, string) ([]store.Session, error)
	listSessionsForObjectiveFn func(context.Context, string, string) ([]store.Session, error)
	updateSessionTitleFn       func(context.Context, string, string) error
	insertSessionMessageFn     func(context.Context, store.SessionMessage) error
	listSessionMessagesFn      func(context.Context, string, int) ([]store.SessionMessage, error)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}
func (f *fakeStore) InsertOrganization(ctx context.Context, org store.Organization) error {
	if f.insertOrganizationFn != nil {
		return f.insertOrganizationFn(ctx, org)
	}
	return nil
}
func (f *fakeStore) InsertUser(ctx context.Context, user store.User) error {
	if f.insertUserFn != nil {
		return f.insertUserFn(ctx, user)
	}
	return nil
}
func (f *fakeStore) CountUsers(ctx context.Context) (int, error) {
	if f.countUsersFn != nil {
		return f.countUsersFn(ctx)
	}
	return 2, nil
}
func (f *fakeStore) GetUser(ctx context.Context, userID string) (store.User, error) {
	if f.getUserFn != nil {
		return f.getUserFn(ctx, userID)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) ListUsers(ctx context.Context) ([]store.User, error) {
	if f.listUsersFn != nil {
		return f.listUsersFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) InsertIdea(ctx context.Context, idea store.Idea) error {
	if f.insertIdeaFn != nil {
		return f.insertIdeaFn(ctx, idea)
	}
	return nil
}
func (f *fakeStore) GetIdea(ctx context.Context, ideaID string) (store.Idea, error) {
	if f.getIdeaFn != nil {
		return f.getIdeaFn(ctx, ideaID)
	}
	return store.Idea{}, sql.ErrNoRows
}
func (f *fakeStore) ListIdeasForUser(ctx context.Context, orgID, userID string) ([]store.Idea, error) {
	if f.listIdeasForUserFn != nil {
		return f.listIdeasForUserFn(ctx, orgID, userID)
	}
	return nil, nil
}
func (f *fakeStore) ListIdeasForObjective(ctx context.Context, objectiveID string) ([]store.Idea, error) {
	if f.listIdeasForObjectiveFn != nil {
		return f.listIdeasForObjectiveFn(ctx, objectiveID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateIdea(ctx context.Context, ideaID string, title, objectiveID *string) error {
	if f.updateIdeaFn != nil {
		return f.updateIdeaFn(ctx, ideaID, title, objectiveID)
	}
	return nil
}
func (f *fakeStore) TouchIdea(context.Context, string) error { return nil }
func (f *fakeStore) ArchiveIdea(ctx context.Context, ideaID string) error {
	if f.archiveIdeaFn != nil {
		return f.archiveIdeaFn(ctx, ideaID)
	}
	return nil
}
func (f *fakeStore) UpdateKernelCompletion(ctx context.Context, ideaID string) (int, error) {
	if f.updateKernelCompletionFn != nil {
		return f.updateKernelCompletionFn(ctx, ideaID)
	}
	return 0, nil
}
func (f *fakeStore) InsertKernelFile(ctx context.Context, file store.KernelFile) error {
	if f.insertKernelFileFn != nil {
		return f.insertKernelFileFn(ctx, file)
	}
	return nil
}
func (f *fakeStore) GetKernelFile(ctx context.Context, ideaID, fileType string) (store.KernelFile, error) {
	if f.getKernelFileFn != nil {
		return f.getKernelFileFn(ctx, ideaID, fileType)
	}
	return store.KernelFile{}, sql.ErrNoRows
}
func (f *fakeStore) ListKernelFiles(ctx context.Context, ideaID string) ([]store.KernelFile, error) {
	if f.listKernelFilesFn != nil {
		return f.listKernelFilesFn(ctx, ideaID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateKernelFileContent(ctx context.Context, ideaID, fileType, content, contentHash, userID string) error {
	if f.updateKernelFileContentFn != nil {
		return f.updateKernelFileContentFn(ctx, ideaID, fileType, content, contentHash, userID)
	}
	return nil
}
func (f *fakeStore) SetKernelFileComplete(ctx context.Context, ideaID, fileType string, complete bool) error {
	if f.setKernelFileCompleteFn != nil {
		return f.setKernelFileCompleteFn(ctx, ideaID, fileType, complete)
	}
	return nil
}
func (f *fakeStore) InsertObjective(ctx context.Context, objective store.Objective) error {
	if f.insertObjectiveFn != nil {
		return f.insertObjectiveFn(ctx, objective)
	}
	return nil
}
func (f *fakeStore) GetObjective(ctx context.Context, objectiveID string) (store.Objective, error) {
	if f.getObjectiveFn != nil {
		return f.getObjectiveFn(ctx, objectiveID)
	}
	return store.Objective{}, sql.ErrNoRows
}
func (f *fakeStore) ListObjectives(ctx context.Context, orgID string) ([]store.Objective, error) {
	if f.listObjectivesFn != nil {
		return f.listObjectivesFn(ctx, orgID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateObjective(ctx context.Context, objectiveID string, title, description, timeframe, ownerID, status *string) error {
	if f.updateObjectiveFn != nil {
		return f.updateObjectiveFn(ctx, objectiveID, title, description, timeframe, ownerID, status)
	}
	return nil
}
func (f *fakeStore) ArchiveObjective(context.Context, string) error { return nil }
func (f *fakeStore) CountLinkedIdeas(ctx context.Context, objectiveID string) (int, error) {
	if f.countLinkedIdeasFn != nil {
		return f.countLinkedIdeasFn(ctx, objectiveID)
	}
	return 0, nil
}
func (f *fakeStore) InsertObjectiveFile(ctx context.Context, file store.ObjectiveFile) error {
	if f.insertObjectiveFileFn != nil {
		return f.insertObjectiveFileFn(ctx, file)
	}
	return nil
}
func (f *fakeStore) GetObjectiveFile(ctx context.Context, objectiveID string) (store.ObjectiveFile, error) {
	if f.getObjectiveFileFn != nil {
		return f.getObjectiveFileFn(ctx, objectiveID)
	}
	return store.ObjectiveFile{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateObjectiveFileContent(ctx context.Context, objectiveID, content string) error {
	if f.updateObjectiveFileFn != nil {
		return f.updateObjectiveFileFn(ctx, objectiveID, content)
	}
	return nil
}
func (f *fakeStore) InsertContextFile(ctx context.Context, file store.ContextFile) error {
	if f.insertContextFileFn != nil {
		return f.insertContextFileFn(ctx, file)
	}
	return nil
}
func (f *fakeStore) GetContextFile(ctx context.Context, ideaID, filename string) (store.ContextFile, error) {
	if f.getContextFileFn != nil {
		return f.getContextFileFn(ctx, ideaID, filename)
	}
	return store.ContextFile{}, sql.ErrNoRows
}
func (f *fakeStore) GetContextFileByID(ctx context.Context, fileID string) (store.ContextFile, error) {
	if f.getContextFileByIDFn != nil {
		return f.getContextFileByIDFn(ctx, fileID)
	}
	return store.ContextFile{}, sql.ErrNoRows
}
func (f *fakeStore) ListContextFiles(ctx context.Context, ideaID string) ([]store.ContextFile, error) {
	if f.listContextFilesFn != nil {
		return f.listContextFilesFn(ctx, ideaID)
	}
	return nil, nil
}
func (f *fakeStore) UpdateContextFileContent(ctx context.Context, fileID, content string) error {
	if f.updateContextFileContentFn != nil {
		return f.updateContextFileContentFn(ctx, fileID, content)
	}
	return nil
}
func (f *fakeStore) UpsertContextFile(ctx context.Context, file store.ContextFile) error {
	if f.upsertContextFileFn != nil {
		return f.upsertContextFileFn(ctx, file)
	}
	return nil
}
func (f *fakeStore) DeleteContextFile(ctx context.Context, ideaID, fileID string) (bool, error) {
	if f.deleteContextFileFn != nil {
		return f.deleteContextFileFn(ctx, ideaID, fileID)
	}
	return false, nil
}
func (f *fakeStore) InsertSession(ctx context.Context, session store.Session) error {
	if f.insertSessionFn != nil {
		return f.insertSessionFn(ctx, session)
	}
	return nil
}
func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	if f.getSessionFn != nil {
		return f.getSessionFn(ctx, sessionID)
	}
	return store.Session{}, sql.ErrNoRows
}
func (f *fakeStore) ListSessionsForIdea(ctx context.Context, ideaID, agentType, fileType string) ([]store.Session, error) {
	if f.listSessionsForIdeaFn != nil {
		return f.listSessionsForIdeaFn(ctx, ideaID, agentType, fileType)
	}
	return nil, nil
}
func (f *fakeStore) ListSessionsForObjective(ctx context.Context, objectiveID, agentType string) ([]store.Session, error) {
	if f.listSessionsForObjectiveFn != nil {
		return f.listSessionsForObjectiveFn(ctx, objectiveID, agentType)
	}
	return nil, nil
}
func (f *fakeStore) UpdateSessionTitle(ctx context.Context, sessionID, title string) error {
	if f.updateSessionTitleFn != nil {
		return f.updateSessionTitleFn(ctx, sessionID, title)
	}
	return nil
}
func (f *fakeStore) InsertSessionMessage(ctx context.Context, message store.SessionMessage) error {
	if f.insertSessionMessageFn != nil {
		return f.insertSessionMessageFn(ctx, message)
	}
	return nil
}
func (f *fakeStore) ListSessionMessages(ctx context.Context, sessionID string, limit int) ([]store.SessionMessage, error) {
	if f.listSessionMessagesFn != nil {
		return f.listSessionMessagesFn(ctx, sessionID, limit)
	}
	return nil, nil
}

type fakeGit struct {
	ensureIdeaRepoFn func(string, map[string]string, string) error
	commitFileFn     func(string, string, string, string, string) (gitrepo.CommitInfo, error)
	historyFn        func(string, string, int) ([]gitrepo.CommitInfo, error)
	fileAtCommitFn   func(string, string, string) (string, error)
}

func (f *fakeGit) EnsureIdeaRepo(ideaID string, files map[string]string, author string) error {
	if f.ensureIdeaRepoFn != nil {
		return f.ensureIdeaRepoFn(ideaID, files, author)
	}
	return nil
}
func (f *fakeGit) CommitFile(ideaID, fileType, content, author, message string) (gitrepo.CommitInfo, error) {
	if f.commitFileFn != nil {
		return f.commitFileFn(ideaID, fileType, content, author, message)
	}
	return gitrepo.CommitInfo{Hash: "abc1234"}, nil
}
func (f *fakeGit) History(ideaID, fileType string, limit int) ([]gitrepo.CommitInfo, error) {
	if f.historyFn != nil {
		return f.historyFn(ideaID, fileType, limit)
	}
	return nil, nil
}
func (f *fakeGit) FileAtCommit(ideaID, fileType, hash string) (string, error) {
	if f.fileAtCommitFn != nil {
		return f.fileAtCommitFn(ideaID, fileType, hash)
	}
	return "", nil
}

type fakeSearch struct {
	mu           sync.Mutex
	indexedIdeas []search.IdeaRecord
	indexedFiles []search.KernelRecord
	indexedCtx   []search.ContextRecord
	deletedIdeas []string
	searchFn     func(search.Query) search.Response
	reindexed    bool
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(q)
	}
	return search.Response{Results: []search.Result{}}
}
func (f *fakeSearch) IndexIdea(rec search.IdeaRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexedIdeas = append(f.indexedIdeas, rec)
}
func (f *fakeSearch) IndexKernelFile(rec search.KernelRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexedFiles = append(f.indexedFiles, rec)
}
func (f *fakeSearch) IndexContextFile(rec search.ContextRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexedCtx = append(f.indexedCtx, rec)
}
func (f *fakeSearch) DeleteIdea(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedIdeas = append(f.deletedIdeas, id)
}
func (f *fakeSearch) DeleteContextFile(id string) {}
func (f *fakeSearch) ReindexAllFromPG(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reindexed = true
}

// recordingBus captures every published event so tests can assert on the
// broadcast side of a pipeline.
type recordingBus struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	EntityID string
	Event    broker.Event
}

func (b *recordingBus) Subscribe(entityID string) chan broker.Event {
	return make(chan broker.Event, 1)
}
func (b *recordingBus) Unsubscribe(entityID string, ch chan broker.Event) {}
func (b *recordingBus) Publish(entityID string, event broker.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{EntityID: entityID, Event: event})
}

func (b *recordingBus) byType(eventType string) []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publishedEvent
	for _, evt := range b.events {
		if evt.Event.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type fakeFileCoach struct {
	evaluateFn      func(context.Context, string, string) (agents.Evaluation, error)
	coachFn         func(context.Context, string, []llm.Message, string) (string, error)
	editSelectionFn func(context.Context, string, string, string) (string, error)
}

func (f *fakeFileCoach) Evaluate(ctx context.Context, content, extra string) (agents.Evaluation, error) {
	if f.evaluateFn != nil {
		return f.evaluateFn(ctx, content, extra)
	}
	return agents.Evaluation{}, nil
}
func (f *fakeFileCoach) Coach(ctx context.Context, content string, history []llm.Message, message string) (string, error) {
	if f.coachFn != nil {
		return f.coachFn(ctx, content, history, message)
	}
	return "coaching reply", nil
}
func (f *fakeFileCoach) EditSelection(ctx context.Context, document, selection, instruction string) (string, error) {
	if f.editSelectionFn != nil {
		return f.editSelectionFn(ctx, document, selection, instruction)
	}
	return "edited text", nil
}

type fakeCoherenceCoach struct {
	evaluateFn func(context.Context, agents.CoherenceInput) (string, error)
}

func (f *fakeCoherenceCoach) Evaluate(ctx context.Context, input agents.CoherenceInput) (string, error) {
	if f.evaluateFn != nil {
		return f.evaluateFn(ctx, input)
	}
	return "# Coherence Feedback", nil
}
func (f *fakeCoherenceCoach) Coach(ctx context.Context, input agents.CoherenceInput, history []llm.Message, message string) (string, error) {
	return "coherence reply", nil
}

type fakeContextCoach struct {
	extractFn func(context.Context, agents.ExtractInput) (agents.ExtractionResult, error)
}

func (f *fakeContextCoach) Extract(ctx context.Context, input agents.ExtractInput) (agents.ExtractionResult, error) {
	if f.extractFn != nil {
		return f.extractFn(ctx, input)
	}
	return agents.ExtractionResult{}, nil
}
func (f *fakeContextCoach) Coach(ctx context.Context, filename, content string, history []llm.Message, message string) (string, error) {
	return "context reply", nil
}

type fakeObjectiveCoach struct {
	alignmentFn func(context.Context, string, string, string, []agents.LinkedIdea) (string, error)
}

func (f *fakeObjectiveCoach) Evaluate(ctx context.Context, content string) (agents.Evaluation, error) {
	return agents.Evaluation{}, nil
}
func (f *fakeObjectiveCoach) SummarizeAlignment(ctx context.Context, title, timeframe, content string, ideas []agents.LinkedIdea) (string, error) {
	if f.alignmentFn != nil {
		return f.alignmentFn(ctx, title, timeframe, content, ideas)
	}
	return "alignment summary", nil
}
func (f *fakeObjectiveCoach) Coach(ctx context.Context, content string, history []llm.Message, message string) (string, error) {
	return "objective reply", nil
}
func (f *fakeObjectiveCoach) EditSelection(ctx context.Context, document, selection, instruction string) (string, error) {
	return "edited objective text", nil
}

func testAgents() AgentSet {
	kernel := make(map[string]fileCoach, len(store.KernelFileTypes))
	for _, fileType := range store.KernelFileTypes {
		kernel[fileType] = &fakeFileCoach{}
	}
	return AgentSet{
		Kernel:    kernel,
		Coherence: &fakeCoherenceCoach{},
		Context:   &fakeContextCoach{},
		Objective: &fakeObjectiveCoach{},
	}
}

func testConfig() config.Config {
	return config.Config{
		CookieName:   "crabgrass_dev_user",
		CookieSecret: "test-secret",
		CORSOrigin:   "*",
	}
}

func newTestService(fs *fakeStore, fg *fakeGit) (*Service, *fakeSearch, *recordingBus) {
	searcher := &fakeSearch{}
	bus := &recordingBus{}
	return New(testConfig(), fs, fg, searcher, bus, testAgents()), searcher, bus
}
