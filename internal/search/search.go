package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultIdea    ResultType = "idea"
	ResultKernel  ResultType = "kernel_file"
	ResultContext ResultType = "context_file"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	IdeaID   string     `json:"idea_id"`
	FileType string     `json:"file_type,omitempty"`
}

// Query describes a search request. OrgID scopes every search.
type Query struct {
	Text         string
	OrgID        string
	FilterType   ResultType // empty = all types
	FilterIdeaID string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// IdeaRecord is the data indexed for an idea.
type IdeaRecord struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	OrgID  string `json:"orgId"`
	Status string `json:"status"`
}

// KernelRecord is the data indexed for one kernel file.
type KernelRecord struct {
	ID        string `json:"id"`
	IdeaID    string `json:"ideaId"`
	IdeaTitle string `json:"ideaTitle"`
	FileType  string `json:"fileType"`
	Content   string `json:"content"`
	OrgID     string `json:"orgId"`
}

// ContextRecord is the data indexed for a context file.
type ContextRecord struct {
	ID       string `json:"id"`
	IdeaID   string `json:"ideaId"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
	OrgID    string `json:"orgId"`
}
