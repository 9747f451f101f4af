package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxIdeas   = "crabgrass_ideas"
	idxKernel  = "crabgrass_kernel_files"
	idxContext = "crabgrass_context_files"
)

// Meili implements search and indexing via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. If the
// initial connection fails the client stays registered and the health
// loop retries; callers fall back to Postgres meanwhile.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxIdeas,
			filterable: []string{"orgId", "status"},
			searchable: []string{"title"},
		},
		{
			uid:        idxKernel,
			filterable: []string{"orgId", "ideaId", "fileType"},
			searchable: []string{"content", "ideaTitle"},
		},
		{
			uid:        idxContext,
			filterable: []string{"orgId", "ideaId"},
			searchable: []string{"filename", "content"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the three indexes (or a filtered subset) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	targets := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxIdeas, ResultIdea},
		{idxKernel, ResultKernel},
		{idxContext, ResultContext},
	}

	var queries []*meili.SearchRequest
	for _, ti := range targets {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}

		filters := []string{fmt.Sprintf("orgId = %q", q.OrgID)}
		if q.FilterIdeaID != "" && ti.rtyp != ResultIdea {
			filters = append(filters, fmt.Sprintf("ideaId = %q", q.FilterIdeaID))
		}
		sr.Filter = filters
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}
	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxIdeas:
		return ResultIdea
	case idxKernel:
		return ResultKernel
	case idxContext:
		return ResultContext
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")

	switch rtyp {
	case ResultIdea:
		r.IdeaID = r.ID
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
	case ResultKernel:
		r.IdeaID = decodeString(hit, "ideaId")
		r.FileType = decodeString(hit, "fileType")
		r.Title = firstNonBlank(decodeString(hit, "ideaTitle"), r.FileType)
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "content"), snippetOf(decodeString(hit, "content")))
	case ResultContext:
		r.IdeaID = decodeString(hit, "ideaId")
		r.Title = firstNonBlank(decodeFormattedString(hit, "filename"), decodeString(hit, "filename"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "content"), snippetOf(decodeString(hit, "content")))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func snippetOf(content string) string {
	const max = 160
	content = strings.TrimSpace(content)
	if len(content) <= max {
		return content
	}
	return content[:max] + "…"
}

// IndexIdea adds or updates an idea in the search index.
func (m *Meili) IndexIdea(rec IdeaRecord) error {
	_, err := m.client.Index(idxIdeas).AddDocuments([]IdeaRecord{rec}, nil)
	return err
}

// IndexKernelFile adds or updates a kernel file in the search index.
func (m *Meili) IndexKernelFile(rec KernelRecord) error {
	_, err := m.client.Index(idxKernel).AddDocuments([]KernelRecord{rec}, nil)
	return err
}

// IndexContextFile adds or updates a context file in the search index.
func (m *Meili) IndexContextFile(rec ContextRecord) error {
	_, err := m.client.Index(idxContext).AddDocuments([]ContextRecord{rec}, nil)
	return err
}

// DeleteIdea removes an idea from the search index.
func (m *Meili) DeleteIdea(id string) error {
	_, err := m.client.Index(idxIdeas).DeleteDocument(id, nil)
	return err
}

// DeleteContextFile removes a context file from the search index.
func (m *Meili) DeleteContextFile(id string) error {
	_, err := m.client.Index(idxContext).DeleteDocument(id, nil)
	return err
}
