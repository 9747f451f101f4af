package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to
// PostgreSQL full-text search.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil when Meilisearch
// is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexIdea indexes an idea (fire-and-forget to Meilisearch).
func (s *Service) IndexIdea(rec IdeaRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexIdea(rec); err != nil {
			log.Printf("search: index idea %s: %v", rec.ID, err)
		}
	}()
}

// IndexKernelFile indexes a kernel file (fire-and-forget to Meilisearch).
func (s *Service) IndexKernelFile(rec KernelRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexKernelFile(rec); err != nil {
			log.Printf("search: index kernel file %s: %v", rec.ID, err)
		}
	}()
}

// IndexContextFile indexes a context file (fire-and-forget to Meilisearch).
func (s *Service) IndexContextFile(rec ContextRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexContextFile(rec); err != nil {
			log.Printf("search: index context file %s: %v", rec.ID, err)
		}
	}()
}

// DeleteIdea removes an idea from the search index (fire-and-forget).
func (s *Service) DeleteIdea(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteIdea(id); err != nil {
			log.Printf("search: delete idea %s: %v", id, err)
		}
	}()
}

// DeleteContextFile removes a context file from the index (fire-and-forget).
func (s *Service) DeleteContextFile(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteContextFile(id); err != nil {
			log.Printf("search: delete context file %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reads all searchable records from PostgreSQL and pushes
// them to Meilisearch. Called at startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	ideas, kernels, contexts, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	for _, rec := range ideas {
		if err := s.meili.IndexIdea(rec); err != nil {
			log.Printf("search: reindex idea %s: %v", rec.ID, err)
		}
	}
	for _, rec := range kernels {
		if err := s.meili.IndexKernelFile(rec); err != nil {
			log.Printf("search: reindex kernel file %s: %v", rec.ID, err)
		}
	}
	for _, rec := range contexts {
		if err := s.meili.IndexContextFile(rec); err != nil {
			log.Printf("search: reindex context file %s: %v", rec.ID, err)
		}
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
