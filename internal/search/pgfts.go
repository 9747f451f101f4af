package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements search over PostgreSQL full-text indexes as a fallback
// when Meilisearch is not configured or unreachable.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL across ideas, kernel files, and context files
// using websearch_to_tsquery and ts_rank, with ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "websearch_to_tsquery('english', $1)"
	args := []any{q.Text, q.OrgID}
	argN := 3

	ideaFilter := ""
	if q.FilterIdeaID != "" {
		ideaFilter = fmt.Sprintf(" AND i.id = $%d", argN)
		args = append(args, q.FilterIdeaID)
		argN++
	}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultIdea {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'idea'::text AS type, i.id::text, i.title,
				''::text AS snippet,
				i.id::text AS idea_id, ''::text AS file_type,
				ts_rank(to_tsvector('english', i.title), %s) AS rank
			FROM ideas i
			WHERE i.org_id = $2 AND i.status != 'archived'%s
			  AND to_tsvector('english', i.title) @@ %s`, tsQuery, ideaFilter, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultKernel {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'kernel_file'::text AS type, k.id::text, i.title,
				ts_headline('english', k.content, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				i.id::text AS idea_id, k.file_type,
				ts_rank(to_tsvector('english', k.content), %s) AS rank
			FROM kernel_files k
			JOIN ideas i ON i.id = k.idea_id
			WHERE i.org_id = $2 AND i.status != 'archived'%s
			  AND to_tsvector('english', k.content) @@ %s`, tsQuery, tsQuery, ideaFilter, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultContext {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'context_file'::text AS type, c.id::text, c.filename,
				ts_headline('english', c.content, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				i.id::text AS idea_id, ''::text AS file_type,
				ts_rank(to_tsvector('english', c.filename || ' ' || c.content), %s) AS rank
			FROM context_files c
			JOIN ideas i ON i.id = c.idea_id
			WHERE i.org_id = $2 AND i.status != 'archived'%s
			  AND to_tsvector('english', c.filename || ' ' || c.content) @@ %s`, tsQuery, tsQuery, ideaFilter, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, idea_id, file_type
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.IdeaID, &r.FileType); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every searchable record for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]IdeaRecord, []KernelRecord, []ContextRecord, error) {
	ideaRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, org_id, status FROM ideas WHERE status != 'archived'
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load ideas: %w", err)
	}
	defer ideaRows.Close()

	ideas := make([]IdeaRecord, 0)
	for ideaRows.Next() {
		var rec IdeaRecord
		if err := ideaRows.Scan(&rec.ID, &rec.Title, &rec.OrgID, &rec.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan idea: %w", err)
		}
		ideas = append(ideas, rec)
	}
	if err := ideaRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate ideas: %w", err)
	}

	kernelRows, err := p.db.QueryContext(ctx, `
		SELECT k.id, k.idea_id, i.title, k.file_type, k.content, i.org_id
		FROM kernel_files k
		JOIN ideas i ON i.id = k.idea_id
		WHERE i.status != 'archived'
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load kernel files: %w", err)
	}
	defer kernelRows.Close()

	kernels := make([]KernelRecord, 0)
	for kernelRows.Next() {
		var rec KernelRecord
		if err := kernelRows.Scan(&rec.ID, &rec.IdeaID, &rec.IdeaTitle, &rec.FileType, &rec.Content, &rec.OrgID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan kernel file: %w", err)
		}
		kernels = append(kernels, rec)
	}
	if err := kernelRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate kernel files: %w", err)
	}

	contextRows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.idea_id, c.filename, c.content, i.org_id
		FROM context_files c
		JOIN ideas i ON i.id = c.idea_id
		WHERE i.status != 'archived'
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load context files: %w", err)
	}
	defer contextRows.Close()

	contexts := make([]ContextRecord, 0)
	for contextRows.Next() {
		var rec ContextRecord
		if err := contextRows.Scan(&rec.ID, &rec.IdeaID, &rec.Filename, &rec.Content, &rec.OrgID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan context file: %w", err)
		}
		contexts = append(contexts, rec)
	}
	if err := contextRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate context files: %w", err)
	}

	return ideas, kernels, contexts, nil
}
