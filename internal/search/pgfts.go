package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across newsletters, submissions, and
// notice_board using plainto_tsquery and ts_rank, with ts_headline for snippets.
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

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Newsletters sub-query
	if q.FilterType == "" || q.FilterType == ResultNewsletter {
		where := "n.fts @@ " + tsQuery
		if !q.IncludeHidden {
			where += " AND n.is_published"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'newsletter'::text AS type, n.id, n.title,
				ts_headline('english', coalesce(n.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS department,
				''::text AS status,
				ts_rank(n.fts, %s) AS rank
			FROM newsletters n
			WHERE %s`, tsQuery, tsQuery, where))
	}

	// Submissions sub-query
	if q.FilterType == "" || q.FilterType == ResultSubmission {
		where := "s.fts @@ " + tsQuery
		if !q.IncludeHidden {
			where += " AND s.status = 'approved'"
		}
		if q.FilterDepartment != "" {
			where += fmt.Sprintf(" AND s.department = $%d", argN)
			args = append(args, q.FilterDepartment)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'submission'::text AS type, s.id, s.title,
				ts_headline('english', coalesce(s.summary, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				s.department,
				s.status,
				ts_rank(s.fts, %s) AS rank
			FROM submissions s
			WHERE %s`, tsQuery, tsQuery, where))
	}

	// Notice board sub-query
	if q.FilterType == "" || q.FilterType == ResultNotice {
		where := "nb.fts @@ " + tsQuery
		if !q.IncludeHidden {
			where += " AND nb.published_at <= NOW() AND (nb.expires_at IS NULL OR nb.expires_at > NOW())"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'notice'::text AS type, nb.id, nb.title,
				ts_headline('english', coalesce(nb.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS department,
				''::text AS status,
				ts_rank(nb.fts, %s) AS rank
			FROM notice_board nb
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	// Count query
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	// Data query
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, department, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

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
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Department, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]NewsletterRecord, []SubmissionRecord, []NoticeRecord, error) {
	newsRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, is_published
		FROM newsletters
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load newsletters: %w", err)
	}
	defer newsRows.Close()

	newsletters := make([]NewsletterRecord, 0)
	for newsRows.Next() {
		var n NewsletterRecord
		if err := newsRows.Scan(&n.ID, &n.Title, &n.Description, &n.Published); err != nil {
			return nil, nil, nil, fmt.Errorf("scan newsletter: %w", err)
		}
		newsletters = append(newsletters, n)
	}
	if err := newsRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate newsletters: %w", err)
	}

	subRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, summary, category, department, submitter_name, status
		FROM submissions
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load submissions: %w", err)
	}
	defer subRows.Close()

	submissions := make([]SubmissionRecord, 0)
	for subRows.Next() {
		var s SubmissionRecord
		if err := subRows.Scan(&s.ID, &s.Title, &s.Summary, &s.Category, &s.Department, &s.SubmitterName, &s.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan submission: %w", err)
		}
		submissions = append(submissions, s)
	}
	if err := subRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate submissions: %w", err)
	}

	noticeRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, body,
			published_at <= NOW() AND (expires_at IS NULL OR expires_at > NOW()) AS active
		FROM notice_board
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load notices: %w", err)
	}
	defer noticeRows.Close()

	notices := make([]NoticeRecord, 0)
	for noticeRows.Next() {
		var n NoticeRecord
		if err := noticeRows.Scan(&n.ID, &n.Title, &n.Body, &n.Active); err != nil {
			return nil, nil, nil, fmt.Errorf("scan notice: %w", err)
		}
		notices = append(notices, n)
	}
	if err := noticeRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate notices: %w", err)
	}

	return newsletters, submissions, notices, nil
}
