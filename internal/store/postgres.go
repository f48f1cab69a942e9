package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertIssue writes an issue keyed on (year, month): a second upload for
// the same calendar issue overwrites rather than duplicating.
func (s *PostgresStore) UpsertIssue(ctx context.Context, item Issue) (Issue, error) {
	const query = `
		INSERT INTO issues (year, month, title, global_pdf_url, published_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (year, month) DO UPDATE
			SET title=EXCLUDED.title,
			    global_pdf_url=EXCLUDED.global_pdf_url,
			    published_at=EXCLUDED.published_at,
			    created_by=EXCLUDED.created_by,
			    updated_at=NOW()
		RETURNING id, year, month, title, global_pdf_url, published_at, created_at, updated_at
	`
	var out Issue
	err := s.db.QueryRowContext(ctx, query,
		item.Year, item.Month, item.Title, item.GlobalPDFURL, item.PublishedAt, item.CreatedBy,
	).Scan(&out.ID, &out.Year, &out.Month, &out.Title, &out.GlobalPDFURL, &out.PublishedAt, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Issue{}, translate("upsert issue", err)
	}
	return out, nil
}

func (s *PostgresStore) GetIssue(ctx context.Context, issueID string) (Issue, error) {
	var item Issue
	err := s.db.QueryRowContext(ctx, `
		SELECT id, year, month, title, global_pdf_url, published_at, created_at, updated_at
		FROM issues
		WHERE id=$1
	`, issueID).Scan(&item.ID, &item.Year, &item.Month, &item.Title, &item.GlobalPDFURL, &item.PublishedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Issue{}, translate("get issue", err)
	}
	return item, nil
}

func (s *PostgresStore) ListIssues(ctx context.Context) ([]Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, year, month, title, global_pdf_url, published_at, created_at, updated_at
		FROM issues
		ORDER BY year DESC, month DESC
	`)
	if err != nil {
		return nil, translate("list issues", err)
	}
	defer rows.Close()

	items := make([]Issue, 0)
	for rows.Next() {
		var item Issue
		if err := rows.Scan(&item.ID, &item.Year, &item.Month, &item.Title, &item.GlobalPDFURL, &item.PublishedAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, translate("scan issue", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate issues", err)
	}
	return items, nil
}

// CurrentIssue returns the most recent published issue by calendar order,
// or nil when nothing is published.
func (s *PostgresStore) CurrentIssue(ctx context.Context) (*Issue, error) {
	var item Issue
	err := s.db.QueryRowContext(ctx, `
		SELECT id, year, month, title, global_pdf_url, published_at, created_at, updated_at
		FROM issues
		WHERE published_at IS NOT NULL
		ORDER BY year DESC, month DESC
		LIMIT 1
	`).Scan(&item.ID, &item.Year, &item.Month, &item.Title, &item.GlobalPDFURL, &item.PublishedAt, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("current issue", err)
	}
	return &item, nil
}

// SetIssuePublished publishes (published=true, refreshing the timestamp) or
// unpublishes an issue. Both directions are idempotent.
func (s *PostgresStore) SetIssuePublished(ctx context.Context, issueID string, published bool) error {
	var result sql.Result
	var err error
	if published {
		result, err = s.db.ExecContext(ctx, `UPDATE issues SET published_at=NOW(), updated_at=NOW() WHERE id=$1`, issueID)
	} else {
		result, err = s.db.ExecContext(ctx, `UPDATE issues SET published_at=NULL, updated_at=NOW() WHERE id=$1`, issueID)
	}
	if err != nil {
		return translate("set issue published", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translate("set issue published rows", err)
	}
	if affected == 0 {
		return translate("set issue published", sql.ErrNoRows)
	}
	return nil
}

func (s *PostgresStore) UpsertDepartmentIssue(ctx context.Context, item DepartmentIssue) (DepartmentIssue, error) {
	const query = `
		INSERT INTO department_issues (issue_id, department_id, summary, pdf_url, published_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (issue_id, department_id) DO UPDATE
			SET summary=EXCLUDED.summary,
			    pdf_url=EXCLUDED.pdf_url,
			    published_at=EXCLUDED.published_at,
			    created_by=EXCLUDED.created_by,
			    updated_at=NOW()
		RETURNING id, issue_id, department_id, summary, pdf_url, published_at, created_at
	`
	var out DepartmentIssue
	err := s.db.QueryRowContext(ctx, query,
		item.IssueID, item.DepartmentID, item.Summary, item.PDFURL, item.PublishedAt, item.CreatedBy,
	).Scan(&out.ID, &out.IssueID, &out.DepartmentID, &out.Summary, &out.PDFURL, &out.PublishedAt, &out.CreatedAt)
	if err != nil {
		return DepartmentIssue{}, translate("upsert department issue", err)
	}
	return out, nil
}

// ListDepartmentIssues returns department contributions, optionally scoped
// to one issue, newest first, with department names joined for rendering.
func (s *PostgresStore) ListDepartmentIssues(ctx context.Context, issueID string) ([]DepartmentIssue, error) {
	const query = `
		SELECT di.id, di.issue_id, di.department_id, di.summary, di.pdf_url, di.published_at, di.created_at,
		       d.name, d.short_name
		FROM department_issues di
		JOIN departments d ON d.id = di.department_id
		WHERE ($1 = '' OR di.issue_id = $1)
		ORDER BY di.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, translate("list department issues", err)
	}
	defer rows.Close()

	items := make([]DepartmentIssue, 0)
	for rows.Next() {
		var item DepartmentIssue
		if err := rows.Scan(&item.ID, &item.IssueID, &item.DepartmentID, &item.Summary, &item.PDFURL, &item.PublishedAt, &item.CreatedAt,
			&item.DepartmentName, &item.DepartmentShortName); err != nil {
			return nil, translate("scan department issue", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate department issues", err)
	}
	return items, nil
}

func (s *PostgresStore) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, short_name, slug, category, description
		FROM departments
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, translate("list departments", err)
	}
	defer rows.Close()

	items := make([]Department, 0)
	for rows.Next() {
		var item Department
		if err := rows.Scan(&item.ID, &item.Name, &item.ShortName, &item.Slug, &item.Category, &item.Description); err != nil {
			return nil, translate("scan department", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate departments", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDepartment(ctx context.Context, departmentID string) (Department, error) {
	var item Department
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, short_name, slug, category, description
		FROM departments
		WHERE id=$1
	`, departmentID).Scan(&item.ID, &item.Name, &item.ShortName, &item.Slug, &item.Category, &item.Description)
	if err != nil {
		return Department{}, translate("get department", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertDepartment(ctx context.Context, item Department) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (name, short_name, slug, category, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slug) DO NOTHING
	`, item.Name, item.ShortName, item.Slug, item.Category, item.Description)
	if err != nil {
		return translate("insert department", err)
	}
	return nil
}

func (s *PostgresStore) DepartmentCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM departments`).Scan(&count); err != nil {
		return 0, translate("count departments", err)
	}
	return count, nil
}

// InsertNewsletter records a standalone newsletter release.
func (s *PostgresStore) InsertNewsletter(ctx context.Context, item Newsletter) (Newsletter, error) {
	const query = `
		INSERT INTO newsletters (title, description, issue_date, year, month, pdf_url, is_published, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, title, description, issue_date, year, month, pdf_url, is_published, created_at
	`
	var out Newsletter
	err := s.db.QueryRowContext(ctx, query,
		item.Title, item.Description, item.IssueDate, item.Year, item.Month,
		item.PDFURL, item.IsPublished, item.CreatedBy,
	).Scan(&out.ID, &out.Title, &out.Description, &out.IssueDate, &out.Year, &out.Month,
		&out.PDFURL, &out.IsPublished, &out.CreatedAt)
	if err != nil {
		return Newsletter{}, translate("insert newsletter", err)
	}
	return out, nil
}

func (s *PostgresStore) SetNewsletterPublished(ctx context.Context, newsletterID string, published bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE newsletters SET is_published=$2, updated_at=NOW() WHERE id=$1
	`, newsletterID, published)
	if err != nil {
		return translate("set newsletter published", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translate("set newsletter published rows", err)
	}
	if affected == 0 {
		return translate("set newsletter published", sql.ErrNoRows)
	}
	return nil
}

func (s *PostgresStore) GetNewsletter(ctx context.Context, newsletterID string) (Newsletter, error) {
	var item Newsletter
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, issue_date, year, month, pdf_url, is_published, created_at
		FROM newsletters
		WHERE id=$1
	`, newsletterID).Scan(&item.ID, &item.Title, &item.Description, &item.IssueDate, &item.Year, &item.Month,
		&item.PDFURL, &item.IsPublished, &item.CreatedAt)
	if err != nil {
		return Newsletter{}, translate("get newsletter", err)
	}
	return item, nil
}

// TrendingNewsletters ranks published newsletters created at or after since
// by like count, most recent first on ties. Rows outside the window never
// appear regardless of likes.
func (s *PostgresStore) TrendingNewsletters(ctx context.Context, since time.Time, limit int) ([]NewsletterWithLikes, error) {
	const query = `
		SELECT n.id, n.title, n.description, n.issue_date, n.year, n.month, n.pdf_url, n.is_published, n.created_at,
		       COUNT(r.id) FILTER (WHERE r.reaction = 'like') AS like_count
		FROM newsletters n
		LEFT JOIN reactions r ON r.entity_type = 'newsletter' AND r.entity_id = n.id
		WHERE n.is_published AND n.created_at >= $1
		GROUP BY n.id
		ORDER BY like_count DESC, n.created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, translate("trending newsletters", err)
	}
	defer rows.Close()

	items := make([]NewsletterWithLikes, 0, limit)
	for rows.Next() {
		var item NewsletterWithLikes
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.IssueDate, &item.Year, &item.Month,
			&item.PDFURL, &item.IsPublished, &item.CreatedAt, &item.LikeCount); err != nil {
			return nil, translate("scan trending newsletter", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate trending newsletters", err)
	}
	return items, nil
}

func (s *PostgresStore) RecentPublishedNewsletters(ctx context.Context, limit int) ([]Newsletter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, issue_date, year, month, pdf_url, is_published, created_at
		FROM newsletters
		WHERE is_published
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, translate("recent newsletters", err)
	}
	defer rows.Close()

	items := make([]Newsletter, 0, limit)
	for rows.Next() {
		var item Newsletter
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.IssueDate, &item.Year, &item.Month,
			&item.PDFURL, &item.IsPublished, &item.CreatedAt); err != nil {
			return nil, translate("scan newsletter", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate newsletters", err)
	}
	return items, nil
}

func (s *PostgresStore) ListPublishedNewsletters(ctx context.Context) ([]Newsletter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, issue_date, year, month, pdf_url, is_published, created_at
		FROM newsletters
		WHERE is_published
		ORDER BY year DESC, month DESC
	`)
	if err != nil {
		return nil, translate("list newsletters", err)
	}
	defer rows.Close()

	items := make([]Newsletter, 0)
	for rows.Next() {
		var item Newsletter
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.IssueDate, &item.Year, &item.Month,
			&item.PDFURL, &item.IsPublished, &item.CreatedAt); err != nil {
			return nil, translate("scan newsletter", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate newsletters", err)
	}
	return items, nil
}
