package store

import (
	"context"
	"database/sql"
)

func (s *PostgresStore) InsertSubmission(ctx context.Context, item Submission) (Submission, error) {
	const query = `
		INSERT INTO submissions (title, summary, category, department, semester, media_url, external_link, submitter_name, submitter_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, title, summary, category, department, semester, media_url, external_link,
		          submitter_name, submitter_email, status, pinned, moderated_by, created_at, updated_at
	`
	var out Submission
	err := s.db.QueryRowContext(ctx, query,
		item.Title, item.Summary, item.Category, item.Department, item.Semester,
		item.MediaURL, item.ExternalLink, item.SubmitterName, item.SubmitterEmail,
	).Scan(&out.ID, &out.Title, &out.Summary, &out.Category, &out.Department, &out.Semester,
		&out.MediaURL, &out.ExternalLink, &out.SubmitterName, &out.SubmitterEmail,
		&out.Status, &out.Pinned, &out.ModeratedBy, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Submission{}, translate("insert submission", err)
	}
	return out, nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, submissionID string) (Submission, error) {
	var item Submission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, summary, category, department, semester, media_url, external_link,
		       submitter_name, submitter_email, status, pinned, moderated_by, created_at, updated_at
		FROM submissions
		WHERE id=$1
	`, submissionID).Scan(&item.ID, &item.Title, &item.Summary, &item.Category, &item.Department, &item.Semester,
		&item.MediaURL, &item.ExternalLink, &item.SubmitterName, &item.SubmitterEmail,
		&item.Status, &item.Pinned, &item.ModeratedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Submission{}, translate("get submission", err)
	}
	return item, nil
}

// ListSubmissions returns submissions newest first; status narrows the list
// when non-empty.
func (s *PostgresStore) ListSubmissions(ctx context.Context, status string) ([]Submission, error) {
	const query = `
		SELECT id, title, summary, category, department, semester, media_url, external_link,
		       submitter_name, submitter_email, status, pinned, moderated_by, created_at, updated_at
		FROM submissions
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, translate("list submissions", err)
	}
	defer rows.Close()

	items := make([]Submission, 0)
	for rows.Next() {
		var item Submission
		if err := rows.Scan(&item.ID, &item.Title, &item.Summary, &item.Category, &item.Department, &item.Semester,
			&item.MediaURL, &item.ExternalLink, &item.SubmitterName, &item.SubmitterEmail,
			&item.Status, &item.Pinned, &item.ModeratedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, translate("scan submission", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate submissions", err)
	}
	return items, nil
}

// SpotlightSubmissions returns approved, pinned submissions newest first.
func (s *PostgresStore) SpotlightSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, summary, category, department, semester, media_url, external_link,
		       submitter_name, submitter_email, status, pinned, moderated_by, created_at, updated_at
		FROM submissions
		WHERE status='approved' AND pinned
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, translate("spotlight submissions", err)
	}
	defer rows.Close()

	items := make([]Submission, 0, limit)
	for rows.Next() {
		var item Submission
		if err := rows.Scan(&item.ID, &item.Title, &item.Summary, &item.Category, &item.Department, &item.Semester,
			&item.MediaURL, &item.ExternalLink, &item.SubmitterName, &item.SubmitterEmail,
			&item.Status, &item.Pinned, &item.ModeratedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, translate("scan spotlight submission", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate spotlight submissions", err)
	}
	return items, nil
}

func (s *PostgresStore) RecentSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, summary, category, department, semester, media_url, external_link,
		       submitter_name, submitter_email, status, pinned, moderated_by, created_at, updated_at
		FROM submissions
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, translate("recent submissions", err)
	}
	defer rows.Close()

	items := make([]Submission, 0, limit)
	for rows.Next() {
		var item Submission
		if err := rows.Scan(&item.ID, &item.Title, &item.Summary, &item.Category, &item.Department, &item.Semester,
			&item.MediaURL, &item.ExternalLink, &item.SubmitterName, &item.SubmitterEmail,
			&item.Status, &item.Pinned, &item.ModeratedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, translate("scan recent submission", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate recent submissions", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateSubmissionStatus(ctx context.Context, submissionID, status, moderatedBy string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status=$2, moderated_by=$3, updated_at=NOW()
		WHERE id=$1
	`, submissionID, status, moderatedBy)
	if err != nil {
		return translate("update submission status", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translate("update submission status rows", err)
	}
	if affected == 0 {
		return translate("update submission status", sql.ErrNoRows)
	}
	return nil
}

func (s *PostgresStore) SetSubmissionPinned(ctx context.Context, submissionID string, pinned bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE submissions SET pinned=$2, updated_at=NOW() WHERE id=$1
	`, submissionID, pinned)
	if err != nil {
		return translate("set submission pinned", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translate("set submission pinned rows", err)
	}
	if affected == 0 {
		return translate("set submission pinned", sql.ErrNoRows)
	}
	return nil
}

// DeleteSubmission removes the row permanently; there is no tombstone.
func (s *PostgresStore) DeleteSubmission(ctx context.Context, submissionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE id=$1`, submissionID)
	if err != nil {
		return translate("delete submission", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translate("delete submission rows", err)
	}
	if affected == 0 {
		return translate("delete submission", sql.ErrNoRows)
	}
	return nil
}

// ActiveNotices returns entries currently visible: published and not yet
// expired, pinned entries first.
func (s *PostgresStore) ActiveNotices(ctx context.Context, limit int) ([]Notice, error) {
	const query = `
		SELECT id, title, body, link_url, pinned, published_at, expires_at, created_at
		FROM notice_board
		WHERE published_at <= NOW()
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY pinned DESC, published_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, translate("active notices", err)
	}
	defer rows.Close()

	items := make([]Notice, 0)
	for rows.Next() {
		var item Notice
		if err := rows.Scan(&item.ID, &item.Title, &item.Body, &item.LinkURL, &item.Pinned,
			&item.PublishedAt, &item.ExpiresAt, &item.CreatedAt); err != nil {
			return nil, translate("scan notice", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate notices", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertNotice(ctx context.Context, item Notice) (Notice, error) {
	const query = `
		INSERT INTO notice_board (title, body, link_url, pinned, published_at, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, title, body, link_url, pinned, published_at, expires_at, created_at
	`
	var out Notice
	err := s.db.QueryRowContext(ctx, query,
		item.Title, item.Body, item.LinkURL, item.Pinned, item.PublishedAt, item.ExpiresAt, item.CreatedBy,
	).Scan(&out.ID, &out.Title, &out.Body, &out.LinkURL, &out.Pinned, &out.PublishedAt, &out.ExpiresAt, &out.CreatedAt)
	if err != nil {
		return Notice{}, translate("insert notice", err)
	}
	return out, nil
}

// UpdateNotice rewrites an existing notice in place; published_at keeps its
// original value so edits do not bump the board ordering.
func (s *PostgresStore) UpdateNotice(ctx context.Context, item Notice) (Notice, error) {
	const query = `
		UPDATE notice_board
		SET title=$2, body=$3, link_url=$4, pinned=$5, expires_at=$6, updated_at=NOW()
		WHERE id=$1
		RETURNING id, title, body, link_url, pinned, published_at, expires_at, created_at
	`
	var out Notice
	err := s.db.QueryRowContext(ctx, query,
		item.ID, item.Title, item.Body, item.LinkURL, item.Pinned, item.ExpiresAt,
	).Scan(&out.ID, &out.Title, &out.Body, &out.LinkURL, &out.Pinned, &out.PublishedAt, &out.ExpiresAt, &out.CreatedAt)
	if err != nil {
		return Notice{}, translate("update notice", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteNotice(ctx context.Context, noticeID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notice_board WHERE id=$1`, noticeID)
	if err != nil {
		return translate("delete notice", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translate("delete notice rows", err)
	}
	if affected == 0 {
		return translate("delete notice", sql.ErrNoRows)
	}
	return nil
}
