package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"
)

// ToggleReaction implements the toggle law in two conditional statements:
// deleting the identical reaction if present, otherwise upserting on the
// (user, entity) unique key so a different reaction replaces rather than
// duplicates. Concurrent callers race to last-writer-wins, never to two rows.
func (s *PostgresStore) ToggleReaction(ctx context.Context, userID, entityType, entityID, reaction string) (removed bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM reactions
		WHERE user_id=$1 AND entity_type=$2 AND entity_id=$3 AND reaction=$4
	`, userID, entityType, entityID, reaction)
	if err != nil {
		return false, translate("delete reaction", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, translate("delete reaction rows", err)
	}
	if affected > 0 {
		return true, nil
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reactions (user_id, entity_type, entity_id, reaction)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, entity_type, entity_id)
		DO UPDATE SET reaction=EXCLUDED.reaction, updated_at=NOW()
	`, userID, entityType, entityID, reaction)
	if err != nil {
		return false, translate("upsert reaction", err)
	}
	return false, nil
}

func (s *PostgresStore) LikeCount(ctx context.Context, entityType, entityID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reactions
		WHERE entity_type=$1 AND entity_id=$2 AND reaction='like'
	`, entityType, entityID).Scan(&count)
	if err != nil {
		return 0, translate("like count", err)
	}
	return count, nil
}

// UserReaction returns the caller's reaction on an entity, or empty string.
func (s *PostgresStore) UserReaction(ctx context.Context, userID, entityType, entityID string) (string, error) {
	var reaction string
	err := s.db.QueryRowContext(ctx, `
		SELECT reaction FROM reactions
		WHERE user_id=$1 AND entity_type=$2 AND entity_id=$3
	`, userID, entityType, entityID).Scan(&reaction)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", translate("user reaction", err)
	}
	return reaction, nil
}

func (s *PostgresStore) InsertFeedback(ctx context.Context, item Feedback) (Feedback, error) {
	const query = `
		INSERT INTO feedback (user_id, rating, review)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, rating, review, created_at
	`
	var out Feedback
	err := s.db.QueryRowContext(ctx, query, item.UserID, item.Rating, item.Review).
		Scan(&out.ID, &out.UserID, &out.Rating, &out.Review, &out.CreatedAt)
	if err != nil {
		return Feedback{}, translate("insert feedback", err)
	}
	return out, nil
}

func (s *PostgresStore) RecentFeedback(ctx context.Context, limit int) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, rating, review, created_at
		FROM feedback
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, translate("recent feedback", err)
	}
	defer rows.Close()

	items := make([]Feedback, 0, limit)
	for rows.Next() {
		var item Feedback
		if err := rows.Scan(&item.ID, &item.UserID, &item.Rating, &item.Review, &item.CreatedAt); err != nil {
			return nil, translate("scan feedback", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("iterate feedback", err)
	}
	return items, nil
}

// Stats computes the dashboard counters in one round trip per counter.
// monthStart is the caller's start-of-current-month boundary. The mean
// rating is 0, not NaN, when no feedback exists.
func (s *PostgresStore) Stats(ctx context.Context, monthStart time.Time) (Stats, error) {
	var out Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM newsletters WHERE is_published`).Scan(&out.PublishedNewsletters); err != nil {
		return Stats{}, translate("count newsletters", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions WHERE status='approved'`).Scan(&out.ApprovedSubmissions); err != nil {
		return Stats{}, translate("count approved submissions", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM submissions WHERE status='approved' AND created_at >= $1
	`, monthStart).Scan(&out.ThisMonthSubmissions); err != nil {
		return Stats{}, translate("count monthly submissions", err)
	}
	var average sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT AVG(rating) FROM feedback`).Scan(&average); err != nil {
		return Stats{}, translate("average rating", err)
	}
	if average.Valid {
		out.AverageFeedbackRating = math.Round(average.Float64*10) / 10
	}
	return out, nil
}

func (s *PostgresStore) GetSubscriberByEmail(ctx context.Context, email string) (Subscriber, error) {
	var item Subscriber
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, phone, department, semester, confirmed, confirm_token, created_at
		FROM subscribers
		WHERE email=$1
	`, email).Scan(&item.ID, &item.Email, &item.Name, &item.Phone, &item.Department, &item.Semester,
		&item.Confirmed, &item.ConfirmToken, &item.CreatedAt)
	if err != nil {
		return Subscriber{}, translate("get subscriber by email", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertSubscriber(ctx context.Context, item Subscriber) (Subscriber, error) {
	const query = `
		INSERT INTO subscribers (email, name, phone, department, semester, confirm_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, email, name, phone, department, semester, confirmed, confirm_token, created_at
	`
	var out Subscriber
	err := s.db.QueryRowContext(ctx, query,
		item.Email, item.Name, item.Phone, item.Department, item.Semester, item.ConfirmToken,
	).Scan(&out.ID, &out.Email, &out.Name, &out.Phone, &out.Department, &out.Semester,
		&out.Confirmed, &out.ConfirmToken, &out.CreatedAt)
	if err != nil {
		return Subscriber{}, translate("insert subscriber", err)
	}
	return out, nil
}

// RefreshPendingSubscriber updates an unconfirmed subscriber's details and
// rotates the confirmation token, invalidating any previously issued link.
// Rows already confirmed are never touched.
func (s *PostgresStore) RefreshPendingSubscriber(ctx context.Context, subscriberID, name, phone, department string, semester *int, confirmToken string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE subscribers
		SET name=$2, phone=$3, department=$4, semester=$5, confirm_token=$6
		WHERE id=$1 AND NOT confirmed
	`, subscriberID, name, phone, department, semester, confirmToken)
	if err != nil {
		return translate("refresh pending subscriber", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translate("refresh pending subscriber rows", err)
	}
	if affected == 0 {
		return translate("refresh pending subscriber", sql.ErrNoRows)
	}
	return nil
}

func (s *PostgresStore) GetSubscriberByToken(ctx context.Context, token string) (Subscriber, error) {
	var item Subscriber
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, phone, department, semester, confirmed, confirm_token, created_at
		FROM subscribers
		WHERE confirm_token=$1
	`, token).Scan(&item.ID, &item.Email, &item.Name, &item.Phone, &item.Department, &item.Semester,
		&item.Confirmed, &item.ConfirmToken, &item.CreatedAt)
	if err != nil {
		return Subscriber{}, translate("get subscriber by token", err)
	}
	return item, nil
}

// ConfirmSubscriber marks the row confirmed and clears the single-use token.
func (s *PostgresStore) ConfirmSubscriber(ctx context.Context, subscriberID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE subscribers SET confirmed=TRUE, confirm_token=NULL WHERE id=$1
	`, subscriberID)
	if err != nil {
		return translate("confirm subscriber", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translate("confirm subscriber rows", err)
	}
	if affected == 0 {
		return translate("confirm subscriber", sql.ErrNoRows)
	}
	return nil
}
