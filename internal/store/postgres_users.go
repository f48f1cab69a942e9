package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, is_email_verified,
		       COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at
		FROM users
		WHERE email=$1
	`, email).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.IsEmailVerified,
		&u.VerificationToken, &u.VerificationExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, translate("get user by email", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, is_email_verified,
		       COALESCE(verification_token, ''), verification_expires_at, created_at, updated_at
		FROM users
		WHERE id=$1
	`, id).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.IsEmailVerified,
		&u.VerificationToken, &u.VerificationExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, translate("get user by id", err)
	}
	return u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return translate("create user", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return translate("update verification token", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translate("update verification token rows", err)
	}
	if affected == 0 {
		return translate("update verification token", sql.ErrNoRows)
	}
	return nil
}

// VerifyUserEmail consumes a verification token. Expired or already-used
// tokens match no row and surface as ErrNotFound.
func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return translate("verify user email", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translate("verify user email rows", err)
	}
	if affected == 0 {
		return translate("verify user email", sql.ErrNoRows)
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, userID, passwordHash)
	if err != nil {
		return translate("update user password", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return translate("update user password rows", err)
	}
	if affected == 0 {
		return translate("update user password", sql.ErrNoRows)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return translate("create password reset", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND expires_at > NOW() AND used_at IS NULL
	`, token).Scan(&userID)
	if err != nil {
		return "", translate("get password reset", err)
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE password_resets SET used_at=NOW() WHERE token=$1
	`, token)
	if err != nil {
		return translate("mark password reset used", err)
	}
	return nil
}

// EnsureProfile creates an empty profile for a user on first sign-in.
// Repeated calls are no-ops thanks to the unique user_id constraint.
func (s *PostgresStore) EnsureProfile(ctx context.Context, userID, fullName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, full_name)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, fullName)
	if err != nil {
		return translate("ensure profile", err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, full_name, phone, department_id, semester, avatar_url, created_at, updated_at
		FROM profiles
		WHERE user_id=$1
	`, userID).Scan(&p.ID, &p.UserID, &p.FullName, &p.Phone, &p.DepartmentID, &p.Semester,
		&p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Profile{}, translate("get profile", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	const query = `
		UPDATE profiles
		SET full_name=$2, phone=$3, department_id=$4, semester=$5, avatar_url=$6, updated_at=NOW()
		WHERE user_id=$1
		RETURNING id, user_id, full_name, phone, department_id, semester, avatar_url, created_at, updated_at
	`
	var out Profile
	err := s.db.QueryRowContext(ctx, query,
		p.UserID, p.FullName, p.Phone, p.DepartmentID, p.Semester, p.AvatarURL,
	).Scan(&out.ID, &out.UserID, &out.FullName, &out.Phone, &out.DepartmentID, &out.Semester,
		&out.AvatarURL, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Profile{}, translate("update profile", err)
	}
	return out, nil
}

// ResolveRole returns the most recently granted role for a user, or empty
// string when no grant exists. Grants are append-only; the latest row wins.
func (s *PostgresStore) ResolveRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM user_roles
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT 1
	`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", translate("resolve role", err)
	}
	return role, nil
}

func (s *PostgresStore) GrantRole(ctx context.Context, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
	`, userID, role)
	if err != nil {
		return translate("grant role", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at) VALUES ($1, $2, $3)
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return translate("save refresh session", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash=$1 AND expires_at > NOW() AND revoked_at IS NULL
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", translate("lookup refresh session", err)
	}
	return userID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1
	`, tokenHash)
	if err != nil {
		return translate("revoke refresh session", err)
	}
	return nil
}
