package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

// --- users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	const query = `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.ExecContext(ctx, query,
		user.ID, user.DisplayName, user.Email, user.PasswordHash,
		user.Role, user.IsEmailVerified, user.VerificationToken,
	); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	const query = `
		SELECT id, display_name, email, role, is_email_verified
		FROM users WHERE id = $1
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const query = `
		SELECT id, display_name, email, password_hash, role, is_email_verified
		FROM users WHERE LOWER(email) = LOWER($1)
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, email).
		Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	const query = `
		UPDATE users SET verification_token = $2, verification_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, userID, token, expiresAt); err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	const query = `
		UPDATE users
		SET is_email_verified = TRUE, verification_token = '', updated_at = NOW()
		WHERE verification_token = $1 AND verification_expires_at > NOW()
	`
	result, err := s.db.ExecContext(ctx, query, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, userID, passwordHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	const query = `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, query, token, userID, expiresAt); err != nil {
		return fmt.Errorf("insert password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	const query = `
		SELECT user_id FROM password_resets
		WHERE token = $1 AND used_at IS NULL AND expires_at > NOW()
	`
	var userID string
	if err := s.db.QueryRowContext(ctx, query, token).Scan(&userID); err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	const query = `UPDATE password_resets SET used_at = NOW() WHERE token = $1`
	if _, err := s.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// --- refresh sessions and token revocation ---

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	const query = `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, query, tokenHash, userID, expiresAt); err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1 AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).
		Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	const query = `
		INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, jti, expiresAt); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// --- plans ---

func (s *PostgresStore) InsertPlan(ctx context.Context, plan Plan) error {
	const query = `
		INSERT INTO plans (id, plan_type, title, status, investor_id, investor_name, review_pass, last_submitted_hash, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := s.db.ExecContext(ctx, query,
		plan.ID, plan.PlanType, plan.Title, plan.Status,
		plan.InvestorID, plan.InvestorName, plan.ReviewPass,
		plan.LastSubmittedHash, plan.UpdatedBy,
	); err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPlan(ctx context.Context, planID string) (Plan, error) {
	const query = `
		SELECT id, plan_type, title, status, investor_id, investor_name,
		       review_pass, last_submitted_hash, updated_by, created_at, updated_at
		FROM plans WHERE id = $1
	`
	var plan Plan
	err := s.db.QueryRowContext(ctx, query, planID).Scan(
		&plan.ID, &plan.PlanType, &plan.Title, &plan.Status,
		&plan.InvestorID, &plan.InvestorName, &plan.ReviewPass,
		&plan.LastSubmittedHash, &plan.UpdatedBy, &plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func (s *PostgresStore) ListPlans(ctx context.Context, investorID string) ([]Plan, error) {
	query := `
		SELECT id, plan_type, title, status, investor_id, investor_name,
		       review_pass, last_submitted_hash, updated_by, created_at, updated_at
		FROM plans
	`
	args := []any{}
	if investorID != "" {
		query += ` WHERE investor_id = $1`
		args = append(args, investorID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var plan Plan
		if err := rows.Scan(
			&plan.ID, &plan.PlanType, &plan.Title, &plan.Status,
			&plan.InvestorID, &plan.InvestorName, &plan.ReviewPass,
			&plan.LastSubmittedHash, &plan.UpdatedBy, &plan.CreatedAt, &plan.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func (s *PostgresStore) UpdatePlanStatus(ctx context.Context, planID, status, updatedBy string) error {
	const query = `
		UPDATE plans SET status = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, planID, status, updatedBy)
	if err != nil {
		return fmt.Errorf("update plan status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update plan status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkPlanSubmitted records a submission pass: bumps the pass counter and
// pins the content commit the pass was submitted at.
func (s *PostgresStore) MarkPlanSubmitted(ctx context.Context, planID, status, commitHash, updatedBy string) (int, error) {
	const query = `
		UPDATE plans
		SET status = $2, last_submitted_hash = $3, review_pass = review_pass + 1,
		    updated_by = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING review_pass
	`
	var pass int
	if err := s.db.QueryRowContext(ctx, query, planID, status, commitHash, updatedBy).Scan(&pass); err != nil {
		return 0, fmt.Errorf("mark plan submitted: %w", err)
	}
	return pass, nil
}

// --- review comments ---

// ReplaceReviewComments swaps the full comment batch for one plan's review
// pass in a single transaction, so a partially written batch can never be
// observed.
func (s *PostgresStore) ReplaceReviewComments(ctx context.Context, planID string, pass int, comments []ReviewComment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin comment tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM review_comments WHERE plan_id = $1 AND pass = $2`, planID, pass,
	); err != nil {
		return fmt.Errorf("clear prior comments: %w", err)
	}

	const insertComment = `
		INSERT INTO review_comments (id, plan_id, pass, page_title, comment, author)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	const insertField = `
		INSERT INTO flagged_fields (comment_id, section, input_key, row_id, label, value)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, comment := range comments {
		if _, err := tx.ExecContext(ctx, insertComment,
			comment.ID, planID, pass, comment.PageTitle, comment.Comment, comment.Author,
		); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		for _, field := range comment.Fields {
			if _, err := tx.ExecContext(ctx, insertField,
				comment.ID, field.Section, field.InputKey, field.RowID, field.Label, field.Value,
			); err != nil {
				return fmt.Errorf("insert flagged field: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit comment tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListReviewComments(ctx context.Context, planID string, pass int) ([]ReviewComment, error) {
	const query = `
		SELECT id, plan_id, pass, page_title, comment, author, created_at
		FROM review_comments
		WHERE plan_id = $1 AND pass = $2
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, planID, pass)
	if err != nil {
		return nil, fmt.Errorf("list review comments: %w", err)
	}
	defer rows.Close()

	var comments []ReviewComment
	for rows.Next() {
		var comment ReviewComment
		if err := rows.Scan(
			&comment.ID, &comment.PlanID, &comment.Pass,
			&comment.PageTitle, &comment.Comment, &comment.Author, &comment.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan review comment: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range comments {
		fields, err := s.listFlaggedFields(ctx, comments[i].ID)
		if err != nil {
			return nil, err
		}
		comments[i].Fields = fields
	}
	return comments, nil
}

func (s *PostgresStore) listFlaggedFields(ctx context.Context, commentID string) ([]FlaggedField, error) {
	const query = `
		SELECT id, comment_id, section, input_key, row_id, label, value
		FROM flagged_fields WHERE comment_id = $1 ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, commentID)
	if err != nil {
		return nil, fmt.Errorf("list flagged fields: %w", err)
	}
	defer rows.Close()

	var fields []FlaggedField
	for rows.Next() {
		var field FlaggedField
		if err := rows.Scan(
			&field.ID, &field.CommentID, &field.Section,
			&field.InputKey, &field.RowID, &field.Label, &field.Value,
		); err != nil {
			return nil, fmt.Errorf("scan flagged field: %w", err)
		}
		fields = append(fields, field)
	}
	return fields, rows.Err()
}

// --- decision log ---

func (s *PostgresStore) InsertDecisionLog(ctx context.Context, entry DecisionLogEntry) error {
	const query = `
		INSERT INTO decision_log (plan_id, pass, action, note, decided_by, commit_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, query,
		entry.PlanID, entry.Pass, entry.Action, entry.Note, entry.DecidedBy, entry.CommitHash,
	); err != nil {
		return fmt.Errorf("insert decision log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDecisionLog(ctx context.Context, planID string, limit int) ([]DecisionLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `
		SELECT id, plan_id, pass, action, note, decided_by, decided_at, commit_hash
		FROM decision_log WHERE plan_id = $1
		ORDER BY decided_at DESC, id DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, planID, limit)
	if err != nil {
		return nil, fmt.Errorf("list decision log: %w", err)
	}
	defer rows.Close()

	var entries []DecisionLogEntry
	for rows.Next() {
		var entry DecisionLogEntry
		if err := rows.Scan(
			&entry.ID, &entry.PlanID, &entry.Pass, &entry.Action,
			&entry.Note, &entry.DecidedBy, &entry.DecidedAt, &entry.CommitHash,
		); err != nil {
			return nil, fmt.Errorf("scan decision log: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// --- attachments ---

func (s *PostgresStore) InsertAttachment(ctx context.Context, attachment Attachment) error {
	const query = `
		INSERT INTO attachments (id, plan_id, file_name, object_key, content_type, size, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.ExecContext(ctx, query,
		attachment.ID, attachment.PlanID, attachment.FileName, attachment.ObjectKey,
		attachment.ContentType, attachment.Size, attachment.UploadedBy,
	); err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, planID, attachmentID string) (Attachment, error) {
	const query = `
		SELECT id, plan_id, file_name, object_key, content_type, size, uploaded_by, created_at
		FROM attachments WHERE plan_id = $1 AND id = $2
	`
	var attachment Attachment
	err := s.db.QueryRowContext(ctx, query, planID, attachmentID).Scan(
		&attachment.ID, &attachment.PlanID, &attachment.FileName, &attachment.ObjectKey,
		&attachment.ContentType, &attachment.Size, &attachment.UploadedBy, &attachment.CreatedAt,
	)
	if err != nil {
		return Attachment{}, err
	}
	return attachment, nil
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, planID, attachmentID string) error {
	const query = `DELETE FROM attachments WHERE plan_id = $1 AND id = $2`
	res, err := s.db.ExecContext(ctx, query, planID, attachmentID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, planID string) ([]Attachment, error) {
	const query = `
		SELECT id, plan_id, file_name, object_key, content_type, size, uploaded_by, created_at
		FROM attachments WHERE plan_id = $1 ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []Attachment
	for rows.Next() {
		var attachment Attachment
		if err := rows.Scan(
			&attachment.ID, &attachment.PlanID, &attachment.FileName, &attachment.ObjectKey,
			&attachment.ContentType, &attachment.Size, &attachment.UploadedBy, &attachment.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, attachment)
	}
	return attachments, rows.Err()
}
