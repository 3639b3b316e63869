package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tiretrack/server/internal/model"
)

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a PostgreSQL-backed SessionRepo
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, s model.SessionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, s.TokenHash, s.UserID, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get returns the session regardless of expiry; callers decide validity.
func (r *sessionRepo) Get(ctx context.Context, tokenHash string) (model.SessionRecord, error) {
	var s model.SessionRecord
	var userIDStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT token_hash, user_id, created_at, expires_at
		FROM sessions
		WHERE token_hash = $1
	`, tokenHash).Scan(&s.TokenHash, &userIDStr, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SessionRecord{}, ErrNotFound
		}
		return model.SessionRecord{}, fmt.Errorf("find session: %w", err)
	}
	s.UserID, err = uuid.Parse(userIDStr)
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("parse session user ID: %w", err)
	}
	return s, nil
}

func (r *sessionRepo) Delete(ctx context.Context, tokenHash string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
