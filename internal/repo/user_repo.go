package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tiretrack/server/internal/model"
)

const userColumns = `id, phone_number, display_name, created_at`

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

func scanUser(row rowScanner) (model.User, error) {
	var user model.User
	var idStr string
	var displayName sql.NullString
	err := row.Scan(&idStr, &user.PhoneNumber, &displayName, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	if displayName.Valid {
		user.DisplayName = &displayName.String
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByPhone retrieves a user by phone number
func (r *userRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phone))
}

// GetOrCreateByPhone retrieves a user by phone number or creates one if it doesn't exist.
// ON CONFLICT DO NOTHING keeps concurrent first logins from creating duplicates.
func (r *userRepo) GetOrCreateByPhone(ctx context.Context, phone string) (model.User, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (phone_number)
		VALUES ($1)
		ON CONFLICT (phone_number) DO NOTHING
	`, phone)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}

	return r.GetByPhone(ctx, phone)
}

// UpdateDisplayName sets or clears the user's display name
func (r *userRepo) UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName *string) (model.User, error) {
	var name sql.NullString
	if displayName != nil {
		name = sql.NullString{String: *displayName, Valid: true}
	}
	return scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users SET display_name = $2 WHERE id = $1
		RETURNING `+userColumns, id, name))
}
