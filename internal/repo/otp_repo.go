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

const otpColumns = `id, phone_number, code_hash, created_at, expires_at, last_sent_at, attempts_used, max_attempts`

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a PostgreSQL-backed OtpRepo
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOtpRecord(row rowScanner) (model.OtpRecord, error) {
	var rec model.OtpRecord
	var idStr string
	err := row.Scan(
		&idStr,
		&rec.PhoneNumber,
		&rec.CodeHash,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&rec.LastSentAt,
		&rec.AttemptsUsed,
		&rec.MaxAttempts,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OtpRecord{}, ErrNotFound
		}
		return model.OtpRecord{}, fmt.Errorf("scan otp record: %w", err)
	}
	rec.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.OtpRecord{}, fmt.Errorf("parse otp record ID: %w", err)
	}
	return rec, nil
}

// Issue serialises requests per phone with a transaction-scoped advisory lock,
// checks the cooldown of the current record and upserts the new one.
func (r *otpRepo) Issue(ctx context.Context, rec model.OtpRecord, cooldown time.Duration, now time.Time) (model.OtpRecord, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.OtpRecord{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Blocks until we hold the lock; released on COMMIT/ROLLBACK.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1))`, rec.PhoneNumber); err != nil {
		return model.OtpRecord{}, false, fmt.Errorf("advisory lock: %w", err)
	}

	current, err := scanOtpRecord(tx.QueryRowContext(ctx,
		`SELECT `+otpColumns+` FROM otp_records WHERE phone_number = $1`, rec.PhoneNumber))
	switch {
	case err == nil:
		if !current.Expired(now) && now.Before(current.LastSentAt.Add(cooldown)) {
			return current, false, nil
		}
	case errors.Is(err, ErrNotFound):
	default:
		return model.OtpRecord{}, false, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO otp_records (`+otpColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
		ON CONFLICT (phone_number) DO UPDATE SET
			id = EXCLUDED.id,
			code_hash = EXCLUDED.code_hash,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			last_sent_at = EXCLUDED.last_sent_at,
			attempts_used = 0,
			max_attempts = EXCLUDED.max_attempts
	`, rec.ID, rec.PhoneNumber, rec.CodeHash, rec.CreatedAt, rec.ExpiresAt, rec.LastSentAt, rec.MaxAttempts)
	if err != nil {
		return model.OtpRecord{}, false, fmt.Errorf("upsert otp record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.OtpRecord{}, false, fmt.Errorf("commit: %w", err)
	}
	rec.AttemptsUsed = 0
	return rec, true, nil
}

// Get returns the phone's record, expired or not.
func (r *otpRepo) Get(ctx context.Context, phone string) (model.OtpRecord, error) {
	return scanOtpRecord(r.db.QueryRowContext(ctx,
		`SELECT `+otpColumns+` FROM otp_records WHERE phone_number = $1`, phone))
}

func (r *otpRepo) IncrementAttempts(ctx context.Context, phone string, id uuid.UUID) (int, error) {
	var used, maxAttempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE otp_records
		SET attempts_used = attempts_used + 1
		WHERE phone_number = $1 AND id = $2 AND attempts_used < max_attempts
		RETURNING attempts_used, max_attempts
	`, phone, id).Scan(&used, &maxAttempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment attempts: %w", err)
	}

	if used >= maxAttempts {
		if err := r.Delete(ctx, phone, id); err != nil {
			return used, err
		}
	}
	return used, nil
}

func (r *otpRepo) Consume(ctx context.Context, phone string, id uuid.UUID, now time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM otp_records
		WHERE phone_number = $1 AND id = $2 AND attempts_used < max_attempts AND expires_at >= $3
	`, phone, id, now)
	if err != nil {
		return fmt.Errorf("consume otp record: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *otpRepo) Delete(ctx context.Context, phone string, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM otp_records WHERE phone_number = $1 AND id = $2`, phone, id)
	if err != nil {
		return fmt.Errorf("delete otp record: %w", err)
	}
	return nil
}

func (r *otpRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM otp_records WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired otp records: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
