package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tiretrack/server/internal/model"
)

// ErrNotFound is returned when a record does not exist, has been replaced,
// or no longer satisfies the condition of a conditional update.
var ErrNotFound = errors.New("record not found")

// OtpRepo stores at most one OtpRecord per phone number. Implementations
// must make every method atomic for a single phone.
type OtpRepo interface {
	// Issue stores rec as the phone's live record, replacing any previous one,
	// unless the current record is unexpired and still inside its cooldown
	// window at now. In that case the current record is returned and issued is false.
	Issue(ctx context.Context, rec model.OtpRecord, cooldown time.Duration, now time.Time) (current model.OtpRecord, issued bool, err error)
	Get(ctx context.Context, phone string) (model.OtpRecord, error)
	// IncrementAttempts bumps attempts_used on the record with the given id and
	// returns the new value. The record is deleted once it reaches max_attempts.
	// ErrNotFound means the record is gone, was replaced, or is already exhausted.
	IncrementAttempts(ctx context.Context, phone string, id uuid.UUID) (int, error)
	// Consume deletes the record with the given id if it is still usable at now.
	// Only one caller can consume a record; the rest get ErrNotFound.
	Consume(ctx context.Context, phone string, id uuid.UUID, now time.Time) error
	// Delete removes the record with the given id. Deleting a missing record is not an error.
	Delete(ctx context.Context, phone string, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionRepo stores sessions keyed by token hash.
type SessionRepo interface {
	Create(ctx context.Context, s model.SessionRecord) error
	Get(ctx context.Context, tokenHash string) (model.SessionRecord, error)
	// Delete is idempotent and reports whether a session was removed.
	Delete(ctx context.Context, tokenHash string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
	GetOrCreateByPhone(ctx context.Context, phone string) (model.User, error)
	UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName *string) (model.User, error)
}
