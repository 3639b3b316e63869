package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tiretrack/server/internal/model"
)

// RedisSessionRepo keeps sessions as Redis hashes that expire with the session.
type RedisSessionRepo struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisSessionRepo creates a Redis-backed SessionRepo
func NewRedisSessionRepo(client redis.UniversalClient, prefix string) *RedisSessionRepo {
	if prefix == "" {
		prefix = "tt"
	}
	return &RedisSessionRepo{redis: client, prefix: prefix}
}

func (r *RedisSessionRepo) key(tokenHash string) string {
	return r.prefix + ":session:" + tokenHash
}

func (r *RedisSessionRepo) Create(ctx context.Context, s model.SessionRecord) error {
	ttl := s.ExpiresAt.Sub(s.CreatedAt)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	key := r.key(s.TokenHash)
	pipe := r.redis.TxPipeline()
	pipe.HSet(ctx, key,
		"user_id", s.UserID.String(),
		"created_at", s.CreatedAt.UnixMilli(),
		"expires_at", s.ExpiresAt.UnixMilli(),
	)
	pipe.PExpire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepo) Get(ctx context.Context, tokenHash string) (model.SessionRecord, error) {
	fields, err := r.redis.HGetAll(ctx, r.key(tokenHash)).Result()
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("find session: %w", err)
	}
	if len(fields) == 0 {
		return model.SessionRecord{}, ErrNotFound
	}

	s := model.SessionRecord{TokenHash: tokenHash}
	if s.UserID, err = uuid.Parse(fields["user_id"]); err != nil {
		return model.SessionRecord{}, fmt.Errorf("parse session user ID: %w", err)
	}
	if s.CreatedAt, err = parseMillis(fields["created_at"]); err != nil {
		return model.SessionRecord{}, err
	}
	if s.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return model.SessionRecord{}, err
	}
	return s, nil
}

func (r *RedisSessionRepo) Delete(ctx context.Context, tokenHash string) (bool, error) {
	n, err := r.redis.Del(ctx, r.key(tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired is a no-op: Redis expires sessions on its own.
func (r *RedisSessionRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
