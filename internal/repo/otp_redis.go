package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tiretrack/server/internal/model"
)

// issueOtpLua checks the cooldown of the current record and replaces it in one step.
// KEYS[1] = record key
// ARGV = now_ms, cooldown_ms, ttl_ms, id, code_hash, created_at, expires_at, last_sent_at, max_attempts
//
// Returns the current record (HGETALL) while its cooldown is active, nil once the new record is stored.
var issueOtpLua = redis.NewScript(`
local now = tonumber(ARGV[1])
local cooldown = tonumber(ARGV[2])
local cur = redis.call('HMGET', KEYS[1], 'expires_at', 'last_sent_at')
if cur[1] and cur[2] then
  if now <= tonumber(cur[1]) and now < tonumber(cur[2]) + cooldown then
    return redis.call('HGETALL', KEYS[1])
  end
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
  'id', ARGV[4],
  'code_hash', ARGV[5],
  'created_at', ARGV[6],
  'expires_at', ARGV[7],
  'last_sent_at', ARGV[8],
  'attempts_used', '0',
  'max_attempts', ARGV[9])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return false
`)

// incrementOtpLua
// KEYS[1] = record key, ARGV[1] = record id
// Returns the new attempts_used, or -1 when the record is gone, replaced or exhausted.
var incrementOtpLua = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'id', 'attempts_used', 'max_attempts')
if not f[1] or f[1] ~= ARGV[1] then
  return -1
end
local max = tonumber(f[3])
if tonumber(f[2]) >= max then
  return -1
end
local used = redis.call('HINCRBY', KEYS[1], 'attempts_used', 1)
if used >= max then
  redis.call('DEL', KEYS[1])
end
return used
`)

// consumeOtpLua
// KEYS[1] = record key, ARGV[1] = record id, ARGV[2] = now_ms
// Returns 1 when the record was consumed, 0 otherwise.
var consumeOtpLua = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'id', 'attempts_used', 'max_attempts', 'expires_at')
if not f[1] or f[1] ~= ARGV[1] then
  return 0
end
if tonumber(f[2]) >= tonumber(f[3]) or tonumber(ARGV[2]) > tonumber(f[4]) then
  redis.call('DEL', KEYS[1])
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// deleteOtpLua
// KEYS[1] = record key, ARGV[1] = record id
var deleteOtpLua = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisOtpRepo keeps OTP records as Redis hashes that expire with the code.
type RedisOtpRepo struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisOtpRepo creates a Redis-backed OtpRepo
func NewRedisOtpRepo(client redis.UniversalClient, prefix string) *RedisOtpRepo {
	if prefix == "" {
		prefix = "tt"
	}
	return &RedisOtpRepo{redis: client, prefix: prefix}
}

func (r *RedisOtpRepo) key(phone string) string {
	return r.prefix + ":otp:" + phone
}

func (r *RedisOtpRepo) Issue(ctx context.Context, rec model.OtpRecord, cooldown time.Duration, now time.Time) (model.OtpRecord, bool, error) {
	ttl := rec.ExpiresAt.Sub(now).Milliseconds()
	if ttl < 1 {
		ttl = 1
	}

	current, err := issueOtpLua.Run(ctx, r.redis,
		[]string{r.key(rec.PhoneNumber)},
		now.UnixMilli(),
		cooldown.Milliseconds(),
		ttl,
		rec.ID.String(),
		rec.CodeHash,
		rec.CreatedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
		rec.LastSentAt.UnixMilli(),
		rec.MaxAttempts,
	).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			rec.AttemptsUsed = 0
			return rec, true, nil
		}
		return model.OtpRecord{}, false, fmt.Errorf("issue otp record: %w", err)
	}

	fields := make(map[string]string, len(current)/2)
	for i := 0; i+1 < len(current); i += 2 {
		fields[current[i]] = current[i+1]
	}
	existing, err := decodeOtpRecord(rec.PhoneNumber, fields)
	if err != nil {
		return model.OtpRecord{}, false, err
	}
	return existing, false, nil
}

func (r *RedisOtpRepo) Get(ctx context.Context, phone string) (model.OtpRecord, error) {
	fields, err := r.redis.HGetAll(ctx, r.key(phone)).Result()
	if err != nil {
		return model.OtpRecord{}, fmt.Errorf("get otp record: %w", err)
	}
	if len(fields) == 0 {
		return model.OtpRecord{}, ErrNotFound
	}
	return decodeOtpRecord(phone, fields)
}

func (r *RedisOtpRepo) IncrementAttempts(ctx context.Context, phone string, id uuid.UUID) (int, error) {
	used, err := incrementOtpLua.Run(ctx, r.redis, []string{r.key(phone)}, id.String()).Int()
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	if used < 0 {
		return 0, ErrNotFound
	}
	return used, nil
}

func (r *RedisOtpRepo) Consume(ctx context.Context, phone string, id uuid.UUID, now time.Time) error {
	n, err := consumeOtpLua.Run(ctx, r.redis, []string{r.key(phone)}, id.String(), now.UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("consume otp record: %w", err)
	}
	if n != 1 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisOtpRepo) Delete(ctx context.Context, phone string, id uuid.UUID) error {
	if err := deleteOtpLua.Run(ctx, r.redis, []string{r.key(phone)}, id.String()).Err(); err != nil {
		return fmt.Errorf("delete otp record: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis expires records on its own.
func (r *RedisOtpRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func decodeOtpRecord(phone string, fields map[string]string) (model.OtpRecord, error) {
	rec := model.OtpRecord{
		PhoneNumber: phone,
		CodeHash:    fields["code_hash"],
	}

	var err error
	if rec.ID, err = uuid.Parse(fields["id"]); err != nil {
		return model.OtpRecord{}, fmt.Errorf("parse otp record ID: %w", err)
	}
	if rec.CreatedAt, err = parseMillis(fields["created_at"]); err != nil {
		return model.OtpRecord{}, err
	}
	if rec.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return model.OtpRecord{}, err
	}
	if rec.LastSentAt, err = parseMillis(fields["last_sent_at"]); err != nil {
		return model.OtpRecord{}, err
	}
	if rec.AttemptsUsed, err = strconv.Atoi(fields["attempts_used"]); err != nil {
		return model.OtpRecord{}, fmt.Errorf("parse attempts_used: %w", err)
	}
	if rec.MaxAttempts, err = strconv.Atoi(fields["max_attempts"]); err != nil {
		return model.OtpRecord{}, fmt.Errorf("parse max_attempts: %w", err)
	}
	return rec, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return time.UnixMilli(ms), nil
}
