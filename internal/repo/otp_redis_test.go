package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiretrack/server/internal/model"
)

const testPhone = "0812345678"

func newRedisTest(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func newRecord(now time.Time) model.OtpRecord {
	return model.OtpRecord{
		ID:          uuid.New(),
		PhoneNumber: testPhone,
		CodeHash:    "hash-" + uuid.NewString(),
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
		LastSentAt:  now,
		MaxAttempts: 3,
	}
}

func TestRedisOtpRepo_IssueAndGet(t *testing.T) {
	rdb, mr := newRedisTest(t)
	repo := NewRedisOtpRepo(rdb, "")
	ctx := context.Background()
	now := time.UnixMilli(time.Now().UnixMilli())

	rec := newRecord(now)
	stored, issued, err := repo.Issue(ctx, rec, time.Minute, now)
	require.NoError(t, err)
	assert.True(t, issued)
	assert.Equal(t, rec.ID, stored.ID)

	got, err := repo.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.CodeHash, got.CodeHash)
	assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))
	assert.True(t, rec.LastSentAt.Equal(got.LastSentAt))
	assert.Equal(t, 0, got.AttemptsUsed)
	assert.Equal(t, 3, got.MaxAttempts)

	assert.True(t, mr.Exists("tt:otp:"+testPhone))
	assert.Equal(t, 5*time.Minute, mr.TTL("tt:otp:"+testPhone))
}

func TestRedisOtpRepo_IssueRespectsCooldown(t *testing.T) {
	rdb, _ := newRedisTest(t)
	repo := NewRedisOtpRepo(rdb, "")
	ctx := context.Background()
	now := time.UnixMilli(time.Now().UnixMilli())

	first := newRecord(now)
	_, issued, err := repo.Issue(ctx, first, time.Minute, now)
	require.NoError(t, err)
	require.True(t, issued)

	later := now.Add(20 * time.Second)
	current, issued, err := repo.Issue(ctx, newRecord(later), time.Minute, later)
	require.NoError(t, err)
	assert.False(t, issued, "second issue inside cooldown must be rejected")
	assert.Equal(t, first.ID, current.ID)
	assert.True(t, first.LastSentAt.Equal(current.LastSentAt))

	afterCooldown := now.Add(61 * time.Second)
	replacement := newRecord(afterCooldown)
	_, issued, err = repo.Issue(ctx, replacement, time.Minute, afterCooldown)
	require.NoError(t, err)
	assert.True(t, issued)

	got, err := repo.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, got.ID)
}

func TestRedisOtpRepo_ConcurrentIssueSerialised(t *testing.T) {
	rdb, _ := newRedisTest(t)
	repo := NewRedisOtpRepo(rdb, "")
	ctx := context.Background()
	now := time.UnixMilli(time.Now().UnixMilli())

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		issued int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Issue(ctx, newRecord(now), time.Minute, now)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				issued++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, issued)
}

func TestRedisOtpRepo_IncrementAttempts(t *testing.T) {
	rdb, _ := newRedisTest(t)
	repo := NewRedisOtpRepo(rdb, "")
	ctx := context.Background()
	now := time.Now()

	rec := newRecord(now)
	_, _, err := repo.Issue(ctx, rec, time.Minute, now)
	require.NoError(t, err)

	used, err := repo.IncrementAttempts(ctx, testPhone, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	used, err = repo.IncrementAttempts(ctx, testPhone, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, used)

	used, err = repo.IncrementAttempts(ctx, testPhone, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, used)

	_, err = repo.Get(ctx, testPhone)
	assert.ErrorIs(t, err, ErrNotFound, "record must be deleted once attempts reach the ceiling")

	_, err = repo.IncrementAttempts(ctx, testPhone, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisOtpRepo_IncrementAttemptsStaleID(t *testing.T) {
	rdb, _ := newRedisTest(t)
	repo := NewRedisOtpRepo(rdb, "")
	ctx := context.Background()
	now := time.Now()

	rec := newRecord(now)
	_, _, err := repo.Issue(ctx, rec, time.Minute, now)
	require.NoError(t, err)

	_, err = repo.IncrementAttempts(ctx, testPhone, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := repo.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AttemptsUsed)
}

func TestRedisOtpRepo_ConcurrentIncrementsAreNotLost(t *testing.T) {
	rdb, _ := newRedisTest(t)
	repo := NewRedisOtpRepo(rdb, "")
	ctx := context.Background()
	now := time.Now()

	rec := newRecord(now)
	rec.MaxAttempts = 50
	_, _, err := repo.Issue(ctx, rec, time.Minute, now)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.IncrementAttempts(ctx, testPhone, rec.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, 20, got.AttemptsUsed)
}

func TestRedisOtpRepo_ConsumeOnce(t *testing.T) {
	rdb, _ := newRedisTest(t)
	repo := NewRedisOtpRepo(rdb, "")
	ctx := context.Background()
	now := time.Now()

	rec := newRecord(now)
	_, _, err := repo.Issue(ctx, rec, time.Minute, now)
	require.NoError(t, err)

	require.NoError(t, repo.Consume(ctx, testPhone, rec.ID, now))
	assert.ErrorIs(t, repo.Consume(ctx, testPhone, rec.ID, now), ErrNotFound)

	_, err = repo.Get(ctx, testPhone)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisOtpRepo_ConsumeExpired(t *testing.T) {
	rdb, _ := newRedisTest(t)
	repo := NewRedisOtpRepo(rdb, "")
	ctx := context.Background()
	now := time.Now()

	rec := newRecord(now)
	_, _, err := repo.Issue(ctx, rec, time.Minute, now)
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Consume(ctx, testPhone, rec.ID, now.Add(6*time.Minute)), ErrNotFound)
	_, err = repo.Get(ctx, testPhone)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisOtpRepo_DeleteOnlyMatchingID(t *testing.T) {
	rdb, _ := newRedisTest(t)
	repo := NewRedisOtpRepo(rdb, "")
	ctx := context.Background()
	now := time.Now()

	rec := newRecord(now)
	_, _, err := repo.Issue(ctx, rec, time.Minute, now)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, testPhone, uuid.New()))
	_, err = repo.Get(ctx, testPhone)
	require.NoError(t, err, "delete with a stale id must not remove the live record")

	require.NoError(t, repo.Delete(ctx, testPhone, rec.ID))
	require.NoError(t, repo.Delete(ctx, testPhone, rec.ID))
	_, err = repo.Get(ctx, testPhone)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisOtpRepo_KeyExpiresWithCode(t *testing.T) {
	rdb, mr := newRedisTest(t)
	repo := NewRedisOtpRepo(rdb, "shop")
	ctx := context.Background()
	now := time.Now()

	_, _, err := repo.Issue(ctx, newRecord(now), time.Minute, now)
	require.NoError(t, err)
	assert.True(t, mr.Exists("shop:otp:"+testPhone))

	mr.FastForward(5*time.Minute + time.Second)
	_, err = repo.Get(ctx, testPhone)
	assert.ErrorIs(t, err, ErrNotFound)
}
