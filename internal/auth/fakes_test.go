package auth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tiretrack/server/internal/model"
	"github.com/tiretrack/server/internal/repo"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memOtpRepo struct {
	mu   sync.Mutex
	recs map[string]model.OtpRecord
}

func newMemOtpRepo() *memOtpRepo {
	return &memOtpRepo{recs: make(map[string]model.OtpRecord)}
}

func (m *memOtpRepo) Issue(_ context.Context, rec model.OtpRecord, cooldown time.Duration, now time.Time) (model.OtpRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.recs[rec.PhoneNumber]; ok && !cur.Expired(now) && now.Before(cur.LastSentAt.Add(cooldown)) {
		return cur, false, nil
	}
	m.recs[rec.PhoneNumber] = rec
	return rec, true, nil
}

func (m *memOtpRepo) Get(_ context.Context, phone string) (model.OtpRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[phone]
	if !ok {
		return model.OtpRecord{}, repo.ErrNotFound
	}
	return rec, nil
}

func (m *memOtpRepo) IncrementAttempts(_ context.Context, phone string, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[phone]
	if !ok || rec.ID != id || rec.Exhausted() {
		return 0, repo.ErrNotFound
	}
	rec.AttemptsUsed++
	if rec.Exhausted() {
		delete(m.recs, phone)
	} else {
		m.recs[phone] = rec
	}
	return rec.AttemptsUsed, nil
}

func (m *memOtpRepo) Consume(_ context.Context, phone string, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[phone]
	if !ok || rec.ID != id || rec.Exhausted() || rec.Expired(now) {
		return repo.ErrNotFound
	}
	delete(m.recs, phone)
	return nil
}

func (m *memOtpRepo) Delete(_ context.Context, phone string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.recs[phone]; ok && rec.ID == id {
		delete(m.recs, phone)
	}
	return nil
}

func (m *memOtpRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for phone, rec := range m.recs {
		if rec.Expired(now) {
			delete(m.recs, phone)
			n++
		}
	}
	return n, nil
}

func (m *memOtpRepo) record(phone string) (model.OtpRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[phone]
	return rec, ok
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]model.SessionRecord
	failWith error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]model.SessionRecord)}
}

func (m *memSessionRepo) Create(_ context.Context, s model.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, exists := m.sessions[s.TokenHash]; exists {
		return errors.New("duplicate session")
	}
	m.sessions[s.TokenHash] = s
	return nil
}

func (m *memSessionRepo) Get(_ context.Context, tokenHash string) (model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return model.SessionRecord{}, m.failWith
	}
	s, ok := m.sessions[tokenHash]
	if !ok {
		return model.SessionRecord{}, repo.ErrNotFound
	}
	return s, nil
}

func (m *memSessionRepo) Delete(_ context.Context, tokenHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	_, ok := m.sessions[tokenHash]
	delete(m.sessions, tokenHash)
	return ok, nil
}

func (m *memSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]model.User
	byPhone map[string]uuid.UUID
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: make(map[uuid.UUID]model.User), byPhone: make(map[string]uuid.UUID)}
}

func (m *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (m *memUserRepo) GetByPhone(_ context.Context, phone string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPhone[phone]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	return m.byID[id], nil
}

func (m *memUserRepo) GetOrCreateByPhone(_ context.Context, phone string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byPhone[phone]; ok {
		return m.byID[id], nil
	}
	u := model.User{ID: uuid.New(), PhoneNumber: phone, CreatedAt: time.Now()}
	m.byID[u.ID] = u
	m.byPhone[phone] = u.ID
	return u, nil
}

func (m *memUserRepo) UpdateDisplayName(_ context.Context, id uuid.UUID, displayName *string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, repo.ErrNotFound
	}
	u.DisplayName = displayName
	m.byID[id] = u
	return u, nil
}

type captureSender struct {
	mu       sync.Mutex
	phones   []string
	messages []string
	failWith error
}

func (s *captureSender) Send(_ context.Context, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phones = append(s.phones, phone)
	s.messages = append(s.messages, message)
	return s.failWith
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

var codePattern = regexp.MustCompile(`\b\d{4,10}\b`)

func (s *captureSender) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		t.Fatal("no SMS was sent")
	}
	code := codePattern.FindString(s.messages[len(s.messages)-1])
	if code == "" {
		t.Fatalf("no code in message %q", s.messages[len(s.messages)-1])
	}
	return code
}

type countingObserver struct {
	mu        sync.Mutex
	requested map[string]int
	verified  map[string]int
	created   int
	destroyed int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{requested: map[string]int{}, verified: map[string]int{}}
}

func (o *countingObserver) OTPRequested(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requested[outcome]++
}

func (o *countingObserver) OTPVerified(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verified[outcome]++
}

func (o *countingObserver) SessionCreated() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created++
}

func (o *countingObserver) SessionDestroyed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.destroyed++
}

const testPhone = "0812345678"

func testPolicy() Policy {
	return Policy{
		CodeLength:  6,
		CodeTTL:     5 * time.Minute,
		Cooldown:    60 * time.Second,
		MaxAttempts: 5,
		SessionTTL:  24 * time.Hour,
		Salt:        "test-salt",
		Locale:      "en",
		DevMode:     true,
	}
}

type harness struct {
	clock    *fakeClock
	otps     *memOtpRepo
	sessions *memSessionRepo
	users    *memUserRepo
	sender   *captureSender
	observer *countingObserver

	issuer   *Issuer
	verifier *Verifier
	manager  *SessionManager
	tokens   *JWTService
	gateway  *Gateway
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	h := &harness{
		clock:    &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		otps:     newMemOtpRepo(),
		sessions: newMemSessionRepo(),
		users:    newMemUserRepo(),
		sender:   &captureSender{},
		observer: newCountingObserver(),
	}

	h.issuer = NewIssuer(h.otps, h.sender, policy)
	h.issuer.now = h.clock.Now
	h.manager = NewSessionManager(h.sessions, policy.SessionTTL)
	h.manager.now = h.clock.Now
	h.verifier = NewVerifier(h.otps, h.users, h.manager, policy)
	h.verifier.now = h.clock.Now
	h.tokens = NewJWTService("test-secret", 15*time.Minute)
	h.tokens.now = h.clock.Now
	h.gateway = NewGateway(h.issuer, h.verifier, h.manager, h.tokens, h.users, h.observer)
	return h
}
