package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/permissions"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct-horse-battery"

var testSigningKey = []byte("test-signing-key")

// MockLogger implements identity.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.Called(msg, args)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event identity.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []identity.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]identity.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *recordingSink) Last(eventType identity.ActivityEventType) (identity.ActivityEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].EventType == eventType {
			return s.events[i], true
		}
	}
	return identity.ActivityEvent{}, false
}

type harness struct {
	engine *identity.Engine
	store  *identity.MemoryStore
	hasher identity.Hasher
	clock  *testClock
	sink   *recordingSink
}

func newHarness(t *testing.T, mutate ...func(*identity.Config)) *harness {
	t.Helper()

	cfg := identity.Config{
		SigningKey: testSigningKey,
		Issuer:     "identity-test",
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	h := &harness{
		store:  identity.NewMemoryStore(),
		hasher: identity.NewBcryptHasher(bcrypt.MinCost),
		clock:  newTestClock(),
		sink:   &recordingSink{},
	}

	h.engine = identity.NewEngine(cfg, h.store).
		WithLogger(identity.NopLogger()).
		WithHasher(h.hasher).
		WithClock(h.clock.Now).
		WithActivitySink(h.sink)

	return h
}

func (h *harness) createUser(t *testing.T, user identity.User) *identity.User {
	t.Helper()

	hash, err := h.hasher.Hash(testPassword)
	require.NoError(t, err)
	user.PasswordHash = hash

	created, err := h.store.Create(context.Background(), &user)
	require.NoError(t, err)
	return created
}

func (h *harness) alice(t *testing.T) *identity.User {
	return h.createUser(t, identity.User{
		Username: "alice",
		Email:    "alice@example.com",
		Mobile:   "15550001111",
		Permissions: permissions.Map{
			"reports": permissions.NewSet("read"),
		},
	})
}

func (h *harness) login(t *testing.T, user *identity.User, remember bool) *identity.Session {
	t.Helper()

	session, err := h.engine.Authenticate(context.Background(), identity.Credentials{
		Username: user.Username,
		Password: testPassword,
		Remember: remember,
	})
	require.NoError(t, err)
	return session
}

func (h *harness) issue(t *testing.T, user *identity.User, kind identity.TokenKind, opts identity.EncodeOptions) *identity.IssuedToken {
	t.Helper()

	issued, err := h.engine.IssueToken(context.Background(), user, kind, opts)
	require.NoError(t, err)
	return issued
}

func assertKind(t *testing.T, err error, textCode string) {
	t.Helper()
	require.Error(t, err)
	if !identity.IsKind(err, textCode) {
		t.Fatalf("expected error kind %s, got %s (%v)", textCode, identity.Kind(err), err)
	}
}

// claimingStore runs afterLookup once, right after the first email lookup,
// so a test can change the store between lookup and update.
type claimingStore struct {
	*identity.MemoryStore
	afterLookup func()
}

func (s *claimingStore) FetchByEmail(ctx context.Context, email string) (*identity.User, error) {
	user, err := s.MemoryStore.FetchByEmail(ctx, email)
	if hook := s.afterLookup; hook != nil {
		s.afterLookup = nil
		hook()
	}
	return user, err
}
