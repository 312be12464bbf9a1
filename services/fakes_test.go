package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lborres/whisper/core"
	"github.com/lborres/whisper/pkg/crypto"
)

// FakeStorage is a test-only fake implementing core.StorageAdapter.
// It enforces the same uniqueness rules as the real stores and exposes error
// fields for behavior injection.
type FakeStorage struct {
	mu        sync.RWMutex
	accounts  map[string]*core.Account // by id
	usernames map[string]string        // username -> id
	federated map[string]string        // provider\x00subject -> id
	sessions  map[string]*core.Session // by token hash

	createAccountErr error
	getAccountErr    error
	createSessionErr error
	getSessionErr    error
	deleteSessionErr error

	// createFederatedHook runs before the federated insert takes the lock
	createFederatedHook func()
	federatedCreates    int
	// honorCancel makes the federated insert fail on a done context
	honorCancel bool
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{
		accounts:  make(map[string]*core.Account),
		usernames: make(map[string]string),
		federated: make(map[string]string),
		sessions:  make(map[string]*core.Session),
	}
}

func federatedKey(provider, subject string) string {
	return provider + "\x00" + subject
}

func copyAccount(a *core.Account) *core.Account {
	c := *a
	c.Secrets = append([]string{}, a.Secrets...)
	if a.FederatedIdentities != nil {
		c.FederatedIdentities = make(map[string]string, len(a.FederatedIdentities))
		for k, v := range a.FederatedIdentities {
			c.FederatedIdentities[k] = v
		}
	}
	return &c
}

func (f *FakeStorage) CreateLocalAccount(_ context.Context, a *core.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createAccountErr != nil {
		return f.createAccountErr
	}
	if _, taken := f.usernames[*a.Username]; taken {
		return core.ErrDuplicateUsername
	}
	f.accounts[a.ID] = copyAccount(a)
	f.usernames[*a.Username] = a.ID
	return nil
}

func (f *FakeStorage) CreateFederatedAccount(ctx context.Context, a *core.Account, provider, subject string) error {
	if f.createFederatedHook != nil {
		f.createFederatedHook()
	}
	if f.honorCancel && ctx.Err() != nil {
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createAccountErr != nil {
		return f.createAccountErr
	}
	key := federatedKey(provider, subject)
	if _, linked := f.federated[key]; linked {
		return core.ErrFederatedIdentityExists
	}
	f.accounts[a.ID] = copyAccount(a)
	f.federated[key] = a.ID
	f.federatedCreates++
	return nil
}

func (f *FakeStorage) GetAccountByID(_ context.Context, id string) (*core.Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.getAccountErr != nil {
		return nil, f.getAccountErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (f *FakeStorage) GetAccountByUsername(_ context.Context, username string) (*core.Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.getAccountErr != nil {
		return nil, f.getAccountErr
	}
	id, ok := f.usernames[username]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	return copyAccount(f.accounts[id]), nil
}

func (f *FakeStorage) GetAccountByFederatedIdentity(_ context.Context, provider, subject string) (*core.Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.getAccountErr != nil {
		return nil, f.getAccountErr
	}
	id, ok := f.federated[federatedKey(provider, subject)]
	if !ok {
		return nil, core.ErrAccountNotFound
	}
	return copyAccount(f.accounts[id]), nil
}

func (f *FakeStorage) AppendSecret(_ context.Context, accountID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return core.ErrAccountNotFound
	}
	a.Secrets = append(a.Secrets, text)
	return nil
}

func (f *FakeStorage) RemoveSecret(_ context.Context, accountID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return core.ErrAccountNotFound
	}
	for i, s := range a.Secrets {
		if s == text {
			a.Secrets = append(a.Secrets[:i], a.Secrets[i+1:]...)
			break
		}
	}
	return nil
}

func (f *FakeStorage) ListAccountsWithSecrets(_ context.Context) ([]*core.Account, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []*core.Account
	for _, a := range f.accounts {
		if len(a.Secrets) > 0 {
			out = append(out, copyAccount(a))
		}
	}
	return out, nil
}

func (f *FakeStorage) CreateSession(_ context.Context, s *core.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createSessionErr != nil {
		return f.createSessionErr
	}
	c := *s
	f.sessions[s.TokenHash] = &c
	return nil
}

func (f *FakeStorage) GetSessionByHash(_ context.Context, tokenHash string) (*core.Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.getSessionErr != nil {
		return nil, f.getSessionErr
	}
	s, ok := f.sessions[tokenHash]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	c := *s
	return &c, nil
}

func (f *FakeStorage) SessionExists(_ context.Context, tokenHash string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.getSessionErr != nil {
		return false, f.getSessionErr
	}
	_, ok := f.sessions[tokenHash]
	return ok, nil
}

func (f *FakeStorage) DeleteSessionByHash(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteSessionErr != nil {
		return f.deleteSessionErr
	}
	delete(f.sessions, tokenHash)
	return nil
}

func (f *FakeStorage) DeleteAccountSessions(_ context.Context, accountID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteSessionErr != nil {
		return 0, f.deleteSessionErr
	}
	count := 0
	for k, s := range f.sessions {
		if s.AccountID == accountID {
			delete(f.sessions, k)
			count++
		}
	}
	return count, nil
}

func (f *FakeStorage) DeleteExpiredSessions(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteSessionErr != nil {
		return 0, f.deleteSessionErr
	}
	now := time.Now()
	count := 0
	for k, s := range f.sessions {
		if s.Expired(now) {
			delete(f.sessions, k)
			count++
		}
	}
	return count, nil
}

func (f *FakeStorage) sessionCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sessions)
}

func (f *FakeStorage) accountCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.accounts)
}

// expireSession moves the stored expiry of tokenHash into the past
func (f *FakeStorage) expireSession(tokenHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[tokenHash]; ok {
		s.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// FakeCache is a test-only fake implementing core.Cache with call counters
type FakeCache struct {
	mu      sync.Mutex
	items   map[string]*core.Session
	gets    int
	hits    int
	sets    int
	deletes int
	clears  int
	setErr  error
}

func NewFakeCache() *FakeCache {
	return &FakeCache{items: make(map[string]*core.Session)}
}

func (c *FakeCache) Get(tokenHash string) (*core.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	s, ok := c.items[tokenHash]
	if !ok {
		return nil, core.ErrCacheNotFound
	}
	c.hits++
	return s, nil
}

func (c *FakeCache) Set(tokenHash string, s *core.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.items[tokenHash] = s
	return nil
}

func (c *FakeCache) Delete(tokenHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.items, tokenHash)
	return nil
}

func (c *FakeCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
	c.items = make(map[string]*core.Session)
	return nil
}

func (c *FakeCache) has(tokenHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[tokenHash]
	return ok
}

// fakeProvider is a scripted core.OAuthProvider
type fakeProvider struct {
	name     string
	profiles map[string]*core.ProviderProfile // code -> profile
	err      error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://" + p.name + ".example/authorize?state=" + state
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*core.ProviderProfile, error) {
	if p.err != nil {
		return nil, p.err
	}
	profile, ok := p.profiles[code]
	if !ok {
		return nil, fmt.Errorf("unknown code %q", code)
	}
	return profile, nil
}

type fakeProviders map[string]core.OAuthProvider

func (f fakeProviders) Provider(name string) (core.OAuthProvider, error) {
	p, ok := f[name]
	if !ok {
		return nil, core.ErrUnknownProvider
	}
	return p, nil
}

// fakeStateCodec issues "<provider>-state" and accepts only that
type fakeStateCodec struct{}

func (fakeStateCodec) Issue(provider string) (string, error) { return provider + "-state", nil }

func (fakeStateCodec) Verify(state, provider string) error {
	if state != provider+"-state" {
		return errors.New("state does not belong to provider")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// cheapHasher keeps argon2 but with parameters small enough for tests
func cheapHasher() *crypto.Argon2 {
	h := crypto.NewArgon2()
	h.Memory = 1024
	h.Iterations = 1
	h.Parallelism = 1
	return h
}

// testEnv wires every service over one FakeStorage
type testEnv struct {
	storage    *FakeStorage
	cache      *FakeCache
	identities *IdentityStore
	sessions   *SessionManager
	resolver   *FederatedResolver
	auth       *AuthService
}

func newTestEnv(cache *FakeCache) *testEnv {
	storage := NewFakeStorage()
	logger := discardLogger()
	hasher := cheapHasher()

	var c core.Cache
	if cache != nil {
		c = cache
	}

	identities := NewIdentityStore(storage, hasher, logger)
	sessions := NewSessionManager(core.DefaultSessionConfig(), storage, storage, c, logger)
	providers := fakeProviders{
		"google": &fakeProvider{name: "google", profiles: map[string]*core.ProviderProfile{
			"code-g1":    {Provider: "google", SubjectID: "g-123", DisplayName: "Gina"},
			"code-g2":    {Provider: "google", SubjectID: "g-456", DisplayName: "Gus"},
			"code-nosub": {Provider: "google", DisplayName: "Nobody"},
		}},
		"facebook": &fakeProvider{name: "facebook", profiles: map[string]*core.ProviderProfile{
			"code-f1": {Provider: "facebook", SubjectID: "g-123", DisplayName: "Fay"},
		}},
	}
	resolver := NewFederatedResolver(providers, fakeStateCodec{}, identities, logger)
	guard := NewGuard(sessions, logger)
	board := NewSecretBoard(identities)
	auth := NewAuthService(identities, NewCredentialVerifier(storage, hasher), resolver, sessions, guard, board, logger)

	return &testEnv{
		storage:    storage,
		cache:      cache,
		identities: identities,
		sessions:   sessions,
		resolver:   resolver,
		auth:       auth,
	}
}
