// Package storetest is a conformance suite for core.StorageAdapter
// implementations.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lborres/whisper/core"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) core.StorageAdapter

// Run exercises every storage operation against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("LocalAccounts", func(t *testing.T) { testLocalAccounts(t, newStore(t)) })
	t.Run("FederatedAccounts", func(t *testing.T) { testFederatedAccounts(t, newStore(t)) })
	t.Run("FederatedRace", func(t *testing.T) { testFederatedRace(t, newStore(t)) })
	t.Run("Secrets", func(t *testing.T) { testSecrets(t, newStore(t)) })
	t.Run("ConcurrentSecrets", func(t *testing.T) { testConcurrentSecrets(t, newStore(t)) })
	t.Run("ListAccountsWithSecrets", func(t *testing.T) { testListAccountsWithSecrets(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("SessionCleanup", func(t *testing.T) { testSessionCleanup(t, newStore(t)) })
}

func localAccount(username string) *core.Account {
	hash := "$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA"
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &core.Account{
		ID:           uuid.NewString(),
		Username:     &username,
		PasswordHash: &hash,
		DisplayName:  username,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func federatedAccount(name string) *core.Account {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &core.Account{
		ID:          uuid.NewString(),
		DisplayName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func newSession(accountID string, ttl time.Duration) *core.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &core.Session{
		ID:        uuid.NewString(),
		AccountID: accountID,
		TokenHash: uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func testLocalAccounts(t *testing.T, s core.StorageAdapter) {
	ctx := context.Background()
	alice := localAccount("alice")

	require.NoError(t, s.CreateLocalAccount(ctx, alice))
	assert.ErrorIs(t, s.CreateLocalAccount(ctx, localAccount("alice")), core.ErrDuplicateUsername)

	byName, err := s.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)
	require.NotNil(t, byName.PasswordHash)
	assert.Equal(t, *alice.PasswordHash, *byName.PasswordHash)
	assert.True(t, byName.HasLocalCredential())
	assert.Empty(t, byName.Secrets)

	byID, err := s.GetAccountByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", *byID.Username)

	_, err = s.GetAccountByUsername(ctx, "bob")
	assert.ErrorIs(t, err, core.ErrAccountNotFound)
	_, err = s.GetAccountByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, core.ErrAccountNotFound)
}

func testFederatedAccounts(t *testing.T, s core.StorageAdapter) {
	ctx := context.Background()
	gina := federatedAccount("Gina")

	require.NoError(t, s.CreateFederatedAccount(ctx, gina, "google", "g-1"))
	assert.ErrorIs(t, s.CreateFederatedAccount(ctx, federatedAccount("Imposter"), "google", "g-1"),
		core.ErrFederatedIdentityExists)
	// same subject at another provider is a different identity
	require.NoError(t, s.CreateFederatedAccount(ctx, federatedAccount("Fay"), "facebook", "g-1"))

	found, err := s.GetAccountByFederatedIdentity(ctx, "google", "g-1")
	require.NoError(t, err)
	assert.Equal(t, gina.ID, found.ID)
	assert.Equal(t, map[string]string{"google": "g-1"}, found.FederatedIdentities)
	assert.False(t, found.HasLocalCredential())

	_, err = s.GetAccountByFederatedIdentity(ctx, "google", "g-2")
	assert.ErrorIs(t, err, core.ErrAccountNotFound)
}

func testFederatedRace(t *testing.T, s core.StorageAdapter) {
	ctx := context.Background()
	const callers = 8

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreateFederatedAccount(ctx, federatedAccount("Racer"), "google", "g-race")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, core.ErrFederatedIdentityExists)
	}
	assert.Equal(t, 1, wins)
}

func testSecrets(t *testing.T, s core.StorageAdapter) {
	ctx := context.Background()
	alice := localAccount("alice")
	require.NoError(t, s.CreateLocalAccount(ctx, alice))

	for _, text := range []string{"a", "b", "a", "c"} {
		require.NoError(t, s.AppendSecret(ctx, alice.ID, text))
	}
	require.NoError(t, s.RemoveSecret(ctx, alice.ID, "a"))
	require.NoError(t, s.RemoveSecret(ctx, alice.ID, "missing"))

	got, err := s.GetAccountByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, got.Secrets)

	assert.ErrorIs(t, s.AppendSecret(ctx, uuid.NewString(), "x"), core.ErrAccountNotFound)
}

func testConcurrentSecrets(t *testing.T, s core.StorageAdapter) {
	ctx := context.Background()
	alice := localAccount("alice")
	require.NoError(t, s.CreateLocalAccount(ctx, alice))
	require.NoError(t, s.AppendSecret(ctx, alice.ID, "seed"))

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendSecret(ctx, alice.ID, "x"))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendSecret(ctx, alice.ID, "y"))
		}()
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.RemoveSecret(ctx, alice.ID, "x"))
		}()
	}
	wg.Wait()

	got, err := s.GetAccountByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, got.Secrets, 1+writers)
	assert.Equal(t, "seed", got.Secrets[0])
	assert.NotContains(t, got.Secrets, "x")
}

func testListAccountsWithSecrets(t *testing.T, s core.StorageAdapter) {
	ctx := context.Background()
	alice := localAccount("alice")
	bob := localAccount("bob")
	gina := federatedAccount("Gina")
	require.NoError(t, s.CreateLocalAccount(ctx, alice))
	require.NoError(t, s.CreateLocalAccount(ctx, bob))
	require.NoError(t, s.CreateFederatedAccount(ctx, gina, "google", "g-1"))

	require.NoError(t, s.AppendSecret(ctx, gina.ID, "first"))
	require.NoError(t, s.AppendSecret(ctx, alice.ID, "I like turtles"))
	require.NoError(t, s.AppendSecret(ctx, gina.ID, "second"))

	accounts, err := s.ListAccountsWithSecrets(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, gina.ID, accounts[0].ID)
	assert.Equal(t, []string{"first", "second"}, accounts[0].Secrets)
	assert.Equal(t, alice.ID, accounts[1].ID)
	assert.Equal(t, []string{"I like turtles"}, accounts[1].Secrets)
}

func testSessions(t *testing.T, s core.StorageAdapter) {
	ctx := context.Background()
	alice := localAccount("alice")
	require.NoError(t, s.CreateLocalAccount(ctx, alice))

	session := newSession(alice.ID, time.Hour)
	require.NoError(t, s.CreateSession(ctx, session))

	got, err := s.GetSessionByHash(ctx, session.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, alice.ID, got.AccountID)
	assert.WithinDuration(t, session.ExpiresAt, got.ExpiresAt, time.Second)

	exists, err := s.SessionExists(ctx, session.TokenHash)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.DeleteSessionByHash(ctx, session.TokenHash))
	_, err = s.GetSessionByHash(ctx, session.TokenHash)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	exists, err = s.SessionExists(ctx, session.TokenHash)
	require.NoError(t, err)
	assert.False(t, exists)

	// idempotent
	assert.NoError(t, s.DeleteSessionByHash(ctx, session.TokenHash))
}

func testSessionCleanup(t *testing.T, s core.StorageAdapter) {
	ctx := context.Background()
	alice := localAccount("alice")
	bob := localAccount("bob")
	require.NoError(t, s.CreateLocalAccount(ctx, alice))
	require.NoError(t, s.CreateLocalAccount(ctx, bob))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateSession(ctx, newSession(alice.ID, time.Hour)))
	}
	live := newSession(bob.ID, time.Hour)
	expired := newSession(bob.ID, -time.Hour)
	require.NoError(t, s.CreateSession(ctx, live))
	require.NoError(t, s.CreateSession(ctx, expired))

	n, err := s.DeleteAccountSessions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetSessionByHash(ctx, live.TokenHash)
	assert.NoError(t, err)
	_, err = s.GetSessionByHash(ctx, expired.TokenHash)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}
