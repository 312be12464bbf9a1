package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lborres/whisper/core"
)

// Requirement: CreateLocal stores a hashed credential and rejects taken usernames.
func TestIdentityStore_CreateLocal(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		username string
		wantErr  error
	}{
		{name: "creates account", username: "alice"},
		{name: "rejects duplicate username", existing: []string{"alice"}, username: "alice", wantErr: core.ErrDuplicateUsername},
		{name: "usernames are case sensitive", existing: []string{"alice"}, username: "Alice"},
	}

	for _, test := range tests {
		test := test // capture range variable
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			env := newTestEnv(nil)
			ctx := context.Background()
			for _, u := range test.existing {
				if _, err := env.identities.CreateLocal(ctx, u, "pw"); err != nil {
					t.Fatalf("seed CreateLocal(%q) error = %v", u, err)
				}
			}

			// Act
			account, err := env.identities.CreateLocal(ctx, test.username, "pw1")

			// Assert
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("CreateLocal() error = %v, want %v", err, test.wantErr)
			}
			if test.wantErr != nil {
				return
			}
			if account.ID == "" {
				t.Error("account ID should be generated")
			}
			if !account.HasLocalCredential() {
				t.Fatal("account should hold a local credential")
			}
			if *account.PasswordHash == "pw1" {
				t.Error("password must be stored hashed")
			}
			if len(account.Secrets) != 0 {
				t.Errorf("new account should have no secrets; got %v", account.Secrets)
			}
		})
	}
}

// Requirement: A duplicate registration that slips past the pre-check is still
// rejected by the store.
func TestIdentityStore_CreateLocal_StoreConflict(t *testing.T) {
	// Arrange
	env := newTestEnv(nil)
	env.storage.createAccountErr = core.ErrDuplicateUsername

	// Act
	_, err := env.identities.CreateLocal(context.Background(), "bob", "pw")

	// Assert
	if !errors.Is(err, core.ErrDuplicateUsername) {
		t.Errorf("CreateLocal() error = %v, want ErrDuplicateUsername", err)
	}
}

// Requirement: Exactly one account exists per (provider, subject).
func TestIdentityStore_FindOrCreateFederated(t *testing.T) {
	// Arrange
	env := newTestEnv(nil)
	ctx := context.Background()

	// Act
	first, err := env.identities.FindOrCreateFederated(ctx, "google", "g-123", "Gina")
	if err != nil {
		t.Fatalf("first FindOrCreateFederated() error = %v", err)
	}
	second, err := env.identities.FindOrCreateFederated(ctx, "google", "g-123", "Gina Renamed")
	if err != nil {
		t.Fatalf("second FindOrCreateFederated() error = %v", err)
	}
	other, err := env.identities.FindOrCreateFederated(ctx, "facebook", "g-123", "Fay")
	if err != nil {
		t.Fatalf("facebook FindOrCreateFederated() error = %v", err)
	}

	// Assert
	if first.ID != second.ID {
		t.Errorf("same subject should resolve to one account; got %q and %q", first.ID, second.ID)
	}
	if other.ID == first.ID {
		t.Error("same subject id at another provider must be a different account")
	}
	if first.FederatedIdentities["google"] != "g-123" {
		t.Errorf("account should record google subject; got %v", first.FederatedIdentities)
	}
	if first.HasLocalCredential() {
		t.Error("federated account must not hold a local credential")
	}
	if got := env.storage.accountCount(); got != 2 {
		t.Errorf("storage should hold 2 accounts; got %d", got)
	}
}

// Requirement: Concurrent first-time resolutions of one subject create exactly
// one account and every caller observes it.
func TestIdentityStore_FindOrCreateFederated_Concurrent(t *testing.T) {
	const callers = 8

	// Arrange
	env := newTestEnv(nil)
	var arrived sync.WaitGroup
	arrived.Add(callers)
	// hold every caller at the insert until all have missed the lookup
	env.storage.createFederatedHook = func() {
		arrived.Done()
		arrived.Wait()
	}

	// Act
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := env.identities.FindOrCreateFederated(context.Background(), "google", "g-race", "Racer")
			errs[i] = err
			if a != nil {
				ids[i] = a.ID
			}
		}(i)
	}
	wg.Wait()

	// Assert
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d error = %v", i, err)
		}
		if ids[i] != ids[0] {
			t.Errorf("caller %d got account %q, want %q", i, ids[i], ids[0])
		}
	}
	if env.storage.federatedCreates != 1 {
		t.Errorf("exactly one account should be created; got %d", env.storage.federatedCreates)
	}
}

// Requirement: FindOrCreateFederated rejects profiles without a subject.
func TestIdentityStore_FindOrCreateFederated_MissingSubject(t *testing.T) {
	env := newTestEnv(nil)

	_, err := env.identities.FindOrCreateFederated(context.Background(), "google", "", "x")

	if !errors.Is(err, core.ErrProviderProtocol) {
		t.Errorf("error = %v, want ErrProviderProtocol", err)
	}
}

// Requirement: Secrets append in order, allow duplicates, and remove only the
// first match; removing absent text is a no-op.
func TestIdentityStore_Secrets(t *testing.T) {
	// Arrange
	env := newTestEnv(nil)
	ctx := context.Background()
	account, err := env.identities.CreateLocal(ctx, "alice", "pw1")
	if err != nil {
		t.Fatalf("CreateLocal() error = %v", err)
	}

	// Act
	for _, s := range []string{"a", "b", "a"} {
		if err := env.identities.AppendSecret(ctx, account.ID, s); err != nil {
			t.Fatalf("AppendSecret(%q) error = %v", s, err)
		}
	}
	if err := env.identities.RemoveSecret(ctx, account.ID, "a"); err != nil {
		t.Fatalf("RemoveSecret() error = %v", err)
	}
	if err := env.identities.RemoveSecret(ctx, account.ID, "missing"); err != nil {
		t.Fatalf("RemoveSecret(missing) error = %v", err)
	}

	// Assert
	got, err := env.identities.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	want := []string{"b", "a"}
	if len(got.Secrets) != len(want) {
		t.Fatalf("secrets = %v, want %v", got.Secrets, want)
	}
	for i := range want {
		if got.Secrets[i] != want[i] {
			t.Errorf("secrets[%d] = %q, want %q", i, got.Secrets[i], want[i])
		}
	}

	if err := env.identities.AppendSecret(ctx, account.ID, ""); !errors.Is(err, core.ErrEmptySecret) {
		t.Errorf("AppendSecret(\"\") error = %v, want ErrEmptySecret", err)
	}
}

// Requirement: ListWithSecrets omits accounts with no secrets.
func TestIdentityStore_ListWithSecrets(t *testing.T) {
	// Arrange
	env := newTestEnv(nil)
	ctx := context.Background()
	alice, _ := env.identities.CreateLocal(ctx, "alice", "pw1")
	if _, err := env.identities.CreateLocal(ctx, "bob", "pw2"); err != nil {
		t.Fatalf("CreateLocal(bob) error = %v", err)
	}
	if err := env.identities.AppendSecret(ctx, alice.ID, "hi"); err != nil {
		t.Fatalf("AppendSecret() error = %v", err)
	}

	// Act
	accounts, err := env.identities.ListWithSecrets(ctx)

	// Assert
	if err != nil {
		t.Fatalf("ListWithSecrets() error = %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != alice.ID {
		t.Errorf("ListWithSecrets() should return only alice; got %d accounts", len(accounts))
	}
}
