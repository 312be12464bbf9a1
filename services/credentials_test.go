package services

import (
	"context"
	"errors"
	"testing"

	"github.com/lborres/whisper/core"
)

// Requirement: Verify returns the account for valid credentials and one
// indistinguishable error for every kind of failure.
func TestCredentialVerifier_Verify(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{name: "valid credentials", username: "alice", password: "pw1"},
		{name: "wrong password", username: "alice", password: "pw2", wantErr: core.ErrInvalidCredentials},
		{name: "unknown username", username: "mallory", password: "pw1", wantErr: core.ErrInvalidCredentials},
		{name: "empty password", username: "alice", password: "", wantErr: core.ErrInvalidCredentials},
	}

	for _, test := range tests {
		test := test // capture range variable
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			env := newTestEnv(nil)
			ctx := context.Background()
			created, err := env.identities.CreateLocal(ctx, "alice", "pw1")
			if err != nil {
				t.Fatalf("CreateLocal() error = %v", err)
			}
			verifier := NewCredentialVerifier(env.storage, cheapHasher())

			// Act
			account, err := verifier.Verify(ctx, test.username, test.password)

			// Assert
			if test.wantErr != nil {
				if err != test.wantErr {
					t.Fatalf("Verify() error = %v, want exactly %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if account.ID != created.ID {
				t.Errorf("Verify() account = %q, want %q", account.ID, created.ID)
			}
		})
	}
}

// Requirement: Accounts without a local credential cannot sign in by password.
func TestCredentialVerifier_Verify_FederatedOnlyAccount(t *testing.T) {
	// Arrange
	env := newTestEnv(nil)
	ctx := context.Background()
	account, err := env.identities.FindOrCreateFederated(ctx, "google", "g-1", "Gina")
	if err != nil {
		t.Fatalf("FindOrCreateFederated() error = %v", err)
	}
	// give the federated account a username but no hash
	env.storage.mu.Lock()
	name := "gina"
	env.storage.accounts[account.ID].Username = &name
	env.storage.usernames[name] = account.ID
	env.storage.mu.Unlock()

	verifier := NewCredentialVerifier(env.storage, cheapHasher())

	// Act
	_, err = verifier.Verify(ctx, "gina", "anything")

	// Assert
	if err != core.ErrInvalidCredentials {
		t.Errorf("Verify() error = %v, want ErrInvalidCredentials", err)
	}
}

// Requirement: Storage failures are not reported as bad credentials.
func TestCredentialVerifier_Verify_StorageError(t *testing.T) {
	// Arrange
	env := newTestEnv(nil)
	boom := errors.New("db down")
	env.storage.getAccountErr = boom
	verifier := NewCredentialVerifier(env.storage, cheapHasher())

	// Act
	_, err := verifier.Verify(context.Background(), "alice", "pw1")

	// Assert
	if !errors.Is(err, boom) {
		t.Errorf("Verify() error = %v, want wrapped %v", err, boom)
	}
	if errors.Is(err, core.ErrInvalidCredentials) {
		t.Error("storage errors must not look like invalid credentials")
	}
}
