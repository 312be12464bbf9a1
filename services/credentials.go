package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/lborres/whisper/core"
	"github.com/lborres/whisper/pkg/crypto"
)

// dummyVerifier is implemented by hashers that can spend a verification's
// worth of work without a stored hash
type dummyVerifier interface {
	VerifyDummy(password string)
}

// CredentialVerifier checks a username/password pair against the stored hash
type CredentialVerifier struct {
	db             core.AccountStorage
	passwordHasher crypto.PasswordHandler
}

func NewCredentialVerifier(db core.AccountStorage, passwordHasher crypto.PasswordHandler) *CredentialVerifier {
	return &CredentialVerifier{db: db, passwordHasher: passwordHasher}
}

// Verify returns the account for valid credentials. Unknown usernames,
// accounts without a local credential and wrong passwords all fail with the
// same ErrInvalidCredentials.
func (v *CredentialVerifier) Verify(ctx context.Context, username, rawPassword string) (*core.Account, error) {
	// Step 1: Find the account by username
	account, err := v.db.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			v.burn(rawPassword)
			return nil, core.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if !account.HasLocalCredential() {
		v.burn(rawPassword)
		return nil, core.ErrInvalidCredentials
	}

	// Step 2: Verify the password
	valid, err := v.passwordHasher.Verify(rawPassword, *account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, core.ErrInvalidCredentials
	}

	return account, nil
}

func (v *CredentialVerifier) burn(rawPassword string) {
	if d, ok := v.passwordHasher.(dummyVerifier); ok {
		d.VerifyDummy(rawPassword)
	}
}
