package services

import (
	"context"
	"fmt"

	"github.com/lborres/whisper/core"
)

// SecretBoard serves the secrets of authorized accounts. Callers pass the
// account returned by Guard.Authorize; mutations are scoped to its id.
type SecretBoard struct {
	identities *IdentityStore
}

func NewSecretBoard(identities *IdentityStore) *SecretBoard {
	return &SecretBoard{identities: identities}
}

// ListPublic returns every secret of every account that has at least one
func (b *SecretBoard) ListPublic(ctx context.Context, caller *core.Account) ([]core.PublicSecret, error) {
	if caller == nil {
		return nil, core.ErrUnauthenticated
	}

	accounts, err := b.identities.ListWithSecrets(ctx)
	if err != nil {
		return nil, err
	}

	out := []core.PublicSecret{}
	for _, a := range accounts {
		for _, s := range a.Secrets {
			out = append(out, core.PublicSecret{OwnerDisplayName: a.DisplayName, Text: s})
		}
	}
	return out, nil
}

func (b *SecretBoard) Own(ctx context.Context, caller *core.Account) ([]string, error) {
	if caller == nil {
		return nil, core.ErrUnauthenticated
	}
	return b.reload(ctx, caller.ID)
}

func (b *SecretBoard) Add(ctx context.Context, caller *core.Account, text string) ([]string, error) {
	if caller == nil {
		return nil, core.ErrUnauthenticated
	}
	if err := b.identities.AppendSecret(ctx, caller.ID, text); err != nil {
		return nil, err
	}
	return b.reload(ctx, caller.ID)
}

func (b *SecretBoard) Remove(ctx context.Context, caller *core.Account, text string) ([]string, error) {
	if caller == nil {
		return nil, core.ErrUnauthenticated
	}
	if err := b.identities.RemoveSecret(ctx, caller.ID, text); err != nil {
		return nil, err
	}
	return b.reload(ctx, caller.ID)
}

func (b *SecretBoard) reload(ctx context.Context, accountID string) ([]string, error) {
	account, err := b.identities.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload account: %w", err)
	}
	if account.Secrets == nil {
		return []string{}, nil
	}
	return account.Secrets, nil
}
