package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/lborres/whisper/core"
)

// ProviderSource looks up a configured identity provider by name
type ProviderSource interface {
	Provider(name string) (core.OAuthProvider, error)
}

// StateCodec issues and checks the opaque state value carried through a
// provider round trip
type StateCodec interface {
	Issue(provider string) (string, error)
	Verify(state, provider string) error
}

// FederatedResolver drives a provider login from redirect to Account
type FederatedResolver struct {
	providers  ProviderSource
	state      StateCodec
	identities *IdentityStore
	logger     *slog.Logger
	group      singleflight.Group
}

func NewFederatedResolver(providers ProviderSource, state StateCodec, identities *IdentityStore, logger *slog.Logger) *FederatedResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &FederatedResolver{
		providers:  providers,
		state:      state,
		identities: identities,
		logger:     logger,
	}
}

// Start returns an Initiated flow holding the provider's authorization URL
func (r *FederatedResolver) Start(provider string) (*core.OAuthFlow, error) {
	p, err := r.providers.Provider(provider)
	if err != nil {
		return nil, err
	}

	state, err := r.state.Issue(p.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to issue oauth state: %w", err)
	}

	return &core.OAuthFlow{
		Provider:    p.Name(),
		State:       core.FlowInitiated,
		StateToken:  state,
		RedirectURL: p.AuthCodeURL(state),
	}, nil
}

// Complete handles the provider's callback. The returned flow is always
// terminal when the provider is known. Denied flows return ErrDenied,
// protocol failures ErrProviderProtocol; the detail is only logged.
func (r *FederatedResolver) Complete(ctx context.Context, provider string, params core.CallbackParams, expectedState string) (*core.OAuthFlow, error) {
	p, err := r.providers.Provider(provider)
	if err != nil {
		return nil, err
	}

	flow := &core.OAuthFlow{
		Provider:   p.Name(),
		State:      core.FlowCallbackReceived,
		StateToken: params.State,
	}

	if params.Denied() {
		flow.State = core.FlowDenied
		flow.Err = core.ErrDenied
		r.logger.InfoContext(ctx, "federated sign-in denied", slog.String("provider", flow.Provider))
		return flow, core.ErrDenied
	}
	if params.Error != "" {
		return r.fail(ctx, flow, fmt.Errorf("provider returned %q: %s", params.Error, params.ErrorDescription))
	}

	if params.State == "" || subtle.ConstantTimeCompare([]byte(params.State), []byte(expectedState)) != 1 {
		return r.fail(ctx, flow, core.ErrInvalidState)
	}
	if err := r.state.Verify(params.State, flow.Provider); err != nil {
		return r.fail(ctx, flow, fmt.Errorf("%w: %v", core.ErrInvalidState, err))
	}
	if params.Code == "" {
		return r.fail(ctx, flow, errors.New("callback without code"))
	}

	profile, err := p.Exchange(ctx, params.Code)
	if err != nil {
		return r.fail(ctx, flow, fmt.Errorf("exchange: %w", err))
	}

	account, err := r.CompleteOAuthFlow(ctx, flow.Provider, profile)
	if err != nil {
		if errors.Is(err, core.ErrProviderProtocol) {
			return r.fail(ctx, flow, errors.New("profile without subject id"))
		}
		flow.State = core.FlowFailed
		flow.Err = err
		return flow, err
	}

	flow.State = core.FlowResolved
	flow.Account = account
	return flow, nil
}

// CompleteOAuthFlow maps a provider profile to its Account, creating one on
// first sight. Concurrent calls for the same subject share one lookup.
func (r *FederatedResolver) CompleteOAuthFlow(ctx context.Context, provider string, profile *core.ProviderProfile) (*core.Account, error) {
	if profile == nil || profile.SubjectID == "" {
		return nil, core.ErrProviderProtocol
	}

	key := provider + "\x00" + profile.SubjectID
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		// Callers share this result, so one caller going away must not abort it
		ctx := context.WithoutCancel(ctx)
		return r.identities.FindOrCreateFederated(ctx, provider, profile.SubjectID, profile.DisplayName)
	})
	if err != nil {
		return nil, err
	}
	return v.(*core.Account), nil
}

func (r *FederatedResolver) fail(ctx context.Context, flow *core.OAuthFlow, cause error) (*core.OAuthFlow, error) {
	r.logger.WarnContext(ctx, "federated sign-in failed",
		slog.String("provider", flow.Provider),
		slog.Any("error", cause),
	)
	flow.State = core.FlowFailed
	flow.Err = core.ErrProviderProtocol
	return flow, core.ErrProviderProtocol
}
