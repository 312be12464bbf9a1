package services

import (
	"fmt"

	"github.com/lborres/whisper/core"
)

// Operation ids bound to handlers by HTTP adapters
const (
	OpRegister          = "register"
	OpLogin             = "login"
	OpLogout            = "logout"
	OpLogoutLink        = "logoutLink"
	OpStartOAuth        = "startOAuth"
	OpCompleteOAuth     = "completeOAuth"
	OpGetSession        = "getSession"
	OpListPublicSecrets = "listPublicSecrets"
	OpOwnSecrets        = "ownSecrets"
	OpAddSecret         = "addSecret"
	OpRemoveSecret      = "removeSecret"
)

// BaseEndpoints returns framework-agnostic endpoint specifications
// for every whisper operation.
//
// Protected endpoints must pass the access guard before their handler runs.
// Adapters supply the handler for each OperationID.
func BaseEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:   "/register",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpRegister,
				Description: "Create a local account with username and password",
			},
		},
		{
			Path:   "/login",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpLogin,
				Description: "Sign in with username and password",
			},
		},
		{
			Path:   "/logout",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpLogout,
				Description: "Revoke the current session",
			},
		},
		{
			Path:   "/logout",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpLogoutLink,
				Description: "Revoke the current session from a plain link",
			},
		},
		{
			Path:   "/auth/:provider",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpStartOAuth,
				Description: "Redirect to the identity provider",
			},
		},
		{
			Path:   "/auth/:provider/secrets",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpCompleteOAuth,
				Description: "Identity provider callback",
			},
		},
		{
			Path:      "/session",
			Method:    "GET",
			Protected: true,
			Metadata: core.EndpointMetadata{
				OperationID: OpGetSession,
				Description: "Get the current account and session",
			},
		},
		{
			Path:      "/secrets",
			Method:    "GET",
			Protected: true,
			Metadata: core.EndpointMetadata{
				OperationID: OpListPublicSecrets,
				Description: "List the secrets of every account",
			},
		},
		{
			Path:      "/submit",
			Method:    "GET",
			Protected: true,
			Metadata: core.EndpointMetadata{
				OperationID: OpOwnSecrets,
				Description: "List the caller's own secrets",
			},
		},
		{
			Path:      "/submit",
			Method:    "POST",
			Protected: true,
			Metadata: core.EndpointMetadata{
				OperationID: OpAddSecret,
				Description: "Append a secret to the caller's account",
			},
		},
		{
			Path:      "/submit/delete",
			Method:    "POST",
			Protected: true,
			Metadata: core.EndpointMetadata{
				OperationID: OpRemoveSecret,
				Description: "Remove the first matching secret from the caller's account",
			},
		},
	}
}

// EndpointRegistry manages a collection of framework-agnostic endpoints
// and handles conflict detection for duplicate METHOD:PATH combinations.
type EndpointRegistry struct {
	// endpoints stores all registered endpoints keyed by "METHOD:PATH"
	endpoints map[string]*core.Endpoint
	// order keeps registration order so routes are mounted deterministically
	order []string
}

// NewEndpointRegistry creates a new registry with all base endpoints
// pre-registered.
func NewEndpointRegistry() *EndpointRegistry {
	reg := &EndpointRegistry{
		endpoints: make(map[string]*core.Endpoint),
	}

	// base endpoints are distinct by construction
	_ = reg.registerAll(BaseEndpoints())

	return reg
}

func endpointKey(ep *core.Endpoint) string {
	return fmt.Sprintf("%s:%s", ep.Method, ep.Path)
}

// register adds a single endpoint to the registry with conflict detection.
func (r *EndpointRegistry) register(ep *core.Endpoint) error {
	key := endpointKey(ep)

	if _, exists := r.endpoints[key]; exists {
		return fmt.Errorf("endpoint conflict: %s %s already registered", ep.Method, ep.Path)
	}

	r.endpoints[key] = ep
	r.order = append(r.order, key)
	return nil
}

// registerAll adds a batch of endpoints. If any of them conflicts with a
// registered endpoint or with another in the same batch, none are registered.
func (r *EndpointRegistry) registerAll(endpoints []core.Endpoint) error {
	seen := make(map[string]bool)
	for i := range endpoints {
		ep := &endpoints[i]
		key := endpointKey(ep)

		if _, exists := r.endpoints[key]; exists {
			return fmt.Errorf("endpoint conflict: %s %s already registered", ep.Method, ep.Path)
		}
		if seen[key] {
			return fmt.Errorf("batch contains duplicate endpoint: %s %s", ep.Method, ep.Path)
		}
		seen[key] = true
	}

	for i := range endpoints {
		_ = r.register(&endpoints[i])
	}

	return nil
}

// Endpoints returns all registered endpoints in registration order
func (r *EndpointRegistry) Endpoints() []*core.Endpoint {
	result := make([]*core.Endpoint, 0, len(r.order))
	for _, key := range r.order {
		result = append(result, r.endpoints[key])
	}
	return result
}
