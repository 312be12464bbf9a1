package providers

import (
	"fmt"
	"strings"

	"github.com/lborres/whisper/core"
)

// Registry maps provider names to configured providers
type Registry struct {
	providers map[string]core.OAuthProvider
	names     []string
}

func NewRegistry(ps ...core.OAuthProvider) (*Registry, error) {
	r := &Registry{providers: make(map[string]core.OAuthProvider, len(ps))}
	for _, p := range ps {
		name := strings.ToLower(p.Name())
		if _, exists := r.providers[name]; exists {
			return nil, fmt.Errorf("provider %q registered twice", name)
		}
		r.providers[name] = p
		r.names = append(r.names, name)
	}
	return r, nil
}

// Provider returns the named provider or core.ErrUnknownProvider
func (r *Registry) Provider(name string) (core.OAuthProvider, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, core.ErrUnknownProvider
	}
	return p, nil
}

// Names lists registered providers in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
