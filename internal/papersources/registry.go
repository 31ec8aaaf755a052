package papersources

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Credentials maps credential names to their configured values.
type Credentials map[domain.Credential]string

// Has reports whether a non-blank value is configured for c.
// CredentialNone is always present.
func (c Credentials) Has(cred domain.Credential) bool {
	if cred == domain.CredentialNone {
		return true
	}
	return strings.TrimSpace(c[cred]) != ""
}

// Factory builds a provider client from the configured credentials.
type Factory func(creds Credentials) (Provider, error)

// Registry holds the client factory for each provider variant. The active
// set is built from it once at startup; nothing mutates the set afterwards.
type Registry struct {
	mu        sync.RWMutex
	factories map[domain.Provider]Factory
	logger    zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		factories: make(map[domain.Provider]Factory),
		logger:    logger.With().Str("component", "provider_registry").Logger(),
	}
}

// Register sets the factory for provider, replacing any previous one.
func (r *Registry) Register(provider domain.Provider, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = factory
}

// Registered returns the providers that have a factory, in canonical order.
func (r *Registry) Registered() []domain.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Provider, 0, len(r.factories))
	for _, p := range domain.AllProviders() {
		if _, ok := r.factories[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Active builds the active provider set. Providers without a registered
// client or whose required credential is missing are excluded and never
// attempted. A factory error aborts startup.
func (r *Registry) Active(creds Credentials) (*ActiveSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var providers []Provider
	for _, name := range domain.AllProviders() {
		factory, ok := r.factories[name]
		if !ok {
			r.logger.Debug().Str("provider", string(name)).Msg("no client registered, skipping")
			continue
		}

		if cred := name.RequiredCredential(); !creds.Has(cred) {
			r.logger.Warn().
				Str("provider", string(name)).
				Str("credential", string(cred)).
				Msg("credential not configured, provider excluded")
			continue
		}

		p, err := factory(creds)
		if err != nil {
			return nil, fmt.Errorf("create %s client: %w", name.DisplayName(), err)
		}
		providers = append(providers, p)
	}

	set := NewActiveSet(providers...)
	r.logger.Info().Strs("providers", set.NameStrings()).Msg("active provider set built")
	return set, nil
}

// ActiveSet is the immutable set of providers a search fans out to.
type ActiveSet struct {
	providers []Provider
}

// NewActiveSet creates an active set from providers, dropping nils.
func NewActiveSet(providers ...Provider) *ActiveSet {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			out = append(out, p)
		}
	}
	return &ActiveSet{providers: out}
}

// Providers returns the providers in the set.
func (s *ActiveSet) Providers() []Provider {
	out := make([]Provider, len(s.providers))
	copy(out, s.providers)
	return out
}

// Get returns the provider with the given name, if active.
func (s *ActiveSet) Get(name domain.Provider) (Provider, bool) {
	for _, p := range s.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Len returns the number of active providers.
func (s *ActiveSet) Len() int {
	return len(s.providers)
}

// NameStrings returns the provider names in the set.
func (s *ActiveSet) NameStrings() []string {
	out := make([]string, len(s.providers))
	for i, p := range s.providers {
		out[i] = string(p.Name())
	}
	return out
}
