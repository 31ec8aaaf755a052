package papersources

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
)

type fakeProvider struct {
	name  domain.Provider
	calls atomic.Int32
}

func (f *fakeProvider) Name() domain.Provider { return f.name }

func (f *fakeProvider) Search(_ context.Context, _ string, _ int, _ Filters) ([]*domain.Paper, error) {
	f.calls.Add(1)
	return nil, nil
}

func factoryFor(name domain.Provider, built *[]domain.Provider) Factory {
	return func(Credentials) (Provider, error) {
		*built = append(*built, name)
		return &fakeProvider{name: name}, nil
	}
}

func TestCredentials_Has(t *testing.T) {
	creds := Credentials{domain.CredentialCOREAPIKey: "key", domain.CredentialUnpaywallEmail: "  "}

	assert.True(t, creds.Has(domain.CredentialNone))
	assert.True(t, creds.Has(domain.CredentialCOREAPIKey))
	assert.False(t, creds.Has(domain.CredentialUnpaywallEmail))
	assert.True(t, Credentials(nil).Has(domain.CredentialNone))
}

func TestRegistry_ActiveExcludesMissingCredentials(t *testing.T) {
	var built []domain.Provider
	r := NewRegistry(zerolog.Nop())
	r.Register(domain.ProviderOpenAlex, factoryFor(domain.ProviderOpenAlex, &built))
	r.Register(domain.ProviderCORE, factoryFor(domain.ProviderCORE, &built))
	r.Register(domain.ProviderArXiv, factoryFor(domain.ProviderArXiv, &built))

	set, err := r.Active(Credentials{})
	require.NoError(t, err)

	assert.Equal(t, []string{"arxiv", "openalex"}, set.NameStrings())
	assert.NotContains(t, built, domain.ProviderCORE, "excluded providers are never constructed")
}

func TestRegistry_ActiveIncludesCredentialedProvider(t *testing.T) {
	var built []domain.Provider
	r := NewRegistry(zerolog.Nop())
	r.Register(domain.ProviderCORE, factoryFor(domain.ProviderCORE, &built))
	r.Register(domain.ProviderArXiv, factoryFor(domain.ProviderArXiv, &built))

	set, err := r.Active(Credentials{domain.CredentialCOREAPIKey: "secret"})
	require.NoError(t, err)

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"arxiv", "core"}, set.NameStrings())

	p, ok := set.Get(domain.ProviderCORE)
	require.True(t, ok)
	assert.Equal(t, domain.ProviderCORE, p.Name())

	_, ok = set.Get(domain.ProviderPubMed)
	assert.False(t, ok)
}

func TestRegistry_FactoryErrorAborts(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.Register(domain.ProviderArXiv, func(Credentials) (Provider, error) {
		return nil, errors.New("bad config")
	})

	_, err := r.Active(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arXiv")
	assert.Contains(t, err.Error(), "bad config")
}

func TestRegistry_Registered(t *testing.T) {
	var built []domain.Provider
	r := NewRegistry(zerolog.Nop())
	r.Register(domain.ProviderCrossref, factoryFor(domain.ProviderCrossref, &built))
	r.Register(domain.ProviderArXiv, factoryFor(domain.ProviderArXiv, &built))

	assert.Equal(t, []domain.Provider{domain.ProviderArXiv, domain.ProviderCrossref}, r.Registered())
	assert.Empty(t, built)
}

func TestActiveSet_ProvidersIsACopy(t *testing.T) {
	a := &fakeProvider{name: domain.ProviderArXiv}
	set := NewActiveSet(a, nil)

	got := set.Providers()
	require.Len(t, got, 1)
	got[0] = &fakeProvider{name: domain.ProviderDBLP}

	assert.Equal(t, []string{"arxiv"}, set.NameStrings())
}
