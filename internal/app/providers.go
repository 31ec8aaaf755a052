package app

import (
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/config"
	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
	"github.com/helixir/paper-search-service/internal/papersources/arxiv"
	"github.com/helixir/paper-search-service/internal/papersources/core"
	"github.com/helixir/paper-search-service/internal/papersources/crossref"
	"github.com/helixir/paper-search-service/internal/papersources/europepmc"
	"github.com/helixir/paper-search-service/internal/papersources/openalex"
	"github.com/helixir/paper-search-service/internal/papersources/pubmed"
	"github.com/helixir/paper-search-service/internal/papersources/semanticscholar"
	"github.com/helixir/paper-search-service/internal/papersources/unpaywall"
	"github.com/helixir/paper-search-service/internal/search"
)

// Credentials collects provider secrets from the configuration.
func Credentials(cfg *config.Config) papersources.Credentials {
	return papersources.Credentials{
		domain.CredentialCOREAPIKey:     cfg.PaperSources.CORE.APIKey,
		domain.CredentialUnpaywallEmail: cfg.PaperSources.UnpaywallEmail,
	}
}

// RegisterProviders registers a client factory for every enabled provider.
func RegisterProviders(registry *papersources.Registry, cfg *config.Config, logger zerolog.Logger) {
	srcs := cfg.PaperSources

	if srcs.ArXiv.Enabled {
		c := srcs.ArXiv
		registry.Register(domain.ProviderArXiv, func(papersources.Credentials) (papersources.Provider, error) {
			return arxiv.New(arxiv.Config{
				BaseURL:   c.BaseURL,
				Timeout:   c.Timeout,
				RateLimit: c.RateLimit,
				BurstSize: c.BurstSize,
			}), nil
		})
	}

	if srcs.SemanticScholar.Enabled {
		c := srcs.SemanticScholar
		registry.Register(domain.ProviderSemanticScholar, func(papersources.Credentials) (papersources.Provider, error) {
			return semanticscholar.NewClient(semanticscholar.Config{
				BaseURL:   c.BaseURL,
				APIKey:    c.APIKey,
				Timeout:   c.Timeout,
				RateLimit: c.RateLimit,
				BurstSize: c.BurstSize,
			}, nil), nil
		})
	}

	if srcs.OpenAlex.Enabled {
		c := srcs.OpenAlex
		registry.Register(domain.ProviderOpenAlex, func(papersources.Credentials) (papersources.Provider, error) {
			return openalex.New(openalex.Config{
				BaseURL:   c.BaseURL,
				Email:     c.Email,
				Timeout:   c.Timeout,
				RateLimit: c.RateLimit,
				BurstSize: c.BurstSize,
			}), nil
		})
	}

	if srcs.CORE.Enabled {
		c := srcs.CORE
		registry.Register(domain.ProviderCORE, func(creds papersources.Credentials) (papersources.Provider, error) {
			client, err := core.New(core.Config{
				BaseURL:   c.BaseURL,
				APIKey:    creds[domain.CredentialCOREAPIKey],
				Timeout:   c.Timeout,
				RateLimit: c.RateLimit,
				BurstSize: c.BurstSize,
			})
			if err != nil {
				return nil, err
			}
			return client, nil
		})
	}

	if srcs.PubMed.Enabled {
		c := srcs.PubMed
		registry.Register(domain.ProviderPubMed, func(papersources.Credentials) (papersources.Provider, error) {
			return pubmed.New(pubmed.Config{
				BaseURL:   c.BaseURL,
				APIKey:    c.APIKey,
				Timeout:   c.Timeout,
				RateLimit: c.RateLimit,
				BurstSize: c.BurstSize,
			}), nil
		})
	}

	if srcs.EuropePMC.Enabled {
		c := srcs.EuropePMC
		registry.Register(domain.ProviderEuropePMC, func(papersources.Credentials) (papersources.Provider, error) {
			return europepmc.New(europepmc.Config{
				BaseURL:   c.BaseURL,
				Provider:  domain.ProviderEuropePMC,
				Timeout:   c.Timeout,
				RateLimit: c.RateLimit,
				BurstSize: c.BurstSize,
			}), nil
		})
	}

	// bioRxiv preprints are searched through Europe PMC.
	if srcs.BioRxiv.Enabled {
		c := srcs.BioRxiv
		registry.Register(domain.ProviderBioRxiv, func(papersources.Credentials) (papersources.Provider, error) {
			return europepmc.New(europepmc.Config{
				BaseURL:   c.BaseURL,
				Provider:  domain.ProviderBioRxiv,
				Timeout:   c.Timeout,
				RateLimit: c.RateLimit,
				BurstSize: c.BurstSize,
			}), nil
		})
	}

	if srcs.Crossref.Enabled {
		c := srcs.Crossref
		registry.Register(domain.ProviderCrossref, func(papersources.Credentials) (papersources.Provider, error) {
			return crossref.New(crossref.Config{
				BaseURL:   c.BaseURL,
				Email:     c.Email,
				Timeout:   c.Timeout,
				RateLimit: c.RateLimit,
				BurstSize: c.BurstSize,
			}), nil
		})
	}

	if srcs.Unpaywall.Enabled {
		c := srcs.Unpaywall
		registry.Register(domain.ProviderUnpaywall, func(creds papersources.Credentials) (papersources.Provider, error) {
			client, err := unpaywall.New(unpaywall.Config{
				BaseURL:   c.BaseURL,
				Email:     creds[domain.CredentialUnpaywallEmail],
				Timeout:   c.Timeout,
				RateLimit: c.RateLimit,
				BurstSize: c.BurstSize,
			})
			if err != nil {
				return nil, err
			}
			return client, nil
		})
	}

	logger.Info().
		Strs("registered", providerNames(registry.Registered())).
		Msg("provider clients registered")
}

// EnrichmentLookups builds the detail lookup chain: OpenAlex by DOI first,
// then arXiv and Semantic Scholar by their own identifiers, then Crossref and
// Unpaywall by DOI. Unpaywall needs the contact email.
func EnrichmentLookups(cfg *config.Config) []search.DetailLookup {
	srcs := cfg.PaperSources
	var lookups []search.DetailLookup

	if srcs.OpenAlex.Enabled {
		oa := openalex.New(openalex.Config{
			BaseURL:   srcs.OpenAlex.BaseURL,
			Email:     srcs.OpenAlex.Email,
			Timeout:   srcs.OpenAlex.Timeout,
			RateLimit: srcs.OpenAlex.RateLimit,
			BurstSize: srcs.OpenAlex.BurstSize,
		})
		lookups = append(lookups, search.NewDOILookup(string(domain.ProviderOpenAlex), oa))
	}
	if srcs.ArXiv.Enabled {
		ax := arxiv.New(arxiv.Config{
			BaseURL:   srcs.ArXiv.BaseURL,
			Timeout:   srcs.ArXiv.Timeout,
			RateLimit: srcs.ArXiv.RateLimit,
			BurstSize: srcs.ArXiv.BurstSize,
		})
		lookups = append(lookups, search.NewProviderIDLookup(domain.ProviderArXiv, ax))
	}
	if srcs.SemanticScholar.Enabled {
		ss := semanticscholar.NewClient(semanticscholar.Config{
			BaseURL:   srcs.SemanticScholar.BaseURL,
			APIKey:    srcs.SemanticScholar.APIKey,
			Timeout:   srcs.SemanticScholar.Timeout,
			RateLimit: srcs.SemanticScholar.RateLimit,
			BurstSize: srcs.SemanticScholar.BurstSize,
		}, nil)
		lookups = append(lookups, search.NewProviderIDLookup(domain.ProviderSemanticScholar, ss))
	}
	if srcs.Crossref.Enabled {
		cr := crossref.New(crossref.Config{
			BaseURL:   srcs.Crossref.BaseURL,
			Email:     srcs.Crossref.Email,
			Timeout:   srcs.Crossref.Timeout,
			RateLimit: srcs.Crossref.RateLimit,
			BurstSize: srcs.Crossref.BurstSize,
		})
		lookups = append(lookups, search.NewDOILookup(string(domain.ProviderCrossref), cr))
	}
	if srcs.Unpaywall.Enabled {
		up, err := unpaywall.New(unpaywall.Config{
			BaseURL:   srcs.Unpaywall.BaseURL,
			Email:     srcs.UnpaywallEmail,
			Timeout:   srcs.Unpaywall.Timeout,
			RateLimit: srcs.Unpaywall.RateLimit,
			BurstSize: srcs.Unpaywall.BurstSize,
		})
		if err == nil {
			lookups = append(lookups, search.NewDOILookup(string(domain.ProviderUnpaywall), up))
		}
	}
	return lookups
}

func providerNames(ps []domain.Provider) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
