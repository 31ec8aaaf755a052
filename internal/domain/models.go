// Package domain provides domain models and shared errors for the Paper Search Service.
package domain

// Provider identifies one of the external academic search sources.
// The set is fixed; availability at runtime depends on configured credentials.
type Provider string

const (
	ProviderArXiv           Provider = "arxiv"
	ProviderSemanticScholar Provider = "semantic_scholar"
	ProviderOpenAlex        Provider = "openalex"
	ProviderCORE            Provider = "core"
	ProviderUnpaywall       Provider = "unpaywall"
	ProviderPubMed          Provider = "pubmed"
	ProviderEuropePMC       Provider = "europe_pmc"
	ProviderDBLP            Provider = "dblp"
	ProviderBioRxiv         Provider = "biorxiv"
	ProviderDOAJ            Provider = "doaj"
	ProviderBASE            Provider = "base"
	ProviderCrossref        Provider = "crossref"
)

// AllProviders returns every known provider in a stable order.
func AllProviders() []Provider {
	return []Provider{
		ProviderArXiv,
		ProviderSemanticScholar,
		ProviderOpenAlex,
		ProviderCORE,
		ProviderUnpaywall,
		ProviderPubMed,
		ProviderEuropePMC,
		ProviderDBLP,
		ProviderBioRxiv,
		ProviderDOAJ,
		ProviderBASE,
		ProviderCrossref,
	}
}

// DisplayName returns the human-readable provider name.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderArXiv:
		return "arXiv"
	case ProviderSemanticScholar:
		return "Semantic Scholar"
	case ProviderOpenAlex:
		return "OpenAlex"
	case ProviderCORE:
		return "CORE"
	case ProviderUnpaywall:
		return "Unpaywall"
	case ProviderPubMed:
		return "PubMed"
	case ProviderEuropePMC:
		return "Europe PMC"
	case ProviderDBLP:
		return "DBLP"
	case ProviderBioRxiv:
		return "bioRxiv"
	case ProviderDOAJ:
		return "DOAJ"
	case ProviderBASE:
		return "BASE Search"
	case ProviderCrossref:
		return "Crossref"
	default:
		return string(p)
	}
}

// IsValid reports whether p is one of the known providers.
func (p Provider) IsValid() bool {
	for _, known := range AllProviders() {
		if p == known {
			return true
		}
	}
	return false
}

// Credential names a secret a provider needs before it may be queried.
type Credential string

const (
	CredentialNone           Credential = ""
	CredentialCOREAPIKey     Credential = "core_api_key"
	CredentialUnpaywallEmail Credential = "unpaywall_email"
)

// RequiredCredential returns the credential that must be present for the
// provider to join the active set, or CredentialNone.
func (p Provider) RequiredCredential() Credential {
	switch p {
	case ProviderCORE:
		return CredentialCOREAPIKey
	case ProviderUnpaywall:
		return CredentialUnpaywallEmail
	default:
		return CredentialNone
	}
}

// SearchStatus is the terminal status reported for a search run.
type SearchStatus string

const (
	SearchStatusCompleted SearchStatus = "COMPLETED"
	SearchStatusFailed    SearchStatus = "FAILED"
)

// SearchStrategy is reported on every response so downstream consumers can
// tell which pipeline produced the result set.
const SearchStrategy = "multi_source_modular"
