// Package pdf fetches full-text PDFs for papers. Downloader implements
// content.Acquirer.
package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/content"
	"github.com/helixir/paper-search-service/internal/domain"
)

// Sentinel errors for PDF download operations.
var (
	// ErrNotPDF is returned when the response is neither labelled nor shaped as a PDF.
	ErrNotPDF = errors.New("pdf: response is not a PDF")
	// ErrTooLarge is returned when the file exceeds the maximum allowed size.
	ErrTooLarge = errors.New("pdf: file exceeds maximum size")
	// ErrTooSmall is returned when the body is too short to be a real document.
	ErrTooSmall = errors.New("pdf: file is too small")
	// ErrDownloadFailed is returned when the download fails due to network or HTTP errors.
	ErrDownloadFailed = errors.New("pdf: download failed")
	// ErrSSRF is returned when the URL resolves to a private/internal network address.
	ErrSSRF = errors.New("pdf: request to private network denied")
)

var pdfMagic = []byte("%PDF")

// Config holds downloader configuration.
type Config struct {
	// Timeout is the per-URL request timeout. Default: 60 seconds.
	Timeout time.Duration
	// MaxSize is the maximum file size in bytes. Default: 50MB.
	MaxSize int64
	// MinSize is the minimum accepted file size. Default: content.MinContentBytes.
	MinSize int64
	// UserAgent is the User-Agent header.
	UserAgent string
	// AllowPrivateNetworks disables SSRF private-IP checks. This MUST only be
	// set to true in test environments. Production code must never set this.
	AllowPrivateNetworks bool
}

// Downloader downloads PDFs from URLs.
type Downloader struct {
	client               *http.Client
	maxSize              int64
	minSize              int64
	userAgent            string
	allowPrivateNetworks bool // For testing only; never enable in production.
	logger               zerolog.Logger
}

// NewDownloader creates a new Downloader with the given configuration.
func NewDownloader(cfg Config, logger zerolog.Logger) *Downloader {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 50 * 1024 * 1024
	}
	if cfg.MinSize == 0 {
		cfg.MinSize = content.MinContentBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (compatible; Helixir-PaperSearch/1.0; +https://helixir.io/bot)"
	}

	d := &Downloader{
		maxSize:              cfg.MaxSize,
		minSize:              cfg.MinSize,
		userAgent:            cfg.UserAgent,
		allowPrivateNetworks: cfg.AllowPrivateNetworks,
		logger:               logger.With().Str("component", "pdf_downloader").Logger(),
	}

	d.client = &http.Client{
		Timeout: cfg.Timeout,
		// Each redirect hop is re-checked so an open redirect cannot reach
		// an internal address.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("%w: too many redirects", ErrSSRF)
			}
			if !d.allowPrivateNetworks {
				if err := validateURLNotPrivate(req.URL.String()); err != nil {
					return err
				}
			}
			return nil
		},
	}

	return d
}

// isPrivateIP returns true if the IP address is in a private, loopback, or
// otherwise non-routable range. Covers both IPv4 and IPv6 private ranges.
func isPrivateIP(ip net.IP) bool {
	// IPv4 private ranges.
	privateRanges := []struct{ start, end net.IP }{
		{net.ParseIP("10.0.0.0"), net.ParseIP("10.255.255.255")},
		{net.ParseIP("172.16.0.0"), net.ParseIP("172.31.255.255")},
		{net.ParseIP("192.168.0.0"), net.ParseIP("192.168.255.255")},
		{net.ParseIP("169.254.0.0"), net.ParseIP("169.254.255.255")},
		// IPv6 Unique Local Addresses (fc00::/7).
		{net.ParseIP("fc00::"), net.ParseIP("fdff:ffff:ffff:ffff:ffff:ffff:ffff:ffff")},
		// IPv6 link-local (fe80::/10).
		{net.ParseIP("fe80::"), net.ParseIP("febf:ffff:ffff:ffff:ffff:ffff:ffff:ffff")},
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	// IPv6 loopback (::1) is already covered by ip.IsLoopback() above.
	for _, r := range privateRanges {
		if bytesInRange(ip.To16(), r.start.To16(), r.end.To16()) {
			return true
		}
	}
	return false
}

func bytesInRange(ip, lo, hi []byte) bool {
	for i := range ip {
		if ip[i] < lo[i] {
			return false
		}
		if ip[i] > hi[i] {
			return false
		}
	}
	return true
}

// validateURLNotPrivate resolves the hostname and rejects private IPs.
func validateURLNotPrivate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSSRF, err)
	}

	// Reject non-HTTP(S) schemes to prevent file://, gopher://, etc.
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		// allowed
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrSSRF, parsed.Scheme)
	}

	host := parsed.Hostname()
	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("%w: DNS lookup failed for %s: %w", ErrDownloadFailed, host, err)
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("%w: %s resolves to private address %s", ErrSSRF, host, ipStr)
		}
	}
	return nil
}

// CandidateURLs lists the locations tried for a paper, most specific first.
func CandidateURLs(p *domain.Paper) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	add(p.PDFURL)
	if id := strings.TrimPrefix(p.ProviderID(domain.ProviderArXiv), "arXiv:"); id != "" {
		add("https://arxiv.org/pdf/" + id)
	}
	if pmc := strings.ToUpper(p.ProviderID(domain.ProviderEuropePMC)); strings.HasPrefix(pmc, "PMC") {
		add("https://europepmc.org/articles/" + pmc + "?pdf=render")
	}
	if doi := strings.TrimSpace(p.DOI); doi != "" {
		add("https://doi.org/" + doi)
	}
	return out
}

// Acquire tries each candidate URL in turn and returns the first valid PDF.
// When none succeeds the error wraps domain.ErrContentUnavailable.
func (d *Downloader) Acquire(ctx context.Context, p *domain.Paper) (*content.Content, error) {
	urls := CandidateURLs(p)
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no candidate URL", domain.ErrContentUnavailable)
	}

	var errs []error
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := d.Download(ctx, u)
		if err == nil {
			return c, nil
		}
		d.logger.Debug().Err(err).Str("url", u).Msg("candidate URL failed")
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", domain.ErrContentUnavailable, errors.Join(errs...))
}

// Download fetches a PDF from the given URL.
// Returns ErrNotPDF if the body is neither labelled application/pdf nor
// starts with the PDF signature, ErrTooLarge or ErrTooSmall on size bounds,
// ErrSSRF for private addresses, and ErrDownloadFailed for transport and
// non-2xx responses.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*content.Content, error) {
	if !d.allowPrivateNetworks {
		if err := validateURLNotPrivate(rawURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/pdf, */*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrDownloadFailed, resp.StatusCode)
	}

	// Read one extra byte to detect oversize bodies.
	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrDownloadFailed, err)
	}
	if int64(len(body)) > d.maxSize {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrTooLarge, d.maxSize)
	}

	contentType := resp.Header.Get("Content-Type")
	labelled := strings.Contains(strings.ToLower(contentType), "application/pdf")
	if !labelled && !bytes.HasPrefix(body, pdfMagic) {
		return nil, fmt.Errorf("%w: Content-Type is %q", ErrNotPDF, contentType)
	}
	if int64(len(body)) < d.minSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooSmall, len(body))
	}

	hash := sha256.Sum256(body)
	return &content.Content{
		Data:        body,
		ContentType: "application/pdf",
		SHA256:      hex.EncodeToString(hash[:]),
		SourceURL:   resp.Request.URL.String(),
	}, nil
}
