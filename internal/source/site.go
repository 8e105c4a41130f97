package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/backgroundcheck/breachmon/internal/config"
	"github.com/backgroundcheck/breachmon/internal/hasher"
	"github.com/backgroundcheck/breachmon/internal/model"
	"github.com/backgroundcheck/breachmon/internal/tor"
)

// SiteAdapter fetches one page from a paste site or hidden service and
// extracts disclosures from it. Paste-site and dark-web sources share
// this implementation; they differ only in transport and preflight.
type SiteAdapter struct {
	id  string
	cfg config.SourceConfig

	client    *http.Client
	extract   extractor
	userAgent string
	maxBody   int64

	// preflight runs before each fetch. Dark-web adapters use it to
	// verify the Tor proxy so an unavailable proxy surfaces as a
	// distinct degraded condition instead of an opaque dial failure.
	preflight func(ctx context.Context) error
}

// SiteOption configures a SiteAdapter.
type SiteOption func(*SiteAdapter)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) SiteOption {
	return func(a *SiteAdapter) {
		a.client = c
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) SiteOption {
	return func(a *SiteAdapter) {
		a.userAgent = ua
	}
}

// WithMaxBodySize caps how many response bytes are read per fetch.
func WithMaxBodySize(n int64) SiteOption {
	return func(a *SiteAdapter) {
		a.maxBody = n
	}
}

// NewPasteSite creates an adapter for a clearnet paste or forum source.
func NewPasteSite(id string, cfg config.SourceConfig, h *hasher.Hasher, opts ...SiteOption) *SiteAdapter {
	a := &SiteAdapter{
		id:  id,
		cfg: cfg,
		client: &http.Client{
			Timeout: config.DefaultHTTPTimeout,
		},
		extract: extractor{
			hasher:    h,
			severity:  cfg.SeverityScore,
			dataTypes: cfg.DataTypes,
		},
		userAgent: config.DefaultUserAgent,
		maxBody:   config.DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewDarkweb creates an adapter for a hidden-service source routed
// through the given Tor client.
func NewDarkweb(id string, cfg config.SourceConfig, h *hasher.Hasher, torClient *tor.Client, opts ...SiteOption) *SiteAdapter {
	a := NewPasteSite(id, cfg, h, opts...)
	if a.client == nil || a.client.Transport == nil {
		a.client = torClient.HTTPClient()
	}
	a.preflight = torClient.Ping
	return a
}

// SourceID implements Adapter.
func (a *SiteAdapter) SourceID() string {
	return a.id
}

// Type implements Adapter.
func (a *SiteAdapter) Type() model.SourceType {
	return a.cfg.Type
}

// MinInterval implements Adapter.
func (a *SiteAdapter) MinInterval() time.Duration {
	return a.cfg.MinInterval
}

// FetchBatch implements Adapter. All failures come back as *FetchError
// carrying the source ID.
func (a *SiteAdapter) FetchBatch(ctx context.Context) ([]model.RawDisclosure, error) {
	if a.preflight != nil {
		if err := a.preflight(ctx); err != nil {
			return nil, &FetchError{SourceID: a.id, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.URL, nil)
	if err != nil {
		return nil, &FetchError{SourceID: a.id, Err: err}
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &FetchError{SourceID: a.id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			SourceID: a.id,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	disclosures, err := a.extract.extract(io.LimitReader(resp.Body, a.maxBody))
	if err != nil {
		return nil, &FetchError{SourceID: a.id, Err: err}
	}
	if len(disclosures) == 0 {
		return nil, &FetchError{SourceID: a.id, Err: ErrEmptyBatch}
	}
	return disclosures, nil
}
