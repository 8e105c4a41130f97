package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values. Durations are chosen for polite crawling
// of public disclosure sources and a bounded storage window; the privacy
// parameters follow the k-anonymity policy this service enforces.
const (
	// DefaultRetentionWindow bounds how long breach records are kept.
	// 90 days keeps the store current without accumulating a long-term
	// archive of hashed identifiers.
	DefaultRetentionWindow = 90 * 24 * time.Hour

	// DefaultMinAnonymitySize is the minimum k-anonymity set size below
	// which a credential check refuses to disclose anything. 1000 keeps
	// any answer scoped to at least a thousand distinct breach hashes.
	DefaultMinAnonymitySize = 1000

	// DefaultPrefixLength is the anonymity-set key length in hex
	// characters. Ten characters give a 40-bit prefix space.
	DefaultPrefixLength = 10

	// DefaultCleanupInterval is how often the retention scheduler runs.
	DefaultCleanupInterval = time.Hour

	// DefaultCleanupChunkSize bounds how many expired records one delete
	// statement touches, so cleanup never holds a long-lived lock
	// against the whole store.
	DefaultCleanupChunkSize = 500

	// DefaultOrphanGracePeriod is how long a monitoring target may sit
	// on a prefix with zero breach coverage before it is removed.
	DefaultOrphanGracePeriod = 30 * 24 * time.Hour

	// DefaultSourceInterval is the minimum polling interval applied to
	// sources without an explicit override.
	DefaultSourceInterval = 10 * time.Second

	// DefaultSeverityFloor is the severity score at or above which a
	// record counts toward the aggregate breach probability.
	DefaultSeverityFloor = 7

	// DefaultInitialBackoff is the first retry delay after a source
	// adapter failure.
	DefaultInitialBackoff = 5 * time.Second

	// DefaultBackoffMultiplier grows the retry delay after consecutive
	// failures.
	DefaultBackoffMultiplier = 2.0

	// DefaultMaxBackoff caps the retry delay for a persistently failing
	// source.
	DefaultMaxBackoff = 10 * time.Minute

	// DefaultHTTPTimeout applies to each adapter fetch. Generous because
	// the darkweb group fetches through Tor circuits.
	DefaultHTTPTimeout = 120 * time.Second

	// DefaultMaxBodySize truncates adapter responses. Listing pages are
	// small; anything larger is either broken or hostile.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultUserAgent identifies breachmon to the sources it polls.
	DefaultUserAgent = "breachmon/1.0 (+https://github.com/backgroundcheck/breachmon)"

	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorStartupTimeout is how long to wait for the embedded Tor
	// daemon to bootstrap before giving up.
	DefaultTorStartupTimeout = 3 * time.Minute

	// AppName is used for XDG directory paths.
	AppName = "breachmon"
)

// Storage backend names accepted in Config.Backend.
const (
	// BackendSQLite is the embedded default backend.
	BackendSQLite = "sqlite"

	// BackendPostgres is the networked relational backend.
	BackendPostgres = "postgres"
)

// Config holds all runtime configuration for breachmon.
//
// Design decision: a single flat struct rather than nested sub-configs.
// The option count is manageable, and a flat struct keeps flag binding
// and validation in one obvious place.
type Config struct {
	// Backend selects the storage implementation: BackendSQLite or
	// BackendPostgres.
	Backend string

	// DBDir is the directory holding the SQLite database file.
	// Defaults to the XDG data directory.
	DBDir string

	// PostgresDSN is the connection string for the postgres backend.
	// Required when Backend is BackendPostgres.
	PostgresDSN string

	// RetentionWindow is how long ingested breach records are kept.
	// ExpiresAt is always CreatedAt plus this window.
	RetentionWindow time.Duration

	// MinAnonymitySize is the k-anonymity threshold. Checks against a
	// prefix whose set size is below this refuse to disclose anything.
	// The threshold is inclusive: a set of exactly this size complies.
	MinAnonymitySize int

	// PrefixLength is the anonymity-set key length in hex characters.
	PrefixLength int

	// SeverityFloor is the severity score at or above which records
	// count toward the aggregate breach probability.
	SeverityFloor int

	// CleanupInterval is how often the retention scheduler runs.
	CleanupInterval time.Duration

	// CleanupChunkSize bounds per-statement deletion during cleanup.
	CleanupChunkSize int

	// OrphanGracePeriod is how long a monitoring target survives on a
	// prefix with no breach coverage.
	OrphanGracePeriod time.Duration

	// SourcesFilePath points at the YAML sources file. Empty means
	// search the standard locations (see FindSourcesFile).
	SourcesFilePath string

	// Sources holds the per-source configuration loaded from the
	// sources file. Populated by LoadSourcesFile.
	Sources *SourcesFile

	// DefaultSourceInterval is the minimum polling interval for sources
	// without an explicit override.
	DefaultSourceInterval time.Duration

	// RedisAddr, when set, moves rate-limiter state to Redis so several
	// breachmon instances share one politeness budget per source.
	// Empty keeps the in-process limiter.
	RedisAddr string

	// InitialBackoff, BackoffMultiplier, and MaxBackoff parameterize the
	// shared retry policy applied to every failing source adapter.
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration

	// HTTPTimeout applies to each adapter fetch.
	HTTPTimeout time.Duration

	// MaxBodySize truncates adapter responses, in bytes.
	MaxBodySize int64

	// UserAgent is sent with every adapter request.
	UserAgent string

	// TorProxyAddress is the SOCKS5 proxy used by the darkweb adapter
	// group, in "host:port" form.
	TorProxyAddress string

	// UseEmbeddedTor starts an embedded Tor daemon instead of expecting
	// an external proxy at TorProxyAddress.
	UseEmbeddedTor bool

	// TorStartupTimeout bounds embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// Verbose lowers the log level from Info to Debug.
	Verbose bool

	// JSONLogs switches log output from text to JSON.
	JSONLogs bool
}

// New creates a Config with default values. Many defaults are non-zero,
// so a constructor is clearer than relying on zero values and doubles as
// documentation of what the defaults are.
func New() *Config {
	return &Config{
		Backend:               BackendSQLite,
		DBDir:                 XDGDataDir(),
		RetentionWindow:       DefaultRetentionWindow,
		MinAnonymitySize:      DefaultMinAnonymitySize,
		PrefixLength:          DefaultPrefixLength,
		SeverityFloor:         DefaultSeverityFloor,
		CleanupInterval:       DefaultCleanupInterval,
		CleanupChunkSize:      DefaultCleanupChunkSize,
		OrphanGracePeriod:     DefaultOrphanGracePeriod,
		DefaultSourceInterval: DefaultSourceInterval,
		InitialBackoff:        DefaultInitialBackoff,
		BackoffMultiplier:     DefaultBackoffMultiplier,
		MaxBackoff:            DefaultMaxBackoff,
		HTTPTimeout:           DefaultHTTPTimeout,
		MaxBodySize:           DefaultMaxBodySize,
		UserAgent:             DefaultUserAgent,
		TorProxyAddress:       DefaultTorProxyAddress,
		TorStartupTimeout:     DefaultTorStartupTimeout,
	}
}

// XDGDataDir returns the XDG data directory for breachmon
// (~/.local/share/breachmon on Linux).
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for breachmon
// (~/.config/breachmon on Linux).
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
// Called once after flag parsing, before any component is constructed,
// so misconfiguration fails fast with a specific message.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		// DBDir may be empty; the backend falls back to the XDG dir.
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return ErrMissingPostgresDSN
		}
	default:
		return ErrUnknownBackend
	}

	if c.RetentionWindow <= 0 {
		return ErrInvalidRetentionWindow
	}
	if c.MinAnonymitySize < 1 {
		return ErrInvalidMinAnonymitySize
	}
	if c.PrefixLength < 4 || c.PrefixLength > 64 {
		return ErrInvalidPrefixLength
	}
	if c.CleanupInterval <= 0 {
		return ErrInvalidCleanupInterval
	}
	if c.CleanupChunkSize < 1 {
		return ErrInvalidChunkSize
	}
	if c.DefaultSourceInterval <= 0 {
		return ErrInvalidSourceInterval
	}
	if c.BackoffMultiplier < 1 {
		return ErrInvalidBackoff
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return ErrInvalidBackoff
	}
	return nil
}
