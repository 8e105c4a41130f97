// Package service is the composition root. It wires storage, the
// anonymity-set registry, the credential checker, the crawl and
// retention schedulers, and exposes the operations the CLI calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/backgroundcheck/breachmon/internal/checker"
	"github.com/backgroundcheck/breachmon/internal/config"
	"github.com/backgroundcheck/breachmon/internal/crawl"
	"github.com/backgroundcheck/breachmon/internal/hasher"
	"github.com/backgroundcheck/breachmon/internal/kanon"
	"github.com/backgroundcheck/breachmon/internal/model"
	"github.com/backgroundcheck/breachmon/internal/ratelimit"
	"github.com/backgroundcheck/breachmon/internal/retention"
	"github.com/backgroundcheck/breachmon/internal/source"
	"github.com/backgroundcheck/breachmon/internal/storage"
	"github.com/backgroundcheck/breachmon/internal/tor"

	goredis "github.com/redis/go-redis/v9"
)

// ErrUnknownCredentialType is returned when a monitoring target is
// registered with an unrecognized credential type.
var ErrUnknownCredentialType = errors.New("service: unknown credential type")

// Service ties every subsystem together behind one API. All state is
// carried by the instance; two Services never share anything but the
// database they were pointed at.
type Service struct {
	cfg    *config.Config
	store  storage.Store
	hasher *hasher.Hasher
	sets   *kanon.Registry
	check  *checker.Checker
	crawl  *crawl.Scheduler
	retain *retention.Scheduler
	log    *slog.Logger

	torDaemon *tor.Daemon
	redis     *goredis.Client

	// degradedBackend is set when postgres was configured but the
	// service had to fall back to sqlite.
	degradedBackend bool

	// monitoring is nonzero while Run's schedulers are live.
	monitoring atomic.Bool

	// lastAlert tracks when each target last alerted, for throttling.
	alertMu   sync.Mutex
	lastAlert map[string]time.Time
}

// New builds a Service from configuration. The storage backend is
// opened (with fallback), source adapters are constructed from the
// loaded sources file, and both schedulers are wired but not started;
// call Run to start continuous monitoring.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	store, degraded, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	h := hasher.New(hasher.WithPrefixLength(cfg.PrefixLength))
	sets := kanon.NewRegistry(store, kanon.WithLogger(log))
	chk := checker.New(h, sets, store, cfg.MinAnonymitySize, cfg.SeverityFloor,
		checker.WithLogger(log))

	s := &Service{
		cfg:             cfg,
		store:           store,
		hasher:          h,
		sets:            sets,
		check:           chk,
		log:             log,
		degradedBackend: degraded,
		lastAlert:       make(map[string]time.Time),
	}

	limiter, err := s.buildLimiter()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	backoff := crawl.Backoff{
		Initial:    cfg.InitialBackoff,
		Multiplier: cfg.BackoffMultiplier,
		Cap:        cfg.MaxBackoff,
	}
	s.crawl = crawl.New(store, sets, limiter, cfg.RetentionWindow, cfg.PrefixLength, backoff,
		crawl.WithLogger(log),
		crawl.WithAlertFunc(s.logAlert))

	if err := s.registerSources(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	s.retain = retention.New(store, sets, cfg.CleanupChunkSize, cfg.OrphanGracePeriod,
		retention.WithLogger(log),
		retention.WithInterval(cfg.CleanupInterval))

	return s, nil
}

// buildLimiter returns the shared rate limiter: redis-backed when an
// address is configured, in-process otherwise.
func (s *Service) buildLimiter() (ratelimit.Limiter, error) {
	intervals := s.sourceIntervals()
	if s.cfg.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(intervals), nil
	}
	s.redis = goredis.NewClient(&goredis.Options{Addr: s.cfg.RedisAddr})
	s.log.Info("rate limiter state shared via redis", "addr", s.cfg.RedisAddr)
	return ratelimit.NewRedisLimiter(s.redis, intervals), nil
}

func (s *Service) sourceIntervals() map[string]time.Duration {
	intervals := make(map[string]time.Duration)
	if s.cfg.Sources == nil {
		return intervals
	}
	for _, id := range s.cfg.Sources.IDs() {
		sc, ok := s.cfg.Sources.Get(id)
		if !ok {
			continue
		}
		interval := sc.MinInterval
		if interval == 0 {
			interval = s.cfg.DefaultSourceInterval
		}
		intervals[id] = interval
	}
	return intervals
}

// registerSources builds an adapter per configured source. The darkweb
// group shares one Tor client; when Tor is unavailable those sources
// are skipped and logged as degraded while the rest proceed.
func (s *Service) registerSources(ctx context.Context) error {
	if s.cfg.Sources == nil {
		return nil
	}

	var torClient *tor.Client
	for _, id := range s.cfg.Sources.IDs() {
		sc, ok := s.cfg.Sources.Get(id)
		if !ok {
			continue
		}
		if sc.MinInterval == 0 {
			sc.MinInterval = s.cfg.DefaultSourceInterval
		}
		if sc.SeverityScore == 0 {
			sc.SeverityScore = 5
		}
		if len(sc.DataTypes) == 0 {
			sc.DataTypes = []string{"email"}
		}

		opts := []source.SiteOption{
			source.WithUserAgent(s.cfg.UserAgent),
			source.WithMaxBodySize(s.cfg.MaxBodySize),
		}

		if sc.Type == model.SourceDarkweb {
			if torClient == nil {
				var err error
				torClient, err = s.torTransport(ctx)
				if err != nil {
					s.log.Error("tor unavailable, dark-web sources degraded",
						"source", id, "error", err)
					continue
				}
			}
			s.crawl.Register(source.NewDarkweb(id, sc, s.hasher, torClient, opts...))
			continue
		}
		s.crawl.Register(source.NewPasteSite(id, sc, s.hasher, opts...))
	}
	return nil
}

// torTransport returns a Tor client, starting the embedded daemon when
// configured to do so.
func (s *Service) torTransport(ctx context.Context) (*tor.Client, error) {
	if !s.cfg.UseEmbeddedTor {
		return tor.NewClient(s.cfg.TorProxyAddress, s.cfg.HTTPTimeout)
	}

	daemon := tor.NewDaemon(tor.WithStartupTimeout(s.cfg.TorStartupTimeout))
	if err := daemon.Start(ctx); err != nil {
		return nil, err
	}
	s.torDaemon = daemon
	return daemon.NewClient(s.cfg.HTTPTimeout)
}

// logAlert is the default alert sink: a structured log line carrying
// only the hash prefix and source, never credential material. Each
// target's configured throttle bounds how often it may alert.
func (s *Service) logAlert(_ context.Context, target model.MonitoringTarget, record *model.BreachRecord) {
	if target.AlertConfig.Throttle > 0 {
		now := time.Now()
		s.alertMu.Lock()
		last, seen := s.lastAlert[target.ID]
		if seen && now.Sub(last) < target.AlertConfig.Throttle {
			s.alertMu.Unlock()
			return
		}
		s.lastAlert[target.ID] = now
		s.alertMu.Unlock()
	}

	s.log.Warn("monitored credential matched a new breach record",
		"target_id", target.ID,
		"hash_prefix", target.CredentialHashPrefix,
		"source_type", record.SourceType,
		"severity", record.SeverityScore,
		"destination", target.AlertConfig.Destination,
	)
}

// CheckCredential answers a k-anonymity credential check.
func (s *Service) CheckCredential(ctx context.Context, rawCredential string, credType model.CredentialType) (model.CheckResult, error) {
	return s.check.Check(ctx, rawCredential, credType)
}

// AddMonitoringTarget registers a credential for continuous monitoring.
// The credential is hashed immediately; only its fixed-length hash
// prefix is stored.
func (s *Service) AddMonitoringTarget(ctx context.Context, rawCredential string, credType model.CredentialType, alert model.AlertConfig) (*model.MonitoringTarget, error) {
	if !credType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCredentialType, credType)
	}

	_, prefix, err := s.hasher.Hash(rawCredential)
	if err != nil {
		return nil, err
	}

	target := &model.MonitoringTarget{
		ID:                   uuid.NewString(),
		CredentialHashPrefix: prefix,
		CredentialType:       credType,
		AlertConfig:          alert,
		CreatedAt:            time.Now().UTC(),
	}
	if err := s.store.AddTarget(ctx, target); err != nil {
		return nil, err
	}

	s.log.Info("monitoring target registered",
		"target_id", target.ID, "hash_prefix", prefix, "credential_type", credType)
	return target, nil
}

// RemoveMonitoringTarget deletes a monitoring target by ID.
func (s *Service) RemoveMonitoringTarget(ctx context.Context, id string) error {
	return s.store.RemoveTarget(ctx, id)
}

// RunPasteSiteMonitoring triggers one pass over the paste-site and
// forum source groups.
func (s *Service) RunPasteSiteMonitoring(ctx context.Context) (int, error) {
	pastes, perr := s.crawl.RunType(ctx, model.SourcePasteSite)
	forums, ferr := s.crawl.RunType(ctx, model.SourceForum)
	return pastes + forums, errors.Join(perr, ferr)
}

// RunDarkwebMonitoring triggers one pass over the dark-web source group.
func (s *Service) RunDarkwebMonitoring(ctx context.Context) (int, error) {
	return s.crawl.RunType(ctx, model.SourceDarkweb)
}

// Run starts continuous monitoring: the crawl workers and the periodic
// retention scheduler. It blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.monitoring.Store(true)
	defer s.monitoring.Store(false)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.crawl.Run(ctx) })
	g.Go(func() error { return s.retain.Run(ctx) })
	return g.Wait()
}

// CleanupExpired triggers one retention cleanup pass.
func (s *Service) CleanupExpired(ctx context.Context) (model.CleanupSummary, error) {
	return s.retain.Cleanup(ctx)
}

// GetStatistics reports aggregate service state. No per-record or
// per-prefix data is exposed.
func (s *Service) GetStatistics(ctx context.Context) (*model.Statistics, error) {
	active, err := s.store.CountActive(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	targets, err := s.store.CountTargets(ctx)
	if err != nil {
		return nil, err
	}
	return &model.Statistics{
		TotalBreaches:        active,
		MonitoredCredentials: targets,
		SourcesMonitored:     s.crawl.Sources(),
		LastCleanup:          s.retain.LastCleanup(),
	}, nil
}

// SourceStatus reports per-source crawl health.
func (s *Service) SourceStatus() []crawl.SourceStatus {
	return s.crawl.Status()
}

// HealthCheck reports coarse service health. Storage failure dominates:
// without storage no check can be answered safely.
func (s *Service) HealthCheck(ctx context.Context) *model.Health {
	h := &model.Health{
		StorageOK:        s.store.Ping(ctx) == nil,
		MonitoringActive: s.monitoring.Load(),
	}
	switch {
	case !h.StorageOK:
		h.Status = model.StatusError
	case s.degradedBackend || !h.MonitoringActive:
		h.Status = model.StatusDegraded
	default:
		h.Status = model.StatusHealthy
	}
	return h
}

// DegradedBackend reports whether the service fell back from postgres
// to the embedded sqlite backend at startup.
func (s *Service) DegradedBackend() bool {
	return s.degradedBackend
}

// Close releases the storage backend, the redis client, and the
// embedded Tor daemon if one was started.
func (s *Service) Close() error {
	var errs []error
	if s.torDaemon != nil {
		errs = append(errs, s.torDaemon.Stop())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
