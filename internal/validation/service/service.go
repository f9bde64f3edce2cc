// Package service implements the validation cache: the single entry point for
// registry identifier lookups. It normalizes input, serves cached answers,
// calls the registries on miss, and degrades to fallback results when a
// registry cannot answer.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"veriflow/internal/registry"
	valmetrics "veriflow/internal/validation/metrics"
	"veriflow/internal/validation/models"
	dErrors "veriflow/pkg/domain-errors"
	"veriflow/pkg/requestcontext"
)

// Store abstracts cache-entry persistence. Implementations must treat
// expired entries as absent.
type Store interface {
	Find(ctx context.Context, kind models.IdentifierKind, identifier string, now time.Time) (*models.CacheEntry, error)
	Save(ctx context.Context, kind models.IdentifierKind, identifier string, entry models.CacheEntry) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Config carries the tunables of the validation cache. Company entries get a
// shorter TTL than tax entries: company registrations churn faster than VAT
// numbers.
type Config struct {
	CompanyTTL        time.Duration
	TaxTTL            time.Duration
	RegistryTimeout   time.Duration
	MaxBatchSize      int
	LookupConcurrency int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CompanyTTL:        15 * time.Minute,
		TaxTTL:            1 * time.Hour,
		RegistryTimeout:   5 * time.Second,
		MaxBatchSize:      50,
		LookupConcurrency: 8,
	}
}

// Stats is a point-in-time snapshot of the process-lifetime counters.
// Counters are monotonic and reset only on process restart.
type Stats struct {
	Total         uint64    `json:"total"`
	Hits          uint64    `json:"hits"`
	Misses        uint64    `json:"misses"`
	RegistryCalls uint64    `json:"registry_calls"`
	Errors        uint64    `json:"errors"`
	LastRequestAt time.Time `json:"last_request_at"`
}

// Service is the validation cache. One instance owns the cache-entry store;
// all lookups flow through it.
type Service struct {
	company registry.Client
	tax     registry.Client
	store   Store
	cfg     Config
	logger  *slog.Logger
	metrics *valmetrics.Metrics
	tracer  trace.Tracer

	// Concurrent misses for the same key coalesce onto one registry call.
	// A performance optimization, not a correctness requirement.
	flight singleflight.Group

	total         atomic.Uint64
	hits          atomic.Uint64
	misses        atomic.Uint64
	registryCalls atomic.Uint64
	errorCount    atomic.Uint64

	lastMu        sync.Mutex
	lastRequestAt time.Time
}

type serviceConfig struct {
	logger  *slog.Logger
	metrics *valmetrics.Metrics
}

// Option configures optional service collaborators.
type Option func(*serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = logger }
}

func WithMetrics(m *valmetrics.Metrics) Option {
	return func(c *serviceConfig) { c.metrics = m }
}

// New constructs the validation cache around the two registry clients.
func New(company, tax registry.Client, store Store, cfg Config, opts ...Option) *Service {
	sc := &serviceConfig{}
	for _, opt := range opts {
		opt(sc)
	}
	if cfg.RegistryTimeout <= 0 {
		cfg.RegistryTimeout = DefaultConfig().RegistryTimeout
	}
	if cfg.LookupConcurrency <= 0 {
		cfg.LookupConcurrency = DefaultConfig().LookupConcurrency
	}
	return &Service{
		company: company,
		tax:     tax,
		store:   store,
		cfg:     cfg,
		logger:  sc.logger,
		metrics: sc.metrics,
		tracer:  otel.Tracer("veriflow/validation"),
	}
}

// Lookup validates a single identifier. Format errors come back as coded
// errors without any registry access; registry failures are absorbed into a
// fallback result, never returned as an error.
func (s *Service) Lookup(ctx context.Context, kind models.IdentifierKind, raw string) (models.ValidationResult, error) {
	s.touch(requestcontext.Now(ctx))
	s.total.Add(1)

	normalized, err := kind.Normalize(raw)
	if err != nil {
		return models.ValidationResult{}, err
	}
	return s.lookupNormalized(ctx, kind, normalized), nil
}

// LookupMany validates a batch of identifiers. Every requested identifier is
// present in the returned mapping, each entry independently an authoritative
// answer, a fallback, or a local format rejection. One registry failure never
// blocks the other lookups.
func (s *Service) LookupMany(ctx context.Context, kind models.IdentifierKind, raws []string) (map[string]models.ValidationResult, error) {
	if len(raws) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "identifiers array must not be empty")
	}
	if len(raws) > s.cfg.MaxBatchSize {
		offending := raws[s.cfg.MaxBatchSize:]
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"batch of %d exceeds the cap of %d; remove %d identifiers: %s",
			len(raws), s.cfg.MaxBatchSize, len(offending), strings.Join(offending, ", "))
	}

	results := make(map[string]models.ValidationResult, len(raws))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.LookupConcurrency)
	for _, raw := range dedupe(raws) {
		g.Go(func() error {
			result, err := s.Lookup(gctx, kind, raw)
			if err != nil {
				// Format rejections stay per-item in bulk calls.
				result = models.ValidationResult{
					Kind:        kind,
					Identifier:  raw,
					IsValid:     false,
					Status:      models.StatusUnknown,
					Source:      models.SourceLocal,
					ValidatedAt: requestcontext.Now(gctx),
					Error:       err.Error(),
				}
			}
			mu.Lock()
			results[raw] = result
			mu.Unlock()
			return nil
		})
	}
	// Lookups never return errors through the group; Wait only propagates
	// context cancellation.
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "bulk lookup interrupted")
	}
	return results, nil
}

// Stats returns a snapshot of the lookup counters.
func (s *Service) Stats() Stats {
	s.lastMu.Lock()
	last := s.lastRequestAt
	s.lastMu.Unlock()
	return Stats{
		Total:         s.total.Load(),
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		RegistryCalls: s.registryCalls.Load(),
		Errors:        s.errorCount.Load(),
		LastRequestAt: last,
	}
}

// RunSweeper eagerly evicts expired entries on the given interval until the
// context is canceled. Optional; lazy eviction alone keeps the cache correct.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			deleted, err := s.store.DeleteExpired(ctx, now)
			if err != nil {
				if s.logger != nil {
					s.logger.WarnContext(ctx, "cache sweep failed", "error", err)
				}
				continue
			}
			if deleted > 0 && s.logger != nil {
				s.logger.DebugContext(ctx, "cache sweep evicted entries", "count", deleted)
			}
		}
	}
}

func (s *Service) lookupNormalized(ctx context.Context, kind models.IdentifierKind, identifier string) models.ValidationResult {
	start := time.Now()
	now := requestcontext.Now(ctx)

	if entry, err := s.store.Find(ctx, kind, identifier, now); err == nil {
		s.hits.Add(1)
		s.metrics.RecordCacheHit(string(kind))
		result := entry.Result
		result.Source = models.SourceCache
		s.metrics.ObserveLookupDuration(string(kind), string(result.Source), time.Since(start).Seconds())
		return result
	}

	s.misses.Add(1)
	s.metrics.RecordCacheMiss(string(kind))

	flightKey := string(kind) + ":" + identifier
	shared, _, _ := s.flight.Do(flightKey, func() (any, error) {
		return s.fetchAndStore(ctx, kind, identifier), nil
	})
	result := shared.(models.ValidationResult)
	s.metrics.ObserveLookupDuration(string(kind), string(result.Source), time.Since(start).Seconds())
	return result
}

// fetchAndStore performs the registry call on a cache miss and caches
// authoritative answers. Registry failures become fallback results and are
// deliberately not cached, so the next lookup retries the registry.
func (s *Service) fetchAndStore(ctx context.Context, kind models.IdentifierKind, identifier string) models.ValidationResult {
	client := s.clientFor(kind)
	now := requestcontext.Now(ctx)

	ctx, span := s.tracer.Start(ctx, "registry.fetch", trace.WithAttributes(
		attribute.String("registry.name", client.Name()),
		attribute.String("identifier.kind", string(kind)),
	))
	defer span.End()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.RegistryTimeout)
	defer cancel()

	s.registryCalls.Add(1)
	s.metrics.RecordRegistryCall(string(kind))

	record, err := client.Fetch(fetchCtx, identifier)
	if err != nil {
		category := registry.CategoryOf(err)
		if category == registry.ErrorNotFound {
			// An authoritative "not registered" is a real answer, distinct
			// from the registry being unreachable. Cache it like any other.
			result := models.ValidationResult{
				Kind:        kind,
				Identifier:  identifier,
				IsValid:     false,
				Status:      models.StatusUnknown,
				Source:      models.SourceRegistry,
				ValidatedAt: now,
				Error:       "identifier is not registered",
			}
			s.save(ctx, kind, identifier, result)
			return result
		}

		s.errorCount.Add(1)
		s.metrics.RecordFallback(string(kind), string(category))
		span.RecordError(err)
		if s.logger != nil {
			s.logger.WarnContext(ctx, "registry lookup degraded to fallback",
				"registry", client.Name(),
				"kind", kind,
				"category", category,
				"error", err.Error(),
			)
		}
		return models.NewFallbackResult(kind, identifier, now, err.Error())
	}

	result := models.ValidationResult{
		Kind:        kind,
		Identifier:  identifier,
		IsValid:     record.Status == registry.RecordStatusActive,
		Name:        record.Name,
		Address:     record.Address,
		Status:      toStatus(record.Status),
		Source:      models.SourceRegistry,
		ValidatedAt: now,
	}
	if record.Status == registry.RecordStatusInactive {
		result.Warnings = append(result.Warnings, "registration exists but is inactive")
	}
	s.save(ctx, kind, identifier, result)
	return result
}

func (s *Service) save(ctx context.Context, kind models.IdentifierKind, identifier string, result models.ValidationResult) {
	entry := models.CacheEntry{
		Result:     result,
		InsertedAt: result.ValidatedAt,
		TTL:        s.ttlFor(kind),
	}
	if err := s.store.Save(ctx, kind, identifier, entry); err != nil && s.logger != nil {
		// A failed cache write degrades performance, not correctness.
		s.logger.WarnContext(ctx, "cache write failed", "kind", kind, "error", err)
	}
}

func (s *Service) clientFor(kind models.IdentifierKind) registry.Client {
	if kind == models.KindTax {
		return s.tax
	}
	return s.company
}

func (s *Service) ttlFor(kind models.IdentifierKind) time.Duration {
	if kind == models.KindTax {
		return s.cfg.TaxTTL
	}
	return s.cfg.CompanyTTL
}

func (s *Service) touch(now time.Time) {
	s.lastMu.Lock()
	if now.After(s.lastRequestAt) {
		s.lastRequestAt = now
	}
	s.lastMu.Unlock()
}

func toStatus(status registry.RecordStatus) models.Status {
	switch status {
	case registry.RecordStatusActive:
		return models.StatusActive
	case registry.RecordStatusInactive:
		return models.StatusInactive
	default:
		return models.StatusUnknown
	}
}

// dedupe preserves first-seen order while dropping repeated identifiers so a
// batch cannot make the same registry call twice.
func dedupe(raws []string) []string {
	seen := make(map[string]struct{}, len(raws))
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		out = append(out, raw)
	}
	return out
}
