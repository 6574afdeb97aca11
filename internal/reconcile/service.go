// Package reconcile fetches independent public records for a property,
// merges them by provider priority, and diffs them against declared values.
package reconcile

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/deal-engine/internal/diff"
	"github.com/sells-group/deal-engine/internal/metrics"
	"github.com/sells-group/deal-engine/internal/model"
	"github.com/sells-group/deal-engine/internal/resilience"
)

var (
	// ErrProviderUnavailable marks a single provider failure. It is recorded
	// in the provider outcome and never returned from Reconcile.
	ErrProviderUnavailable = eris.New("provider unavailable")
	// ErrNoProvidersConfigured is logged when the synthetic path is taken
	// because no provider is registered.
	ErrNoProvidersConfigured = eris.New("no providers configured")
)

// Synthetic reference offsets.
const (
	SyntheticSqftOffset  = 50
	SyntheticPriceFactor = 0.975
)

// DefaultTimeout bounds each provider call.
const DefaultTimeout = 4 * time.Second

// Config controls a Service.
type Config struct {
	// Timeout bounds each provider call independently.
	Timeout time.Duration
	Diff    diff.Config
}

// Option configures a Service.
type Option func(*Service)

// WithProvider registers a provider. Registration order is merge priority:
// earlier providers win on conflicting fields.
func WithProvider(p Provider) Option {
	return func(s *Service) {
		s.providers = append(s.providers, p)
	}
}

// WithBreakers guards each provider with its own circuit breaker.
func WithBreakers(b *resilience.Breakers) Option {
	return func(s *Service) {
		s.breakers = b
	}
}

// WithCache enables result caching keyed by address and declared values.
func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithMetrics records provider outcomes and latency.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service reconciles declared listing values against public records.
type Service struct {
	cfg       Config
	providers []Provider
	breakers  *resilience.Breakers
	cache     Cache
	metrics   *metrics.Recorder
}

// New creates a Service.
func New(cfg Config, opts ...Option) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Providers returns the registered provider names in priority order.
func (s *Service) Providers() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// Reconcile compares declared values with the merged public record for
// address. Provider failures degrade the result but never fail the call;
// the only error is ErrInvalidCandidate.
func (s *Service) Reconcile(ctx context.Context, address string, declared map[string]float64) (*model.ReconciliationResult, error) {
	if strings.TrimSpace(address) == "" {
		return nil, eris.Wrap(model.ErrInvalidCandidate, "reconcile: missing address")
	}
	if len(declared) == 0 {
		return nil, eris.Wrap(model.ErrInvalidCandidate, "reconcile: no declared fields")
	}

	var key string
	if s.cache != nil {
		key = CacheKey(address, declared)
		if cached, ok := s.cache.Get(key); ok {
			zap.L().Debug("reconcile: cache hit", zap.String("address", address))
			return cached, nil
		}
	}

	start := time.Now()
	recs, outcomes := s.fanOut(ctx, address)

	result := &model.ReconciliationResult{
		Address: address,
		Sources: outcomes,
	}
	reference := merge(recs, outcomes, result)

	if len(reference) == 0 {
		if len(s.providers) == 0 {
			zap.L().Warn("reconcile: using synthetic reference",
				zap.String("address", address),
				zap.Error(ErrNoProvidersConfigured),
			)
		} else {
			zap.L().Warn("reconcile: all providers unavailable, using synthetic reference",
				zap.String("address", address),
				zap.Int("providers", len(s.providers)),
			)
		}
		reference = Synthetic(declared)
		result.Synthetic = true
		result.Reference = observations(reference, model.SourceSynthetic)
	}

	s.cfg.Diff.Compare(declared, reference).Apply(result)
	s.metrics.Reconciled(time.Since(start), result.Synthetic)

	zap.L().Debug("reconcile: complete",
		zap.String("address", address),
		zap.Int("confidence", result.ConfidenceScore),
		zap.Int("matches", len(result.VerifiedMatches)),
		zap.Int("discrepancies", len(result.Discrepancies)),
		zap.Bool("synthetic", result.Synthetic),
	)

	if s.cache != nil {
		s.cache.Put(key, result)
	}
	return result, nil
}

// fanOut queries every provider concurrently and waits for all of them.
func (s *Service) fanOut(ctx context.Context, address string) ([]*PartialRecord, []model.ProviderOutcome) {
	recs := make([]*PartialRecord, len(s.providers))
	outcomes := make([]model.ProviderOutcome, len(s.providers))

	var g errgroup.Group
	for i, p := range s.providers {
		g.Go(func() error {
			rec, outcome, err := s.fetchOne(ctx, p, address)
			recs[i] = rec
			outcome.Source = sourceFor(i)
			outcomes[i] = outcome
			if err != nil {
				zap.L().Warn("reconcile: provider failed",
					zap.String("provider", p.Name()),
					zap.String("status", string(outcome.Status)),
					zap.Error(err),
				)
			}
			s.metrics.ProviderCall(p.Name(), string(outcome.Status))
			return nil
		})
	}
	_ = g.Wait()
	return recs, outcomes
}

// fetchOne makes a single attempt against p with its own deadline. A
// provider that ignores its context is abandoned when the deadline passes.
func (s *Service) fetchOne(ctx context.Context, p Provider, address string) (*PartialRecord, model.ProviderOutcome, error) {
	outcome := model.ProviderOutcome{Provider: p.Name()}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var breaker *resilience.Breaker
	if s.breakers != nil {
		breaker = s.breakers.For(p.Name())
	}

	type reply struct {
		rec *PartialRecord
		err error
	}
	done := make(chan reply, 1)
	go func() {
		rec, err := resilience.Call(cctx, breaker, func(c context.Context) (*PartialRecord, error) {
			return p.Fetch(c, address)
		})
		done <- reply{rec, err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-cctx.Done():
		r = reply{err: cctx.Err()}
	}

	switch {
	case r.err == nil && (r.rec == nil || len(r.rec.Fields) == 0):
		outcome.Status = model.ProviderEmpty
		return r.rec, outcome, nil
	case r.err == nil:
		outcome.Status = model.ProviderOK
		outcome.Fields = len(r.rec.Fields)
		return r.rec, outcome, nil
	case errors.Is(r.err, resilience.ErrCircuitOpen):
		outcome.Status = model.ProviderCircuitOpen
	case resilience.IsTimeout(r.err) || errors.Is(cctx.Err(), context.DeadlineExceeded):
		outcome.Status = model.ProviderTimeout
	default:
		outcome.Status = model.ProviderFailed
	}
	outcome.Error = r.err.Error()
	return nil, outcome, eris.Wrapf(ErrProviderUnavailable, "%s: %v", p.Name(), r.err)
}

// merge folds records in priority order: the first provider to report a
// field wins. Display fields are copied onto out.Provenance.
func merge(recs []*PartialRecord, outcomes []model.ProviderOutcome, out *model.ReconciliationResult) map[string]float64 {
	fields := make(map[string]float64)
	provenance := make(map[string]string)
	for i, rec := range recs {
		if rec == nil {
			continue
		}
		src := outcomes[i].Source
		for _, k := range sortedKeys(rec.Fields) {
			if _, taken := fields[k]; taken {
				continue
			}
			fields[k] = rec.Fields[k]
			out.Reference = append(out.Reference, model.FieldObservation{Field: k, Value: rec.Fields[k], Source: src})
		}
		for k, v := range rec.Display {
			if _, taken := provenance[k]; !taken && v != "" {
				provenance[k] = v
			}
		}
	}
	if len(provenance) > 0 {
		out.Provenance = provenance
	}
	return fields
}

// Synthetic derives a deterministic reference record from declared values:
// sqft minus a fixed offset, price scaled by a fixed factor, everything else
// copied.
func Synthetic(declared map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(declared))
	for k, v := range declared {
		switch k {
		case model.FieldSqft:
			out[k] = v - SyntheticSqftOffset
		case model.FieldPrice:
			out[k] = v * SyntheticPriceFactor
		default:
			out[k] = v
		}
	}
	return out
}

func observations(fields map[string]float64, src model.Source) []model.FieldObservation {
	obs := make([]model.FieldObservation, 0, len(fields))
	for _, k := range sortedKeys(fields) {
		obs = append(obs, model.FieldObservation{Field: k, Value: fields[k], Source: src})
	}
	return obs
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sourceFor(i int) model.Source {
	if i == 0 {
		return model.SourcePublicRecordA
	}
	return model.SourcePublicRecordB
}
