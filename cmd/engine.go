package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-engine/internal/audit"
	"github.com/sells-group/deal-engine/internal/dedup"
	"github.com/sells-group/deal-engine/internal/ledger"
	"github.com/sells-group/deal-engine/internal/matching"
	"github.com/sells-group/deal-engine/internal/metrics"
	"github.com/sells-group/deal-engine/internal/model"
	"github.com/sells-group/deal-engine/internal/reconcile"
	"github.com/sells-group/deal-engine/internal/resilience"
	"github.com/sells-group/deal-engine/internal/rules"
	"github.com/sells-group/deal-engine/internal/store"
	"github.com/sells-group/deal-engine/pkg/geocode"
	"github.com/sells-group/deal-engine/pkg/records"
)

// engineEnv holds the store and every service built over it for the
// audit, ledger, dedup, rules, match and serve commands.
type engineEnv struct {
	Store      store.Store
	Pipeline   *audit.Pipeline
	Ledger     *ledger.Ledger
	Dedup      *dedup.Deduper
	Reconciler *reconcile.Service
	Matcher    *matching.Engine
	Metrics    *metrics.Recorder
	Registry   *prometheus.Registry
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// ReloadRules rebuilds the pipeline's domain rules from the store.
func (e *engineEnv) ReloadRules(ctx context.Context) error {
	list, err := e.Store.ListDomainRules(ctx)
	if err != nil {
		return eris.Wrap(err, "load domain rules")
	}
	e.Pipeline.SetRules(rules.NewRuleSet(list))
	return nil
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEngine validates config for mode and wires the services. Batch
// reports are persisted only when persist is set. Callers should defer
// env.Close().
func initEngine(ctx context.Context, mode string, persist bool) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	// The reconciliation cache is scoped to one run, so the server goes without.
	reconciler := newReconciler(rec, mode != "serve")
	led := ledger.New(st, rec)
	dd := dedup.New(dedup.NewStoreIndex(st), rec)

	opts := []audit.Option{
		audit.WithReconciler(reconciler),
		audit.WithDeduper(dd),
		audit.WithLedger(led),
		audit.WithMetrics(rec),
		audit.WithGovernance(cfg.Governance),
		audit.WithConcurrency(cfg.Batch.MaxConcurrentCandidates),
	}
	if persist {
		opts = append(opts, audit.WithStore(st))
	}
	pipeline, err := audit.New(cfg.Policy, opts...)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &engineEnv{
		Store:      st,
		Pipeline:   pipeline,
		Ledger:     led,
		Dedup:      dd,
		Reconciler: reconciler,
		Matcher:    newMatcher(rec),
		Metrics:    rec,
		Registry:   reg,
	}
	if err := env.ReloadRules(ctx); err != nil {
		env.Close()
		return nil, err
	}

	zap.L().Info("engine initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Strings("providers", reconciler.Providers()),
		zap.Bool("persist", persist),
	)
	return env, nil
}

// newReconciler registers the configured public-record providers in
// priority order. Providers without credentials are skipped.
func newReconciler(rec *metrics.Recorder, cached bool) *reconcile.Service {
	opts := []reconcile.Option{
		reconcile.WithBreakers(resilience.NewBreakers(resilience.BreakerConfigFrom(
			cfg.Providers.Circuit.FailureThreshold,
			cfg.Providers.Circuit.ResetTimeoutSecs,
		))),
		reconcile.WithMetrics(rec),
	}
	if cached {
		opts = append(opts, reconcile.WithCache(reconcile.NewMemoryCache()))
	}

	if p := cfg.Providers.Regrid; p.Key != "" {
		opts = append(opts, reconcile.WithProvider(reconcile.FromRecords(
			records.NewRegridClient(p.Key, records.WithBaseURL(p.BaseURL), records.WithRateLimit(p.RateLimit)),
		)))
	} else {
		zap.L().Debug("DEAL_PROVIDERS_REGRID_KEY not set, regrid disabled")
	}
	if p := cfg.Providers.RentCast; p.Key != "" {
		opts = append(opts, reconcile.WithProvider(reconcile.FromRecords(
			records.NewRentCastClient(p.Key, records.WithBaseURL(p.BaseURL), records.WithRateLimit(p.RateLimit)),
		)))
	} else {
		zap.L().Debug("DEAL_PROVIDERS_RENTCAST_KEY not set, rentcast disabled")
	}

	return reconcile.New(reconcile.Config{
		Timeout: time.Duration(cfg.Providers.TimeoutSecs) * time.Second,
		Diff:    cfg.Policy.DiffConfig(),
	}, opts...)
}

// newMatcher builds the buy-box engine, geocoding properties that arrive
// without coordinates when enabled.
func newMatcher(rec *metrics.Recorder) *matching.Engine {
	var opts []matching.EngineOption
	if g := cfg.Providers.Geocode; g.Enabled {
		opts = append(opts, matching.WithGeocoder(geocode.NewClient(
			geocode.WithBaseURL(g.BaseURL),
			geocode.WithRateLimit(g.RateLimit),
		)))
	}
	return matching.NewEngine(cfg.Matching.Weights, cfg.Governance, rec, opts...)
}

// locate fills in p's coordinates, logging rather than failing on
// geocoder errors.
func locate(ctx context.Context, m *matching.Engine, p *model.Property) {
	if err := m.Locate(ctx, p); err != nil {
		zap.L().Warn("geocode failed, radius criteria may not match",
			zap.String("property_id", p.ID),
			zap.Error(err),
		)
	}
}
