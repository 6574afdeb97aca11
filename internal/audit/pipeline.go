// Package audit scores candidate listings with four independent agents
// (integrity, structural, relevance, crosscheck) and runs batches of them
// through deduplication and the rejection ledger.
package audit

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-engine/internal/config"
	"github.com/sells-group/deal-engine/internal/dealmath"
	"github.com/sells-group/deal-engine/internal/dedup"
	"github.com/sells-group/deal-engine/internal/ledger"
	"github.com/sells-group/deal-engine/internal/metrics"
	"github.com/sells-group/deal-engine/internal/model"
	"github.com/sells-group/deal-engine/internal/reconcile"
	"github.com/sells-group/deal-engine/internal/rules"
)

// DefaultConcurrency bounds parallel candidates in Run.
const DefaultConcurrency = 8

// Reconciler diffs declared values against public records.
type Reconciler interface {
	Reconcile(ctx context.Context, address string, declared map[string]float64) (*model.ReconciliationResult, error)
}

// BatchStore persists completed batches.
type BatchStore interface {
	SaveBatchReport(ctx context.Context, batch *model.BatchReport) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReconciler replaces the default synthetic-only reconciler.
func WithReconciler(r Reconciler) Option {
	return func(p *Pipeline) { p.reconciler = r }
}

// WithRules applies domain whitelist and blacklist rules.
func WithRules(rs *rules.RuleSet) Option {
	return func(p *Pipeline) { p.rules.Store(rs) }
}

// WithDeduper skips previously seen listings in Run.
func WithDeduper(d *dedup.Deduper) Option {
	return func(p *Pipeline) { p.deduper = d }
}

// WithLedger records failing candidates in Run.
func WithLedger(l *ledger.Ledger) Option {
	return func(p *Pipeline) { p.ledger = l }
}

// WithStore persists each batch report.
func WithStore(s BatchStore) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithMetrics records audit outcomes.
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithGovernance overrides the deal-math assumptions.
func WithGovernance(g dealmath.Governance) Option {
	return func(p *Pipeline) { p.governance = g }
}

// WithConcurrency bounds parallel candidates in Run.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// Pipeline audits candidates against a validated policy.
type Pipeline struct {
	policy      config.Policy
	reconciler  Reconciler
	rules       atomic.Pointer[rules.RuleSet]
	deduper     *dedup.Deduper
	ledger      *ledger.Ledger
	store       BatchStore
	metrics     *metrics.Recorder
	governance  dealmath.Governance
	concurrency int
	now         func() time.Time
}

// New validates policy and builds a Pipeline. A malformed policy fails here,
// before any candidate is touched.
func New(policy config.Policy, opts ...Option) (*Pipeline, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		policy:      policy,
		governance:  dealmath.DefaultGovernance(),
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.reconciler == nil {
		p.reconciler = reconcile.New(reconcile.Config{Diff: policy.DiffConfig()}, reconcile.WithMetrics(p.metrics))
	}
	return p, nil
}

// SetRules swaps the domain rules used by subsequent audits.
func (p *Pipeline) SetRules(rs *rules.RuleSet) { p.rules.Store(rs) }

// Policy returns the policy the pipeline scores with.
func (p *Pipeline) Policy() config.Policy { return p.policy }

// Audit scores one candidate. Invalid candidates return an error wrapping
// model.ErrInvalidCandidate. Blacklisted sources are not reconciled.
func (p *Pipeline) Audit(ctx context.Context, c *model.Property) (*model.AuditReport, error) {
	if c == nil {
		return nil, eris.Wrap(model.ErrInvalidCandidate, "audit: nil candidate")
	}
	if err := c.Validate(); err != nil {
		p.metrics.Audit(metrics.ResultInvalid, 0)
		return nil, err
	}

	verdict := p.rules.Load().Classify(c.Link, c.Source)
	dm := dealmath.Calculate(c, p.governance)

	var rec *model.ReconciliationResult
	if !verdict.Blacklisted {
		var err error
		rec, err = p.reconciler.Reconcile(ctx, c.FullAddress(), c.Declared())
		if err != nil {
			p.metrics.Audit(metrics.ResultInvalid, 0)
			return nil, eris.Wrapf(err, "audit: reconcile %s", c.ID)
		}
	}

	integ := integrity(rec)
	struc := structural(c, verdict)
	relev := relevance(c, verdict, p.policy.MinDescriptionLength, p.policy.NegativeKeywords)
	cross := crosscheck(c, dm, p.governance, integ.score)

	report := &model.AuditReport{
		ID:              uuid.New().String(),
		CandidateID:     c.ID,
		Title:           c.DisplayTitle(),
		IntegrityScore:  integ.score,
		StructuralScore: struc.score,
		RelevanceScore:  relev.score,
		CrosscheckScore: cross.score,
		Reconciliation:  rec,
		Metrics:         dm,
		TotalDeals:      1,
		CreatedAt:       p.now().UTC(),
	}
	report.Alerts = make([]model.Alert, 0, len(integ.alerts)+len(struc.alerts)+len(relev.alerts)+len(cross.alerts))
	report.Alerts = append(report.Alerts, integ.alerts...)
	report.Alerts = append(report.Alerts, struc.alerts...)
	report.Alerts = append(report.Alerts, relev.alerts...)
	report.Alerts = append(report.Alerts, cross.alerts...)

	report.OverallScore = Overall(p.policy.Weights, integ.score, struc.score, relev.score, cross.score)
	report.Pass = report.OverallScore >= p.policy.PassThreshold && !report.HasCritical()
	report.Status = model.AuditStatusFail
	result := metrics.ResultFail
	if report.Pass {
		report.Status = model.AuditStatusPass
		result = metrics.ResultPass
	}
	p.metrics.Audit(result, report.OverallScore)

	zap.L().Debug("audit: candidate scored",
		zap.String("candidate_id", c.ID),
		zap.Int("integrity", report.IntegrityScore),
		zap.Int("structural", report.StructuralScore),
		zap.Int("relevance", report.RelevanceScore),
		zap.Int("crosscheck", report.CrosscheckScore),
		zap.Int("overall", report.OverallScore),
		zap.Bool("pass", report.Pass),
		zap.Bool("blacklisted", verdict.Blacklisted),
	)
	return report, nil
}

// Overall is the weighted average of the four sub-scores, rounded to the
// nearest integer.
func Overall(w config.ScoreWeights, integrity, structural, relevance, crosscheck int) int {
	total := w.Sum()
	if total <= 0 {
		return 0
	}
	sum := w.Integrity*float64(integrity) +
		w.Structural*float64(structural) +
		w.Relevance*float64(relevance) +
		w.Crosscheck*float64(crosscheck)
	return int(math.Round(sum / total))
}

// rejection builds the ledger request for a failed report. The reason is the
// first critical alert, or the threshold miss attributed to the weakest agent.
func (p *Pipeline) rejection(c *model.Property, r *model.AuditReport) ledger.RejectRequest {
	req := ledger.RejectRequest{
		Candidate:   c,
		ReportID:    r.ID,
		Confidence:  r.OverallScore,
		CanOverride: !r.HasCritical() || p.policy.AllowCriticalOverride,
	}
	for _, a := range r.Alerts {
		if a.Severity == model.SeverityCritical {
			req.Reason = a.Message
			req.Agent = a.Agent
			return req
		}
	}
	req.Reason = fmt.Sprintf("overall score %d below pass threshold %d", r.OverallScore, p.policy.PassThreshold)
	req.Agent = weakestAgent(r)
	return req
}

func weakestAgent(r *model.AuditReport) string {
	agents := []struct {
		name  string
		score int
	}{
		{model.AgentIntegrity, r.IntegrityScore},
		{model.AgentStructural, r.StructuralScore},
		{model.AgentRelevance, r.RelevanceScore},
		{model.AgentCrosscheck, r.CrosscheckScore},
	}
	low := agents[0]
	for _, a := range agents[1:] {
		if a.score < low.score {
			low = a
		}
	}
	return low.name
}
