package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/deal-engine/internal/metrics"
	"github.com/sells-group/deal-engine/internal/model"
)

type entryKind int

const (
	kindSkipped entryKind = iota
	kindInvalid
	kindDuplicate
	kindScored
)

// Run audits candidates concurrently and aggregates the completed set.
// Duplicates are skipped without a report. Invalid candidates become failure
// entries. Failing reports are recorded in the ledger when one is configured.
// Cancelling ctx stops dispatch of new candidates; those already in flight
// finish and are counted.
func (p *Pipeline) Run(ctx context.Context, candidates []*model.Property) (*model.BatchReport, error) {
	batch := &model.BatchReport{
		RunID:      uuid.New().String(),
		TotalDeals: len(candidates),
		Entries:    make([]model.BatchEntry, len(candidates)),
		CreatedAt:  p.now().UTC(),
	}
	kinds := make([]entryKind, len(candidates))

	zap.L().Info("audit: batch started",
		zap.String("run_id", batch.RunID),
		zap.Int("candidates", len(candidates)),
		zap.Int("concurrency", p.concurrency),
	)

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	// In-flight candidates run detached from ctx so they complete after a cancel.
	work := context.WithoutCancel(ctx)

	var mu sync.Mutex
	for i, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			entry, kind := p.runOne(work, batch.RunID, c)
			mu.Lock()
			batch.Entries[i] = entry
			kinds[i] = kind
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i, c := range candidates {
		if kinds[i] == kindSkipped {
			batch.Entries[i] = skippedEntry(c, ctx.Err())
		}
	}
	aggregate(batch, kinds)

	zap.L().Info("audit: batch complete",
		zap.String("run_id", batch.RunID),
		zap.Int("scored", batch.Scored),
		zap.Int("passed", batch.Passed),
		zap.Int("failed", batch.Failed),
		zap.Int("invalid", batch.Invalid),
		zap.Int("duplicates", batch.Duplicates),
		zap.Int("skipped", batch.Skipped),
		zap.Float64("mean_overall", batch.MeanOverall),
	)

	if p.store != nil {
		if err := p.store.SaveBatchReport(work, batch); err != nil {
			return batch, eris.Wrapf(err, "audit: save batch %s", batch.RunID)
		}
	}
	if err := ctx.Err(); err != nil {
		return batch, eris.Wrap(err, "audit: batch interrupted")
	}
	return batch, nil
}

// runOne takes a single candidate through validation, dedup, scoring and
// the ledger.
func (p *Pipeline) runOne(ctx context.Context, runID string, c *model.Property) (model.BatchEntry, entryKind) {
	if c == nil {
		p.metrics.Audit(metrics.ResultInvalid, 0)
		return model.BatchEntry{Error: model.ErrInvalidCandidate.Error()}, kindInvalid
	}
	entry := model.BatchEntry{CandidateID: c.ID, Title: c.DisplayTitle()}
	log := zap.L().With(zap.String("run_id", runID), zap.String("candidate_id", c.ID))

	if err := c.Validate(); err != nil {
		p.metrics.Audit(metrics.ResultInvalid, 0)
		log.Warn("audit: invalid candidate", zap.Error(err))
		entry.Error = err.Error()
		return entry, kindInvalid
	}

	if p.deduper != nil {
		_, dup, err := p.deduper.Claim(ctx, c)
		if err != nil {
			log.Error("audit: dedup check failed", zap.Error(err))
			entry.Error = err.Error()
			return entry, kindInvalid
		}
		if dup {
			entry.Duplicate = true
			return entry, kindDuplicate
		}
	}

	report, err := p.Audit(ctx, c)
	if err != nil {
		log.Warn("audit: candidate failed", zap.Error(err))
		entry.Error = err.Error()
		return entry, kindInvalid
	}
	report.RunID = runID
	entry.Report = report

	if !report.Pass && p.ledger != nil {
		item, err := p.ledger.Reject(ctx, p.rejection(c, report))
		if err != nil {
			log.Error("audit: record rejection failed", zap.Error(err))
		} else {
			entry.RejectionID = item.ID
			report.Status = model.AuditStatusPendingReview
		}
	}
	return entry, kindScored
}

func skippedEntry(c *model.Property, cause error) model.BatchEntry {
	if cause == nil {
		cause = context.Canceled
	}
	entry := model.BatchEntry{Error: "skipped: " + cause.Error()}
	if c != nil {
		entry.CandidateID = c.ID
		entry.Title = c.DisplayTitle()
	}
	return entry
}

// aggregate fills the batch counters from the completed entries.
func aggregate(batch *model.BatchReport, kinds []entryKind) {
	var scores stats.Float64Data
	for i, k := range kinds {
		switch k {
		case kindSkipped:
			batch.Skipped++
		case kindInvalid:
			batch.Invalid++
		case kindDuplicate:
			batch.Duplicates++
		case kindScored:
			r := batch.Entries[i].Report
			batch.Scored++
			if r.Pass {
				batch.Passed++
			} else {
				batch.Failed++
			}
			scores = append(scores, float64(r.OverallScore))
		}
	}
	if len(scores) == 0 {
		return
	}
	if mean, err := stats.Mean(scores); err == nil {
		batch.MeanOverall = round2(mean)
	}
	if median, err := stats.Median(scores); err == nil {
		batch.MedianOverall = round2(median)
	}
}

func round2(v float64) float64 {
	r, err := stats.Round(v, 2)
	if err != nil {
		return v
	}
	return r
}

// IsInvalid reports whether err marks a candidate that cannot be scored.
func IsInvalid(err error) bool {
	return errors.Is(err, model.ErrInvalidCandidate)
}
