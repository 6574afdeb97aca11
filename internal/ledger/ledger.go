// Package ledger is the append-only record of audit rejections and the
// operator overrides applied to them.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-engine/internal/metrics"
	"github.com/sells-group/deal-engine/internal/model"
	"github.com/sells-group/deal-engine/internal/store"
)

var (
	// ErrNotOverridable is returned when an override targets an item that
	// does not allow it or was already overridden. No state changes.
	ErrNotOverridable = eris.New("ledger: item is not overridable")
	// ErrNotFound is returned for unknown item ids.
	ErrNotFound = store.ErrNotFound
	// ErrOperatorRequired is returned when an override has no operator.
	ErrOperatorRequired = eris.New("ledger: operator id required")
)

// RejectRequest describes a failed candidate entering the ledger.
type RejectRequest struct {
	Candidate   *model.Property
	ReportID    string
	Reason      string
	Agent       string
	Confidence  int
	CanOverride bool
}

// Ledger records rejections and overrides over a store.LedgerStore.
type Ledger struct {
	st      store.LedgerStore
	metrics *metrics.Recorder
	now     func() time.Time
}

// New creates a Ledger. m may be nil.
func New(st store.LedgerStore, m *metrics.Recorder) *Ledger {
	return &Ledger{st: st, metrics: m, now: time.Now}
}

// Reject appends a rejection for req.Candidate.
func (l *Ledger) Reject(ctx context.Context, req RejectRequest) (*model.RejectedItem, error) {
	if req.Candidate == nil {
		return nil, eris.Wrap(model.ErrInvalidCandidate, "ledger: reject without candidate")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, eris.New("ledger: rejection reason required")
	}
	item := &model.RejectedItem{
		CandidateID:     req.Candidate.ID,
		ReportID:        req.ReportID,
		Title:           req.Candidate.DisplayTitle(),
		Source:          req.Candidate.Source,
		RejectionReason: req.Reason,
		RejectionAgent:  req.Agent,
		ConfidenceScore: clamp(req.Confidence),
		CanOverride:     req.CanOverride,
		CreatedAt:       l.now().UTC(),
	}
	if err := l.st.CreateRejection(ctx, item); err != nil {
		return nil, eris.Wrap(err, "ledger: create rejection")
	}
	l.metrics.Rejected()
	zap.L().Info("ledger: candidate rejected",
		zap.String("item_id", item.ID),
		zap.String("candidate_id", item.CandidateID),
		zap.String("agent", item.RejectionAgent),
		zap.String("reason", item.RejectionReason),
		zap.Bool("can_override", item.CanOverride),
	)
	return item, nil
}

// Override approves a rejected item on behalf of operatorID. The original
// audit report is never touched; publication checks consult Approved.
func (l *Ledger) Override(ctx context.Context, itemID, operatorID string) (*model.RejectedItem, error) {
	if strings.TrimSpace(operatorID) == "" {
		return nil, ErrOperatorRequired
	}
	item, err := l.st.MarkOverridden(ctx, itemID, operatorID, l.now())
	switch {
	case errors.Is(err, store.ErrConflict):
		return nil, eris.Wrapf(ErrNotOverridable, "item %s", itemID)
	case errors.Is(err, store.ErrNotFound):
		return nil, eris.Wrapf(ErrNotFound, "ledger: item %s", itemID)
	case err != nil:
		return nil, eris.Wrap(err, "ledger: override")
	}
	l.metrics.Overridden()
	zap.L().Warn("ledger: rejection overridden",
		zap.String("item_id", item.ID),
		zap.String("candidate_id", item.CandidateID),
		zap.String("operator", operatorID),
	)
	return item, nil
}

// Get returns one ledger item.
func (l *Ledger) Get(ctx context.Context, itemID string) (*model.RejectedItem, error) {
	item, err := l.st.GetRejection(ctx, itemID)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: get")
	}
	return item, nil
}

// List returns ledger items matching filter, newest first.
func (l *Ledger) List(ctx context.Context, filter store.RejectionFilter) ([]model.RejectedItem, error) {
	items, err := l.st.ListRejections(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list")
	}
	return items, nil
}

// Approved is the publication check: a candidate is publishable when its
// report passed or its rejection was overridden.
func Approved(report *model.AuditReport, item *model.RejectedItem) bool {
	if report != nil && report.Pass {
		return true
	}
	return item != nil && item.Overridden
}

func clamp(v int) int {
	return max(0, min(100, v))
}
