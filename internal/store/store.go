package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-engine/internal/model"
)

var (
	// ErrNotFound is returned when a lookup or update names an unknown id.
	ErrNotFound = eris.New("store: not found")
	// ErrConflict is returned when a conditional update matched no row
	// because the row is not in the required state.
	ErrConflict = eris.New("store: conditional update rejected")
)

// ReportFilter specifies criteria for listing audit reports.
type ReportFilter struct {
	RunID       string `json:"run_id,omitempty"`
	CandidateID string `json:"candidate_id,omitempty"`
	Pass        *bool  `json:"pass,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// RejectionFilter specifies criteria for listing ledger entries. Status is
// pending_review, overridden or empty for both.
type RejectionFilter struct {
	Status   model.AuditStatus `json:"status,omitempty"`
	Agent    string            `json:"agent,omitempty"`
	ReportID string            `json:"report_id,omitempty"`
	Limit    int               `json:"limit,omitempty"`
	Offset   int               `json:"offset,omitempty"`
}

// LedgerStore is the persistence surface of the rejection ledger.
type LedgerStore interface {
	CreateRejection(ctx context.Context, item *model.RejectedItem) error
	GetRejection(ctx context.Context, id string) (*model.RejectedItem, error)
	ListRejections(ctx context.Context, filter RejectionFilter) ([]model.RejectedItem, error)
	// MarkOverridden flips an overridable, not yet overridden item in one
	// conditional write. It returns ErrConflict when the item exists but is
	// not eligible and ErrNotFound when it does not exist.
	MarkOverridden(ctx context.Context, id, operator string, at time.Time) (*model.RejectedItem, error)
}

// Store defines the persistence interface for the deal engine.
type Store interface {
	// Audit reports
	SaveAuditReport(ctx context.Context, report *model.AuditReport) error
	GetAuditReport(ctx context.Context, id string) (*model.AuditReport, error)
	ListAuditReports(ctx context.Context, filter ReportFilter) ([]model.AuditReport, error)
	// SaveBatchReport persists the batch aggregate and every report in it.
	SaveBatchReport(ctx context.Context, batch *model.BatchReport) error
	GetBatchReport(ctx context.Context, runID string) (*model.BatchReport, error)

	// Rejection ledger
	LedgerStore

	// Domain rules
	AddDomainRule(ctx context.Context, rule *model.DomainRule) error
	RemoveDomainRule(ctx context.Context, id string) error
	ListDomainRules(ctx context.Context) ([]model.DomainRule, error)

	// Dedup fingerprints
	InsertFingerprint(ctx context.Context, fp string) (bool, error)
	HasFingerprint(ctx context.Context, fp string) (bool, error)
	PurgeFingerprints(ctx context.Context) (int64, error)
	CountFingerprints(ctx context.Context) (int64, error)

	// Buy boxes
	SaveBuyBox(ctx context.Context, box *model.BuyBoxCriteria) error
	GetBuyBox(ctx context.Context, id string) (*model.BuyBoxCriteria, error)
	// ListActiveBuyBoxes returns active boxes for investorID, or for every
	// investor when investorID is empty.
	ListActiveBuyBoxes(ctx context.Context, investorID string) ([]model.BuyBoxCriteria, error)
	DeactivateBuyBox(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store implementation named by driver.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
