package dedup

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-engine/internal/metrics"
	"github.com/sells-group/deal-engine/internal/model"
)

// ErrOperatorRequired is returned when a purge has no operator attached.
var ErrOperatorRequired = eris.New("operator id required")

// Deduper applies fingerprinting to listings over an Index.
type Deduper struct {
	idx     Index
	metrics *metrics.Recorder
}

// New creates a Deduper over idx. m may be nil.
func New(idx Index, m *metrics.Recorder) *Deduper {
	return &Deduper{idx: idx, metrics: m}
}

// IsDuplicate reports whether p has been recorded before, without recording it.
func (d *Deduper) IsDuplicate(ctx context.Context, p *model.Property) (bool, error) {
	return d.idx.Seen(ctx, PropertyFingerprint(p))
}

// RecordSeen marks p as processed.
func (d *Deduper) RecordSeen(ctx context.Context, p *model.Property) error {
	return d.idx.Record(ctx, PropertyFingerprint(p))
}

// Claim records p and reports whether it was already present. Of several
// concurrent claims for the same content exactly one sees false.
func (d *Deduper) Claim(ctx context.Context, p *model.Property) (fp string, duplicate bool, err error) {
	fp = PropertyFingerprint(p)
	duplicate, err = d.idx.SeenAndRecord(ctx, fp)
	if err != nil {
		return fp, false, err
	}
	if duplicate {
		d.metrics.DedupHit()
		zap.L().Debug("dedup: duplicate skipped",
			zap.String("candidate_id", p.ID),
			zap.String("fingerprint", fp[:12]),
		)
	}
	return fp, duplicate, nil
}

// Size returns the number of recorded fingerprints.
func (d *Deduper) Size(ctx context.Context) (int64, error) {
	return d.idx.Size(ctx)
}

// Purge clears the whole index. It is a privileged action and is logged
// with the operator who requested it.
func (d *Deduper) Purge(ctx context.Context, operatorID string) error {
	if strings.TrimSpace(operatorID) == "" {
		return ErrOperatorRequired
	}
	before, _ := d.idx.Size(ctx)
	if err := d.idx.Purge(ctx); err != nil {
		return err
	}
	zap.L().Warn("dedup: index purged",
		zap.String("operator", operatorID),
		zap.Int64("removed", before),
	)
	return nil
}
