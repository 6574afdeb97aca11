package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Audit(ResultPass, 85)
	r.Audit(ResultFail, 40)
	r.Audit(ResultInvalid, 0)
	r.DedupHit()
	r.DedupHit()
	r.ProviderCall("regrid", "ok")
	r.ProviderCall("rentcast", "timeout")
	r.Reconciled(150*time.Millisecond, true)
	r.Rejected()
	r.Overridden()
	r.Matched(true)
	r.Matched(false)

	assert.InDelta(t, 1, testutil.ToFloat64(r.audits.WithLabelValues(ResultPass)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.audits.WithLabelValues(ResultInvalid)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.dedupHits), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.providerCalls.WithLabelValues("rentcast", "timeout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.syntheticUsed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.overrides), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.rejections), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.matchEvaluation.WithLabelValues("excluded")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "deal_engine_audit_overall_score")
	assert.Contains(t, names, "deal_engine_reconcile_duration_seconds")
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Audit(ResultPass, 90)
		r.DedupHit()
		r.ProviderCall("regrid", "ok")
		r.Reconciled(time.Second, false)
		r.Rejected()
		r.Overridden()
		r.Matched(true)
	})
}
