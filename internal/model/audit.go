package model

import "time"

// Severity ranks an audit alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Agent names identify which checker produced an alert or rejection.
const (
	AgentIntegrity  = "integrity"
	AgentStructural = "structural"
	AgentRelevance  = "relevance"
	AgentCrosscheck = "crosscheck"
)

// Alert is a single severity-tagged audit finding.
type Alert struct {
	Severity Severity `json:"severity"`
	Agent    string   `json:"agent"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

// AuditStatus is the per-candidate audit state.
type AuditStatus string

const (
	AuditStatusScored        AuditStatus = "scored"
	AuditStatusPass          AuditStatus = "pass"
	AuditStatusFail          AuditStatus = "fail"
	AuditStatusPendingReview AuditStatus = "pending_review"
	AuditStatusOverridden    AuditStatus = "overridden"
)

// AuditReport is the immutable scoring outcome for one candidate.
// A later run supersedes it with a new report rather than mutating it.
type AuditReport struct {
	ID              string                `json:"id"`
	RunID           string                `json:"run_id,omitempty"`
	CandidateID     string                `json:"candidate_id"`
	Title           string                `json:"title"`
	IntegrityScore  int                   `json:"integrity_score"`
	StructuralScore int                   `json:"structural_score"`
	RelevanceScore  int                   `json:"relevance_score"`
	CrosscheckScore int                   `json:"crosscheck_score"`
	OverallScore    int                   `json:"overall_score"`
	Pass            bool                  `json:"pass"`
	Status          AuditStatus           `json:"status"`
	Alerts          []Alert               `json:"alerts"`
	Reconciliation  *ReconciliationResult `json:"reconciliation,omitempty"`
	Metrics         *DealMetrics          `json:"metrics,omitempty"`
	TotalDeals      int                   `json:"total_deals"`
	CreatedAt       time.Time             `json:"created_at"`
}

// HasCritical reports whether any alert is critical.
func (r *AuditReport) HasCritical() bool {
	for _, a := range r.Alerts {
		if a.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// FirstAlert returns the most severe alert, preferring earlier alerts on ties.
func (r *AuditReport) FirstAlert() (Alert, bool) {
	rank := map[Severity]int{SeverityCritical: 3, SeverityWarning: 2, SeverityInfo: 1}
	var best Alert
	found := false
	for _, a := range r.Alerts {
		if !found || rank[a.Severity] > rank[best.Severity] {
			best = a
			found = true
		}
	}
	return best, found
}

// BatchEntry is the per-candidate line of a batch run. Exactly one of
// Report, Error or Duplicate describes the outcome.
type BatchEntry struct {
	CandidateID string       `json:"candidate_id"`
	Title       string       `json:"title"`
	Report      *AuditReport `json:"report,omitempty"`
	RejectionID string       `json:"rejection_id,omitempty"`
	Error       string       `json:"error,omitempty"`
	Duplicate   bool         `json:"duplicate,omitempty"`
}

// BatchReport aggregates a completed audit run.
type BatchReport struct {
	RunID         string       `json:"run_id"`
	TotalDeals    int          `json:"total_deals"`
	Scored        int          `json:"scored"`
	Passed        int          `json:"passed"`
	Failed        int          `json:"failed"`
	Invalid       int          `json:"invalid"`
	Duplicates    int          `json:"duplicates"`
	Skipped       int          `json:"skipped"`
	MeanOverall   float64      `json:"mean_overall"`
	MedianOverall float64      `json:"median_overall"`
	Entries       []BatchEntry `json:"entries"`
	CreatedAt     time.Time    `json:"created_at"`
}
