package model

import "time"

// RejectedItem records why a candidate failed audit and whether an operator
// approved it anyway. Rows are never deleted.
type RejectedItem struct {
	ID              string     `json:"id"`
	CandidateID     string     `json:"candidate_id"`
	ReportID        string     `json:"report_id,omitempty"`
	Title           string     `json:"title"`
	Source          string     `json:"source"`
	RejectionReason string     `json:"rejection_reason"`
	RejectionAgent  string     `json:"rejection_agent"`
	ConfidenceScore int        `json:"confidence_score"`
	CanOverride     bool       `json:"can_override"`
	Overridden      bool       `json:"overridden"`
	OverriddenBy    string     `json:"overridden_by,omitempty"`
	OverriddenAt    *time.Time `json:"overridden_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Status maps the item onto the audit state machine.
func (r *RejectedItem) Status() AuditStatus {
	if r.Overridden {
		return AuditStatusOverridden
	}
	return AuditStatusPendingReview
}

// RuleType distinguishes whitelist from blacklist domain rules.
type RuleType string

const (
	RuleWhitelist RuleType = "whitelist"
	RuleBlacklist RuleType = "blacklist"
)

// DomainRule is an operator-managed source-domain policy entry.
type DomainRule struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	RuleType  RuleType  `json:"rule_type"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
