package model

import "time"

// GeoPoint is a latitude/longitude pair in decimal degrees.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// BuyBoxCriteria is an investor's saved acquisition criteria.
// Nil bounds are open-ended. Superseded boxes are deactivated, not deleted.
type BuyBoxCriteria struct {
	ID                  string         `json:"id"`
	InvestorID          string         `json:"investor_id"`
	Name                string         `json:"name"`
	PropertyTypes       []PropertyType `json:"property_types,omitempty"`
	DealTypes           []DealType     `json:"deal_types,omitempty"`
	MinPrice            *float64       `json:"min_price,omitempty"`
	MaxPrice            *float64       `json:"max_price,omitempty"`
	MinARV              *float64       `json:"min_arv,omitempty"`
	MaxARV              *float64       `json:"max_arv,omitempty"`
	MinEquityPercentage *float64       `json:"min_equity_percentage,omitempty"`
	MaxRadiusMiles      *float64       `json:"max_radius_miles,omitempty"`
	// TargetPoints are resolved centers for the radius constraint.
	TargetPoints        []GeoPoint  `json:"target_points,omitempty"`
	PreferredConditions []Condition `json:"preferred_conditions,omitempty"`
	TargetCities        []string    `json:"target_cities,omitempty"`
	TargetStates        []string    `json:"target_states,omitempty"`
	TargetZipCodes      []string    `json:"target_zip_codes,omitempty"`
	IsActive            bool        `json:"is_active"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// DealMetrics are derived investment figures for a property.
type DealMetrics struct {
	ARV              float64  `json:"arv"`
	GrossEquity      float64  `json:"gross_equity"`
	EquityPercentage float64  `json:"equity_percentage"`
	MAO              float64  `json:"mao"`
	ProjectedProfit  float64  `json:"projected_profit"`
	ROI              float64  `json:"roi"`
	Score            int      `json:"score"`
	RiskFactors      []string `json:"risk_factors,omitempty"`
}

// Criterion names used in match explanations.
const (
	CriterionPropertyType = "property_type"
	CriterionDealType     = "deal_type"
	CriterionPrice        = "price"
	CriterionLocation     = "location"
	CriterionARV          = "arv"
	CriterionEquity       = "equity_percentage"
	CriterionCondition    = "condition"
)

// CriterionResult explains a single satisfied or violated matching rule.
type CriterionResult struct {
	Criterion string  `json:"criterion"`
	Weight    float64 `json:"weight"`
	Hard      bool    `json:"hard"`
	Detail    string  `json:"detail"`
}

// MatchResult is the ephemeral fit of one property against one buy box.
type MatchResult struct {
	BuyBoxID          string            `json:"buy_box_id,omitempty"`
	PropertyID        string            `json:"property_id,omitempty"`
	FitScore          int               `json:"fit_score"`
	PassesHardFilters bool              `json:"passes_hard_filters"`
	MatchedCriteria   []CriterionResult `json:"matched_criteria"`
	UnmatchedCriteria []CriterionResult `json:"unmatched_criteria"`
}

// Actionable reports whether the match may appear in "matched" lists.
// A hard-filter failure is an automatic exclusion whatever the fit score.
func (m MatchResult) Actionable() bool {
	return m.PassesHardFilters
}
