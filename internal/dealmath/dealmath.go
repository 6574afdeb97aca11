// Package dealmath derives investment metrics (equity, MAO, ROI) from a
// property's declared financials.
package dealmath

import (
	"fmt"
	"math"

	"github.com/sells-group/deal-engine/internal/model"
)

// Governance holds the financial assumptions behind every calculation.
type Governance struct {
	ClosingCosts       float64 `mapstructure:"closing_costs" yaml:"closing_costs" json:"closing_costs" validate:"gte=0,lte=1"`
	HoldingCosts       float64 `mapstructure:"holding_costs" yaml:"holding_costs" json:"holding_costs" validate:"gte=0,lte=1"`
	MAOFactor          float64 `mapstructure:"mao_factor" yaml:"mao_factor" json:"mao_factor" validate:"gt=0,lte=1"`
	LowEquityThreshold float64 `mapstructure:"low_equity_threshold" yaml:"low_equity_threshold" json:"low_equity_threshold" validate:"gte=0,lte=100"`
	HighROIThreshold   float64 `mapstructure:"high_roi_threshold" yaml:"high_roi_threshold" json:"high_roi_threshold" validate:"gte=0"`
	// DeviationPercent is the relative drift between a reported and a
	// computed figure that produces a cross-check note.
	DeviationPercent float64 `mapstructure:"deviation_percent" yaml:"deviation_percent" json:"deviation_percent" validate:"gte=0,lte=100"`
}

// DefaultGovernance returns the standard assumptions: 3% closing, 2% holding,
// the 70% rule, and a 10% low-equity margin.
func DefaultGovernance() Governance {
	return Governance{
		ClosingCosts:       0.03,
		HoldingCosts:       0.02,
		MAOFactor:          0.70,
		LowEquityThreshold: 10,
		HighROIThreshold:   200,
		DeviationPercent:   5,
	}
}

// Risk factor messages.
const (
	RiskMissingARV   = "ARV is missing; using asking price as proxy"
	RiskNoRepairs    = "no repair estimate provided"
	riskLowEquityFmt = "low equity margin (<%.0f%%)"
)

// Calculate computes deal metrics for p. It returns nil when the asking
// price is missing, since nothing else can be derived without it.
func Calculate(p *model.Property, g Governance) *model.DealMetrics {
	if p == nil || p.Price == nil || *p.Price <= 0 {
		return nil
	}
	price := *p.Price
	arv := price
	if p.ARV != nil && *p.ARV > 0 {
		arv = *p.ARV
	}
	repairs := deref(p.RepairEstimate)
	assignment := deref(p.AssignmentFee)

	costBasis := price + repairs + assignment
	equity := arv - costBasis
	equityPct := 0.0
	if arv > 0 {
		equityPct = equity / arv * 100
	}

	invested := costBasis + arv*g.ClosingCosts + arv*g.HoldingCosts
	profit := arv - invested
	roi := 0.0
	if invested > 0 {
		roi = profit / invested * 100
	}

	m := &model.DealMetrics{
		ARV:              arv,
		GrossEquity:      equity,
		EquityPercentage: equityPct,
		MAO:              arv*g.MAOFactor - repairs - assignment,
		ProjectedProfit:  profit,
		ROI:              roi,
		Score:            score(equityPct, roi, p.Condition),
	}

	if p.ARV == nil || *p.ARV <= 0 {
		m.RiskFactors = append(m.RiskFactors, RiskMissingARV)
	}
	if equityPct < g.LowEquityThreshold {
		m.RiskFactors = append(m.RiskFactors, fmt.Sprintf(riskLowEquityFmt, g.LowEquityThreshold))
	}
	if repairs == 0 && p.Condition != model.ConditionExcellent {
		m.RiskFactors = append(m.RiskFactors, RiskNoRepairs)
	}
	return m
}

func score(equityPct, roi float64, cond model.Condition) int {
	s := 50
	if equityPct > 20 {
		s += 20
	}
	if equityPct > 30 {
		s += 10
	}
	if roi > 15 {
		s += 10
	}
	if roi > 30 {
		s += 10
	}
	if cond == model.ConditionDistressed || cond == model.ConditionPoor {
		s -= 10
	}
	return max(0, min(100, s))
}

// Note is a non-scoring observation from comparing reported figures
// against computed ones.
type Note struct {
	Field   string
	Message string
}

// CrossCheck compares figures reported by the listing source (equity
// percentage, AI score) and sanity bounds against m. Notes never change a score.
func CrossCheck(p *model.Property, m *model.DealMetrics, g Governance) []Note {
	if p == nil || m == nil {
		return nil
	}
	var notes []Note

	if p.EquityPercentage != nil {
		reported := *p.EquityPercentage
		if math.Abs(reported-m.EquityPercentage) > g.DeviationPercent {
			notes = append(notes, Note{
				Field:   "equity_percentage",
				Message: fmt.Sprintf("reported equity %.1f%% deviates from computed %.1f%%", reported, m.EquityPercentage),
			})
		}
	}
	if p.AIScore != nil {
		reported := *p.AIScore
		if math.Abs(reported-float64(m.Score)) > g.DeviationPercent {
			notes = append(notes, Note{
				Field:   "ai_score",
				Message: fmt.Sprintf("reported score %.0f deviates from computed %d", reported, m.Score),
			})
		}
	}
	if p.Sqft != nil && *p.Sqft > 0 && p.Price != nil {
		ppsf := *p.Price / *p.Sqft
		if ppsf < 10 || ppsf > 2000 {
			notes = append(notes, Note{
				Field:   model.FieldPrice,
				Message: fmt.Sprintf("price per sqft ($%.0f) looks anomalous", ppsf),
			})
		}
	}
	if g.HighROIThreshold > 0 && m.ROI > g.HighROIThreshold {
		notes = append(notes, Note{Field: "roi", Message: fmt.Sprintf("projected ROI above %.0f%%", g.HighROIThreshold)})
	}
	if m.EquityPercentage < 0 {
		notes = append(notes, Note{Field: "equity_percentage", Message: "negative equity deal"})
	}
	return notes
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
