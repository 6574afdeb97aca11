// Package matching scores properties against investor buy boxes.
package matching

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-engine/internal/dealmath"
	"github.com/sells-group/deal-engine/internal/metrics"
	"github.com/sells-group/deal-engine/internal/model"
	"github.com/sells-group/deal-engine/pkg/geocode"
)

// Weights are the relative importance of the soft criteria.
type Weights struct {
	ARV       float64 `mapstructure:"arv" yaml:"arv" json:"arv" validate:"gte=0"`
	Equity    float64 `mapstructure:"equity" yaml:"equity" json:"equity" validate:"gte=0"`
	Condition float64 `mapstructure:"condition" yaml:"condition" json:"condition" validate:"gte=0"`
}

// DefaultWeights favors equity over ARV and condition.
func DefaultWeights() Weights {
	return Weights{ARV: 30, Equity: 40, Condition: 30}
}

// evaluation accumulates criterion outcomes for one match.
type evaluation struct {
	res        model.MatchResult
	satisfied  float64
	constraint float64
}

func (e *evaluation) hard(criterion string, ok bool, detail string) {
	c := model.CriterionResult{Criterion: criterion, Hard: true, Detail: detail}
	if ok {
		e.res.MatchedCriteria = append(e.res.MatchedCriteria, c)
		return
	}
	e.res.PassesHardFilters = false
	e.res.UnmatchedCriteria = append(e.res.UnmatchedCriteria, c)
}

func (e *evaluation) soft(criterion string, weight float64, ok bool, detail string) {
	c := model.CriterionResult{Criterion: criterion, Weight: weight, Detail: detail}
	e.constraint += weight
	if ok {
		e.satisfied += weight
		e.res.MatchedCriteria = append(e.res.MatchedCriteria, c)
		return
	}
	e.res.UnmatchedCriteria = append(e.res.UnmatchedCriteria, c)
}

// Match scores p against box. m may be nil, in which case ARV and equity
// criteria are treated as unconstrained. The ARV criterion is also skipped
// when p declares no ARV, since m then carries the asking price in its place.
// Match has no side effects.
func Match(p *model.Property, m *model.DealMetrics, box *model.BuyBoxCriteria, w Weights) model.MatchResult {
	e := &evaluation{res: model.MatchResult{
		BuyBoxID:          box.ID,
		PropertyID:        p.ID,
		PassesHardFilters: true,
		MatchedCriteria:   []model.CriterionResult{},
		UnmatchedCriteria: []model.CriterionResult{},
	}}

	if len(box.PropertyTypes) > 0 {
		ok := slices.Contains(box.PropertyTypes, p.PropertyType)
		e.hard(model.CriterionPropertyType, ok, fmt.Sprintf("property type %q, wanted %v", p.PropertyType, box.PropertyTypes))
	}
	if len(box.DealTypes) > 0 {
		ok := slices.Contains(box.DealTypes, p.DealType)
		e.hard(model.CriterionDealType, ok, fmt.Sprintf("deal type %q, wanted %v", p.DealType, box.DealTypes))
	}
	if box.MinPrice != nil || box.MaxPrice != nil {
		ok, detail := inRange("price", p.Price, box.MinPrice, box.MaxPrice)
		e.hard(model.CriterionPrice, ok, detail)
	}
	if ok, detail, constrained := location(p, box); constrained {
		e.hard(model.CriterionLocation, ok, detail)
	}

	if m != nil && hasARV(p) && (box.MinARV != nil || box.MaxARV != nil) {
		arv := m.ARV
		ok, detail := inRange("arv", &arv, box.MinARV, box.MaxARV)
		e.soft(model.CriterionARV, w.ARV, ok, detail)
	}
	if m != nil && box.MinEquityPercentage != nil {
		ok := m.EquityPercentage >= *box.MinEquityPercentage
		e.soft(model.CriterionEquity, w.Equity, ok,
			fmt.Sprintf("equity %.1f%%, minimum %.1f%%", m.EquityPercentage, *box.MinEquityPercentage))
	}
	if len(box.PreferredConditions) > 0 {
		ok := slices.Contains(box.PreferredConditions, p.Condition)
		e.soft(model.CriterionCondition, w.Condition, ok,
			fmt.Sprintf("condition %q, preferred %v", p.Condition, box.PreferredConditions))
	}

	switch {
	case e.constraint > 0:
		e.res.FitScore = int(math.Round(100 * e.satisfied / e.constraint))
	case e.res.PassesHardFilters:
		e.res.FitScore = 100
	default:
		e.res.FitScore = 0
	}
	return e.res
}

func hasARV(p *model.Property) bool {
	return p.ARV != nil && *p.ARV > 0
}

func inRange(label string, v, lo, hi *float64) (bool, string) {
	bounds := fmt.Sprintf("[%s, %s]", bound(lo), bound(hi))
	if v == nil {
		return false, fmt.Sprintf("%s unknown, wanted %s", label, bounds)
	}
	ok := (lo == nil || *v >= *lo) && (hi == nil || *v <= *hi)
	return ok, fmt.Sprintf("%s %.0f, wanted %s", label, *v, bounds)
}

func bound(v *float64) string {
	if v == nil {
		return "*"
	}
	return fmt.Sprintf("%.0f", *v)
}

// location reports whether p satisfies any of the box's location
// constraints. constrained is false when the box sets none.
func location(p *model.Property, box *model.BuyBoxCriteria) (ok bool, detail string, constrained bool) {
	radius := box.MaxRadiusMiles != nil && len(box.TargetPoints) > 0
	if len(box.TargetCities) == 0 && len(box.TargetStates) == 0 && len(box.TargetZipCodes) == 0 && !radius {
		return false, "", false
	}
	switch {
	case containsFold(box.TargetCities, p.City):
		return true, fmt.Sprintf("city %s targeted", p.City), true
	case containsFold(box.TargetStates, p.State):
		return true, fmt.Sprintf("state %s targeted", p.State), true
	case containsFold(box.TargetZipCodes, p.ZipCode):
		return true, fmt.Sprintf("zip %s targeted", p.ZipCode), true
	}
	if radius {
		if pt := propertyPoint(p); pt != nil {
			d, _ := nearest(pt, box.TargetPoints)
			if d <= *box.MaxRadiusMiles {
				return true, fmt.Sprintf("%.1f mi from target, within %.1f mi", d, *box.MaxRadiusMiles), true
			}
			return false, fmt.Sprintf("%.1f mi from nearest target, limit %.1f mi", d, *box.MaxRadiusMiles), true
		}
	}
	return false, fmt.Sprintf("%s outside target area", p.FullAddress()), true
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, addr geocode.AddressInput) (*geocode.Result, error)
}

// Engine ranks matches using configured weights and deal math.
type Engine struct {
	weights    Weights
	governance dealmath.Governance
	metrics    *metrics.Recorder
	geocoder   Geocoder
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithGeocoder lets Locate fill in missing property coordinates.
func WithGeocoder(g Geocoder) EngineOption {
	return func(e *Engine) { e.geocoder = g }
}

// NewEngine creates an Engine. m may be nil.
func NewEngine(w Weights, g dealmath.Governance, m *metrics.Recorder, opts ...EngineOption) *Engine {
	e := &Engine{weights: w, governance: g, metrics: m}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Locate sets p's coordinates from its address when they are missing and a
// geocoder is configured. An unmatched address leaves p unchanged.
func (e *Engine) Locate(ctx context.Context, p *model.Property) error {
	if e.geocoder == nil || (p.Latitude != nil && p.Longitude != nil) {
		return nil
	}
	res, err := e.geocoder.Geocode(ctx, geocode.AddressInput{
		Street:  p.Address,
		City:    p.City,
		State:   p.State,
		ZipCode: p.ZipCode,
	})
	if err != nil {
		return eris.Wrapf(err, "matching: locate %s", p.ID)
	}
	if res.Matched {
		p.Latitude = model.Float(res.Latitude)
		p.Longitude = model.Float(res.Longitude)
	}
	return nil
}

// Match computes deal metrics for p and scores it against box.
func (e *Engine) Match(p *model.Property, box *model.BuyBoxCriteria) model.MatchResult {
	res := Match(p, dealmath.Calculate(p, e.governance), box, e.weights)
	e.metrics.Matched(res.PassesHardFilters)
	return res
}

// Rank evaluates p against every active box and returns the actionable
// matches, best fit first.
func (e *Engine) Rank(p *model.Property, boxes []model.BuyBoxCriteria) []model.MatchResult {
	m := dealmath.Calculate(p, e.governance)
	var out []model.MatchResult
	for i := range boxes {
		if !boxes[i].IsActive {
			continue
		}
		res := Match(p, m, &boxes[i], e.weights)
		e.metrics.Matched(res.PassesHardFilters)
		if res.Actionable() {
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FitScore != out[j].FitScore {
			return out[i].FitScore > out[j].FitScore
		}
		return out[i].BuyBoxID < out[j].BuyBoxID
	})
	return out
}

// RankProperties evaluates many properties against one box and returns
// the actionable matches, best fit first.
func (e *Engine) RankProperties(box *model.BuyBoxCriteria, props []model.Property) []model.MatchResult {
	var out []model.MatchResult
	for i := range props {
		res := e.Match(&props[i], box)
		if res.Actionable() {
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FitScore != out[j].FitScore {
			return out[i].FitScore > out[j].FitScore
		}
		return out[i].PropertyID < out[j].PropertyID
	})
	return out
}
