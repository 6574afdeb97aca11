package config

import (
	"errors"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-engine/internal/diff"
)

// ErrMalformedPolicy is returned when an audit policy fails validation.
var ErrMalformedPolicy = eris.New("config: malformed policy")

// ScoreWeights weights the four audit sub-scores. They must sum to 100.
type ScoreWeights struct {
	Integrity  float64 `yaml:"integrity" mapstructure:"integrity" json:"integrity" validate:"gte=0,lte=100"`
	Structural float64 `yaml:"structural" mapstructure:"structural" json:"structural" validate:"gte=0,lte=100"`
	Relevance  float64 `yaml:"relevance" mapstructure:"relevance" json:"relevance" validate:"gte=0,lte=100"`
	Crosscheck float64 `yaml:"crosscheck" mapstructure:"crosscheck" json:"crosscheck" validate:"gte=0,lte=100"`
}

// Sum returns the total weight.
func (w ScoreWeights) Sum() float64 {
	return w.Integrity + w.Structural + w.Relevance + w.Crosscheck
}

// Policy controls how candidates are reconciled and scored.
type Policy struct {
	Tolerance             float64            `yaml:"tolerance" mapstructure:"tolerance" json:"tolerance" validate:"gt=0,lt=1"`
	DiscrepancyPenalty    int                `yaml:"discrepancy_penalty" mapstructure:"discrepancy_penalty" json:"discrepancy_penalty" validate:"gte=1,lte=100"`
	FieldTolerances       map[string]float64 `yaml:"field_tolerances" mapstructure:"field_tolerances" json:"field_tolerances,omitempty" validate:"dive,gt=0,lt=1"`
	Weights               ScoreWeights       `yaml:"weights" mapstructure:"weights" json:"weights"`
	PassThreshold         int                `yaml:"pass_threshold" mapstructure:"pass_threshold" json:"pass_threshold" validate:"gte=0,lte=100"`
	MinDescriptionLength  int                `yaml:"min_description_length" mapstructure:"min_description_length" json:"min_description_length" validate:"gte=0"`
	AllowCriticalOverride bool               `yaml:"allow_critical_override" mapstructure:"allow_critical_override" json:"allow_critical_override"`
	NegativeKeywords      []string           `yaml:"negative_keywords" mapstructure:"negative_keywords" json:"negative_keywords,omitempty" validate:"dive,required"`
}

// DefaultPolicy returns the standard audit policy.
func DefaultPolicy() Policy {
	return Policy{
		Tolerance:          diff.DefaultTolerance,
		DiscrepancyPenalty: diff.DefaultPenalty,
		Weights: ScoreWeights{
			Integrity:  25,
			Structural: 25,
			Relevance:  25,
			Crosscheck: 25,
		},
		PassThreshold:        70,
		MinDescriptionLength: 20,
		NegativeKeywords:     []string{"scam", "timeshare", "vacation", "fractional", "nft", "crypto"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field bounds and that the sub-score weights sum to 100
// within one point. Every failure wraps ErrMalformedPolicy.
func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
			}
			return eris.Wrapf(ErrMalformedPolicy, "invalid fields: %s", strings.Join(fields, ", "))
		}
		return eris.Wrap(ErrMalformedPolicy, err.Error())
	}
	if sum := p.Weights.Sum(); math.Abs(sum-100) > 1 {
		return eris.Wrapf(ErrMalformedPolicy, "weights sum to %.2f, want 100", sum)
	}
	return nil
}

// DiffConfig returns the diff engine settings for this policy.
func (p Policy) DiffConfig() diff.Config {
	var fields diff.ToleranceTable
	if len(p.FieldTolerances) > 0 {
		fields = make(diff.ToleranceTable, len(p.FieldTolerances))
		for k, v := range p.FieldTolerances {
			fields[strings.ToLower(k)] = v
		}
	}
	return diff.Config{
		Tolerance: p.Tolerance,
		Penalty:   p.DiscrepancyPenalty,
		Fields:    fields,
	}
}
