package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deal-engine/internal/config"
	"github.com/sells-group/deal-engine/internal/dealmath"
	"github.com/sells-group/deal-engine/internal/model"
	"github.com/sells-group/deal-engine/internal/rules"
)

func completeProperty() *model.Property {
	return &model.Property{
		ID:           "c1",
		Title:        "3/2 ranch near downtown",
		Source:       "listings.example.com",
		Link:         "https://listings.example.com/deals/1",
		Description:  "Solid brick ranch with a new roof and original hardwood floors.",
		Address:      "12 Elm St",
		City:         "Austin",
		State:        "TX",
		Price:        model.Float(200000),
		Bedrooms:     model.Float(3),
		Bathrooms:    model.Float(2),
		Sqft:         model.Float(1200),
		PropertyType: model.PropertyTypeSingleFamily,
		Condition:    model.ConditionFair,
	}
}

func TestIntegrity_AlertSeverities(t *testing.T) {
	t.Parallel()

	rec := &model.ReconciliationResult{
		ConfidenceScore: 40,
		Discrepancies: map[string]model.Discrepancy{
			model.FieldYearBuilt: {Declared: 1990, Record: 1975},
			model.FieldPrice:     {Declared: 200000, Record: 150000},
			model.FieldSqft:      {Declared: 1200, Record: 1000},
		},
		Synthetic: true,
	}

	got := integrity(rec)
	assert.Equal(t, 40, got.score)
	require.Len(t, got.alerts, 4)

	assert.Equal(t, model.FieldPrice, got.alerts[0].Field)
	assert.Equal(t, model.SeverityCritical, got.alerts[0].Severity)
	assert.Contains(t, got.alerts[0].Message, "200000")
	assert.Equal(t, model.FieldSqft, got.alerts[1].Field)
	assert.Equal(t, model.SeverityWarning, got.alerts[1].Severity)
	assert.Equal(t, model.FieldYearBuilt, got.alerts[2].Field)
	assert.Equal(t, model.SeverityInfo, got.alerts[2].Severity)
	assert.Equal(t, model.SeverityInfo, got.alerts[3].Severity)
	assert.Contains(t, got.alerts[3].Message, "synthetic")

	for _, a := range got.alerts {
		assert.Equal(t, model.AgentIntegrity, a.Agent)
	}
}

func TestIntegrity_NotReconciled(t *testing.T) {
	t.Parallel()

	got := integrity(nil)
	assert.Zero(t, got.score)
	assert.Empty(t, got.alerts)
}

func TestStructural(t *testing.T) {
	t.Parallel()

	full := structural(completeProperty(), rules.Verdict{})
	assert.Equal(t, 100, full.score)
	assert.Empty(t, full.alerts)

	p := completeProperty()
	p.Bedrooms = nil
	p.Condition = ""
	partial := structural(p, rules.Verdict{})
	assert.Equal(t, 71, partial.score)
	require.Len(t, partial.alerts, 2)
	assert.Equal(t, model.FieldBedrooms, partial.alerts[0].Field)
	assert.Equal(t, "condition", partial.alerts[1].Field)
	assert.Equal(t, model.SeverityWarning, partial.alerts[0].Severity)

	whitelisted := structural(p, rules.Verdict{Whitelisted: true})
	assert.Equal(t, 100, whitelisted.score)
	assert.Empty(t, whitelisted.alerts)
}

func TestRelevance(t *testing.T) {
	t.Parallel()

	keywords := config.DefaultPolicy().NegativeKeywords
	whitelist := rules.NewRuleSet([]model.DomainRule{{Domain: "zillow.com", RuleType: model.RuleWhitelist}})

	tests := []struct {
		name    string
		mutate  func(p *model.Property)
		verdict func(p *model.Property) rules.Verdict
		want    int
		alerts  int
	}{
		{"complete", func(*model.Property) {}, nil, 100, 0},
		{"missing link", func(p *model.Property) { p.Link = "" }, nil, 80, 1},
		{"thin description", func(p *model.Property) { p.Description = "Nice house" }, nil, 90, 1},
		{"empty description is not thin", func(p *model.Property) { p.Description = "" }, nil, 100, 0},
		{"negative keyword in title", func(p *model.Property) { p.Title = "Timeshare week for sale" }, nil, 70, 1},
		{"unlisted source", func(*model.Property) {}, func(p *model.Property) rules.Verdict {
			return whitelist.Classify(p.Link, p.Source)
		}, 100, 1},
		{"stacked penalties", func(p *model.Property) {
			p.Description = "crypto deal"
		}, func(p *model.Property) rules.Verdict {
			return whitelist.Classify(p.Link, p.Source)
		}, 60, 3},
		{"every penalty", func(p *model.Property) {
			p.Link = ""
			p.Source = ""
			p.Description = "nft only"
		}, func(*model.Property) rules.Verdict { return rules.Verdict{Unlisted: true} }, 40, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := completeProperty()
			tt.mutate(p)
			var v rules.Verdict
			if tt.verdict != nil {
				v = tt.verdict(p)
			}
			got := relevance(p, v, 20, keywords)
			assert.Equal(t, tt.want, got.score)
			assert.Len(t, got.alerts, tt.alerts)
		})
	}
}

func TestRelevance_UnlistedIsInformational(t *testing.T) {
	t.Parallel()

	whitelist := rules.NewRuleSet([]model.DomainRule{{Domain: "zillow.com", RuleType: model.RuleWhitelist}})
	p := completeProperty()
	p.Link = "https://austin.craigslist.org/reb/d/123.html"
	p.Source = "craigslist"

	got := relevance(p, whitelist.Classify(p.Link, p.Source), 20, config.DefaultPolicy().NegativeKeywords)
	assert.Equal(t, 100, got.score)
	require.Len(t, got.alerts, 1)
	assert.Equal(t, model.SeverityInfo, got.alerts[0].Severity)
}

func TestRelevance_Blacklisted(t *testing.T) {
	t.Parallel()

	rs := rules.NewRuleSet([]model.DomainRule{{Domain: "scam-deals.com", RuleType: model.RuleBlacklist}})
	p := completeProperty()
	p.Link = "https://www.scam-deals.com/listing/9"

	got := relevance(p, rs.Classify(p.Link, p.Source), 20, nil)
	assert.Zero(t, got.score)
	require.Len(t, got.alerts, 1)
	assert.Equal(t, model.SeverityCritical, got.alerts[0].Severity)
	assert.Contains(t, got.alerts[0].Message, "scam-deals.com")
}

func TestAgreement(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		conf []float64
		want int
		ok   bool
	}{
		{"none", nil, 0, false},
		{"single", []float64{80}, 0, false},
		{"pair", []float64{80, 90}, 90, true},
		{"identical", []float64{75, 75, 75}, 100, true},
		{"three", []float64{100, 100, 70}, 80, true},
		{"opposite", []float64{0, 100}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := agreement(tt.conf)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCrosscheck(t *testing.T) {
	t.Parallel()

	g := dealmath.DefaultGovernance()
	p := completeProperty()

	fallback := crosscheck(p, nil, g, 80)
	assert.Equal(t, 80, fallback.score)
	assert.Empty(t, fallback.alerts)

	p.ExtractionConfidences = []float64{80, 90}
	assert.Equal(t, 90, crosscheck(p, nil, g, 40).score)

	// Reported equity far from computed produces a note, never a score change.
	p.ARV = model.Float(300000)
	p.EquityPercentage = model.Float(80)
	m := dealmath.Calculate(p, g)
	require.NotNil(t, m)
	withNotes := crosscheck(p, m, g, 40)
	assert.Equal(t, 90, withNotes.score)
	require.NotEmpty(t, withNotes.alerts)
	for _, a := range withNotes.alerts {
		assert.Equal(t, model.SeverityInfo, a.Severity)
		assert.Equal(t, model.AgentCrosscheck, a.Agent)
	}
}

func TestOverall(t *testing.T) {
	t.Parallel()

	equal := config.DefaultPolicy().Weights
	assert.Equal(t, 50, Overall(equal, 100, 100, 0, 0))
	assert.Equal(t, 90, Overall(equal, 80, 100, 100, 80))
	assert.Equal(t, 88, Overall(config.ScoreWeights{Integrity: 40, Structural: 20, Relevance: 20, Crosscheck: 20}, 80, 100, 100, 80))
	// Weights within tolerance of 100 are normalized.
	assert.Equal(t, 100, Overall(config.ScoreWeights{Integrity: 25.5, Structural: 25, Relevance: 25, Crosscheck: 25}, 100, 100, 100, 100))
	assert.Zero(t, Overall(config.ScoreWeights{}, 100, 100, 100, 100))
}
