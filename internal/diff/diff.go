// Package diff compares declared property values with independently sourced
// reference values and turns the disagreement into a confidence score.
package diff

import (
	"math"
	"sort"

	"github.com/sells-group/deal-engine/internal/model"
)

const (
	// DefaultTolerance is the relative difference at or below which two values agree.
	DefaultTolerance = 0.05
	// DefaultPenalty is the confidence lost per discrepancy.
	DefaultPenalty = 20
)

// ToleranceTable overrides the uniform tolerance for individual fields.
type ToleranceTable map[string]float64

// Config controls comparison. Zero values fall back to the defaults.
type Config struct {
	Tolerance float64
	Penalty   int
	Fields    ToleranceTable
}

// Result is the per-field classification plus the overall confidence.
type Result struct {
	ConfidenceScore int
	Matches         map[string]float64
	Discrepancies   map[string]model.Discrepancy
	// Skipped lists fields present on only one side.
	Skipped []string
}

// Compare classifies every field using a single tolerance and the default penalty.
func Compare(declared, reference map[string]float64, tolerance float64) Result {
	return Config{Tolerance: tolerance}.Compare(declared, reference)
}

// CompareWithTable is Compare with per-field tolerance overrides.
func CompareWithTable(declared, reference map[string]float64, tolerance float64, table ToleranceTable) Result {
	return Config{Tolerance: tolerance, Fields: table}.Compare(declared, reference)
}

// Compare classifies each field present on both sides as a match or a
// discrepancy. Fields missing on either side are skipped.
func (c Config) Compare(declared, reference map[string]float64) Result {
	res := Result{
		Matches:       make(map[string]float64),
		Discrepancies: make(map[string]model.Discrepancy),
	}

	for _, field := range unionKeys(declared, reference) {
		d, okD := declared[field]
		r, okR := reference[field]
		if !okD || !okR || math.IsNaN(d) || math.IsNaN(r) {
			res.Skipped = append(res.Skipped, field)
			continue
		}
		if Within(d, r, c.toleranceFor(field)) {
			res.Matches[field] = r
		} else {
			res.Discrepancies[field] = model.Discrepancy{Declared: d, Record: r}
		}
	}

	res.ConfidenceScore = Confidence(len(res.Discrepancies), c.penalty())
	return res
}

// Within reports whether |a-b| / max(a,b) <= tolerance. Two zeros agree.
func Within(a, b, tolerance float64) bool {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return true
	}
	return math.Abs(a-b)/denom <= tolerance
}

// Confidence returns max(0, 100 - penalty*discrepancies).
func Confidence(discrepancies, penalty int) int {
	score := 100 - penalty*discrepancies
	if score < 0 {
		return 0
	}
	return score
}

// Apply copies a diff result onto a reconciliation result.
func (r Result) Apply(out *model.ReconciliationResult) {
	out.ConfidenceScore = r.ConfidenceScore
	out.VerifiedMatches = r.Matches
	out.Discrepancies = r.Discrepancies
}

func (c Config) toleranceFor(field string) float64 {
	if t, ok := c.Fields[field]; ok && t >= 0 {
		return t
	}
	if c.Tolerance > 0 {
		return c.Tolerance
	}
	return DefaultTolerance
}

func (c Config) penalty() int {
	if c.Penalty > 0 {
		return c.Penalty
	}
	return DefaultPenalty
}

func unionKeys(a, b map[string]float64) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
