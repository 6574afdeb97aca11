package audit

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/deal-engine/internal/dealmath"
	"github.com/sells-group/deal-engine/internal/model"
	"github.com/sells-group/deal-engine/internal/rules"
)

// Relevance penalties.
const (
	PenaltyMissingLink     = 20
	PenaltyThinDescription = 10
	PenaltyNegativeKeyword = 30
)

// requiredFields are the attributes a complete listing declares.
var requiredFields = []string{
	"address",
	model.FieldPrice,
	model.FieldBedrooms,
	model.FieldBathrooms,
	model.FieldSqft,
	"property_type",
	"condition",
}

// scored is one agent's sub-score and the alerts it raised.
type scored struct {
	score  int
	alerts []model.Alert
}

// integrity scores the reconciliation. A nil result means the candidate was
// never reconciled and scores zero.
func integrity(rec *model.ReconciliationResult) scored {
	if rec == nil {
		return scored{}
	}
	out := scored{score: rec.ConfidenceScore}

	fields := make([]string, 0, len(rec.Discrepancies))
	for f := range rec.Discrepancies {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		d := rec.Discrepancies[f]
		sev := model.SeverityInfo
		switch f {
		case model.FieldPrice:
			sev = model.SeverityCritical
		case model.FieldBedrooms, model.FieldBathrooms, model.FieldSqft:
			sev = model.SeverityWarning
		}
		out.alerts = append(out.alerts, model.Alert{
			Severity: sev,
			Agent:    model.AgentIntegrity,
			Field:    f,
			Message:  fmt.Sprintf("%s declared %s but public record shows %s", f, formatValue(d.Declared), formatValue(d.Record)),
		})
	}
	if rec.Synthetic {
		out.alerts = append(out.alerts, model.Alert{
			Severity: model.SeverityInfo,
			Agent:    model.AgentIntegrity,
			Message:  "no public record available; compared against synthetic reference",
		})
	}
	return out
}

// structural scores completeness of the required fields. Listings from a
// whitelisted source skip the check.
func structural(p *model.Property, v rules.Verdict) scored {
	if v.Whitelisted {
		return scored{score: 100}
	}
	var out scored
	present := 0
	for _, f := range requiredFields {
		if hasField(p, f) {
			present++
			continue
		}
		out.alerts = append(out.alerts, model.Alert{
			Severity: model.SeverityWarning,
			Agent:    model.AgentStructural,
			Field:    f,
			Message:  "missing required field " + f,
		})
	}
	out.score = int(math.Round(100 * float64(present) / float64(len(requiredFields))))
	return out
}

func hasField(p *model.Property, field string) bool {
	switch field {
	case "address":
		return strings.TrimSpace(p.Address) != ""
	case model.FieldPrice:
		return p.Price != nil
	case model.FieldBedrooms:
		return p.Bedrooms != nil
	case model.FieldBathrooms:
		return p.Bathrooms != nil
	case model.FieldSqft:
		return p.Sqft != nil
	case "property_type":
		return p.PropertyType != ""
	case "condition":
		return p.Condition != ""
	}
	return false
}

// relevance scores whether the listing belongs in the feed at all.
func relevance(p *model.Property, v rules.Verdict, minDesc int, keywords []string) scored {
	if v.Blacklisted {
		domain := ""
		if v.Rule != nil {
			domain = v.Rule.Domain
		}
		return scored{alerts: []model.Alert{{
			Severity: model.SeverityCritical,
			Agent:    model.AgentRelevance,
			Field:    "source",
			Message:  fmt.Sprintf("source domain %s is blacklisted", domain),
		}}}
	}

	out := scored{score: 100}
	penalize := func(n int, sev model.Severity, field, msg string) {
		out.score -= n
		out.alerts = append(out.alerts, model.Alert{Severity: sev, Agent: model.AgentRelevance, Field: field, Message: msg})
	}

	if strings.TrimSpace(p.Link) == "" {
		penalize(PenaltyMissingLink, model.SeverityInfo, "link", "missing listing link")
	}
	desc := strings.TrimSpace(p.Description)
	if desc != "" && utf8.RuneCountInString(desc) < minDesc {
		penalize(PenaltyThinDescription, model.SeverityInfo, "description",
			fmt.Sprintf("description shorter than %d characters", minDesc))
	}
	if kw, ok := negativeKeyword(p, keywords); ok {
		penalize(PenaltyNegativeKeyword, model.SeverityWarning, "description",
			fmt.Sprintf("listing mentions %q", kw))
	}
	if v.Unlisted {
		out.alerts = append(out.alerts, model.Alert{
			Severity: model.SeverityInfo,
			Agent:    model.AgentRelevance,
			Field:    "link",
			Message:  "source domain is not on the whitelist",
		})
	}

	out.score = max(0, min(100, out.score))
	return out
}

func negativeKeyword(p *model.Property, keywords []string) (string, bool) {
	text := strings.ToLower(p.Title + " " + p.Description)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}

// crosscheck scores agreement between independent extraction attempts,
// falling back to the integrity score when there are fewer than two.
// Deal-math notes are reported as info alerts and never move the score.
func crosscheck(p *model.Property, m *model.DealMetrics, g dealmath.Governance, integrityScore int) scored {
	out := scored{score: integrityScore}
	if rate, ok := agreement(p.ExtractionConfidences); ok {
		out.score = rate
	}
	for _, n := range dealmath.CrossCheck(p, m, g) {
		out.alerts = append(out.alerts, model.Alert{
			Severity: model.SeverityInfo,
			Agent:    model.AgentCrosscheck,
			Field:    n.Field,
			Message:  n.Message,
		})
	}
	return out
}

// agreement is the mean pairwise agreement 1-|a-b|/100 over all attempts, as a
// 0-100 integer.
func agreement(conf []float64) (int, bool) {
	if len(conf) < 2 {
		return 0, false
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(conf); i++ {
		for j := i + 1; j < len(conf); j++ {
			sum += 1 - math.Abs(conf[i]-conf[j])/100
			pairs++
		}
	}
	rate := int(math.Round(100 * sum / float64(pairs)))
	return max(0, min(100, rate)), true
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
