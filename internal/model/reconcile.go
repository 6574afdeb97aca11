package model

// Source tags where a field observation came from.
type Source string

const (
	SourceDeclared      Source = "declared"
	SourcePublicRecordA Source = "public_record_a"
	SourcePublicRecordB Source = "public_record_b"
	SourceSynthetic     Source = "synthetic"
)

// FieldObservation is a single attribute value with its source tag.
type FieldObservation struct {
	Field  string  `json:"field"`
	Value  float64 `json:"value"`
	Source Source  `json:"source"`
}

// Discrepancy holds both sides of a field that failed the tolerance check.
type Discrepancy struct {
	Declared float64 `json:"declared_value"`
	Record   float64 `json:"record_value"`
}

// ProviderStatus is the typed outcome of a single provider call.
type ProviderStatus string

const (
	ProviderOK          ProviderStatus = "ok"
	ProviderEmpty       ProviderStatus = "empty"
	ProviderFailed      ProviderStatus = "failed"
	ProviderTimeout     ProviderStatus = "timeout"
	ProviderCircuitOpen ProviderStatus = "circuit_open"
)

// ProviderOutcome records what happened when a public-record provider was queried.
type ProviderOutcome struct {
	Provider string         `json:"provider"`
	Source   Source         `json:"source"`
	Status   ProviderStatus `json:"status"`
	Fields   int            `json:"fields"`
	Error    string         `json:"error,omitempty"`
}

// ReconciliationResult is the outcome of diffing declared values against the
// merged public record for one property.
type ReconciliationResult struct {
	Address         string                 `json:"address"`
	ConfidenceScore int                    `json:"confidence_score"`
	VerifiedMatches map[string]float64     `json:"verified_matches"`
	Discrepancies   map[string]Discrepancy `json:"discrepancies"`
	// Provenance carries non-numeric record fields (owner, zoning) for display only.
	Provenance map[string]string  `json:"provenance,omitempty"`
	Reference  []FieldObservation `json:"reference,omitempty"`
	Sources    []ProviderOutcome  `json:"sources,omitempty"`
	Synthetic  bool               `json:"synthetic"`
}

// HasDiscrepancy reports whether field failed the tolerance check.
func (r *ReconciliationResult) HasDiscrepancy(field string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Discrepancies[field]
	return ok
}
