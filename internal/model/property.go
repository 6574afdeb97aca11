package model

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// PropertyType enumerates listing property types.
type PropertyType string

const (
	PropertyTypeSingleFamily PropertyType = "single_family"
	PropertyTypeMultiFamily  PropertyType = "multi_family"
	PropertyTypeCondo        PropertyType = "condo"
	PropertyTypeTownhouse    PropertyType = "townhouse"
	PropertyTypeCommercial   PropertyType = "commercial"
	PropertyTypeLand         PropertyType = "land"
	PropertyTypeMobileHome   PropertyType = "mobile_home"
	PropertyTypeOther        PropertyType = "other"
)

// DealType enumerates acquisition strategies.
type DealType string

const (
	DealTypeFixAndFlip    DealType = "fix_and_flip"
	DealTypeBuyAndHold    DealType = "buy_and_hold"
	DealTypeWholesale     DealType = "wholesale"
	DealTypeSubjectTo     DealType = "subject_to"
	DealTypeSellerFinance DealType = "seller_finance"
	DealTypeOther         DealType = "other"
)

// Condition enumerates the physical condition of a property.
type Condition string

const (
	ConditionExcellent  Condition = "excellent"
	ConditionGood       Condition = "good"
	ConditionFair       Condition = "fair"
	ConditionPoor       Condition = "poor"
	ConditionDistressed Condition = "distressed"
)

// Declared field keys used for reconciliation against public records.
const (
	FieldSqft        = "sqft"
	FieldPrice       = "price"
	FieldBedrooms    = "bedrooms"
	FieldBathrooms   = "bathrooms"
	FieldYearBuilt   = "year_built"
	FieldLotSizeSqft = "lot_size_sqft"
)

// Property is a listing as declared by its source (scraper or manual form).
// Optional numeric attributes are pointers so that "absent" is distinct from zero.
type Property struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Source      string `json:"source"`
	Link        string `json:"link,omitempty" validate:"omitempty,url"`
	Description string `json:"description,omitempty"`

	Address   string   `json:"address"`
	City      string   `json:"city,omitempty"`
	State     string   `json:"state,omitempty"`
	ZipCode   string   `json:"zip_code,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`

	Price          *float64 `json:"price,omitempty" validate:"omitempty,gt=0"`
	ARV            *float64 `json:"arv,omitempty" validate:"omitempty,gt=0"`
	RepairEstimate *float64 `json:"repair_estimate,omitempty" validate:"omitempty,gte=0"`
	AssignmentFee  *float64 `json:"assignment_fee,omitempty" validate:"omitempty,gte=0"`
	Bedrooms       *float64 `json:"bedrooms,omitempty" validate:"omitempty,gte=0"`
	Bathrooms      *float64 `json:"bathrooms,omitempty" validate:"omitempty,gte=0"`
	Sqft           *float64 `json:"sqft,omitempty" validate:"omitempty,gt=0"`
	LotSizeSqft    *float64 `json:"lot_size_sqft,omitempty" validate:"omitempty,gte=0"`
	YearBuilt      *float64 `json:"year_built,omitempty" validate:"omitempty,gte=1800,lte=2100"`

	PropertyType PropertyType `json:"property_type,omitempty"`
	DealType     DealType     `json:"deal_type,omitempty"`
	Condition    Condition    `json:"condition,omitempty"`

	// Values reported by the source rather than computed here.
	EquityPercentage *float64 `json:"equity_percentage,omitempty"`
	AIScore          *float64 `json:"ai_score,omitempty" validate:"omitempty,gte=0,lte=100"`

	// ExtractionConfidences holds the confidence (0-100) of each independent
	// extraction attempt over the same content.
	ExtractionConfidences []float64 `json:"extraction_confidences,omitempty" validate:"dive,gte=0,lte=100"`
}

var propertyValidator = validator.New()

// Declared returns the numeric fields available for reconciliation.
// Absent fields are omitted from the map.
func (p *Property) Declared() map[string]float64 {
	out := make(map[string]float64, 6)
	set := func(key string, v *float64) {
		if v != nil {
			out[key] = *v
		}
	}
	set(FieldSqft, p.Sqft)
	set(FieldPrice, p.Price)
	set(FieldBedrooms, p.Bedrooms)
	set(FieldBathrooms, p.Bathrooms)
	set(FieldYearBuilt, p.YearBuilt)
	set(FieldLotSizeSqft, p.LotSizeSqft)
	return out
}

// FullAddress joins the street address with city, state and zip when present.
func (p *Property) FullAddress() string {
	parts := []string{strings.TrimSpace(p.Address)}
	for _, s := range []string{p.City, p.State, p.ZipCode} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// DisplayTitle returns the title, falling back to the address.
func (p *Property) DisplayTitle() string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return t
	}
	return p.Address
}

// Validate checks that the candidate can be scored at all: it needs an
// address and at least one declared field. Range violations on optional
// fields are also rejected.
func (p *Property) Validate() error {
	if strings.TrimSpace(p.Address) == "" {
		return eris.Wrap(ErrInvalidCandidate, "missing address")
	}
	if len(p.Declared()) == 0 {
		return eris.Wrap(ErrInvalidCandidate, "no declared fields")
	}
	if err := propertyValidator.Struct(p); err != nil {
		return eris.Wrapf(ErrInvalidCandidate, "field validation: %s", err.Error())
	}
	return nil
}

// Float returns a pointer to v. Handy for building properties in code.
func Float(v float64) *float64 { return &v }
