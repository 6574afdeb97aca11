package records

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// RentCastBaseURL is the production RentCast API host.
	RentCastBaseURL = "https://api.rentcast.io"
	rentcastName    = "rentcast"
)

// RentCastClient looks up assessor records through the RentCast properties API.
type RentCastClient struct {
	c *client
}

// NewRentCastClient creates an assessor client authenticated with apiKey.
func NewRentCastClient(apiKey string, opts ...Option) *RentCastClient {
	return &RentCastClient{c: newClient(rentcastName, RentCastBaseURL, apiKey, 10, opts)}
}

// Name identifies the source.
func (r *RentCastClient) Name() string { return rentcastName }

type rentcastProperty struct {
	FormattedAddress string   `json:"formattedAddress"`
	SquareFootage    *float64 `json:"squareFootage"`
	Bedrooms         *float64 `json:"bedrooms"`
	Bathrooms        *float64 `json:"bathrooms"`
	YearBuilt        *float64 `json:"yearBuilt"`
	LotSize          *float64 `json:"lotSize"`
	LastSalePrice    *float64 `json:"lastSalePrice"`
	ZoningCode       string   `json:"zoning"`
	Owner            *struct {
		Names []string `json:"names"`
	} `json:"owner"`
	TaxAssessments map[string]struct {
		Year  int     `json:"year"`
		Value float64 `json:"value"`
	} `json:"taxAssessments"`
}

// Lookup returns the assessor record for address, or nil when none exists.
func (r *RentCastClient) Lookup(ctx context.Context, address string) (*Record, error) {
	if strings.TrimSpace(address) == "" {
		return nil, eris.New("records: rentcast address is required")
	}
	if r.c.key == "" {
		return nil, eris.New("records: rentcast api key not configured")
	}

	params := url.Values{"address": {address}}
	reqURL := strings.TrimSuffix(r.c.baseURL, "/") + "/v1/properties?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "records: rentcast build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", r.c.key)

	var props []rentcastProperty
	found, err := r.c.getJSON(ctx, req, &props)
	if err != nil || !found || len(props) == 0 {
		return nil, err
	}

	p := props[0]
	rec := newRecord()
	rec.setNum("sqft", p.SquareFootage)
	rec.setNum("bedrooms", p.Bedrooms)
	rec.setNum("bathrooms", p.Bathrooms)
	rec.setNum("year_built", p.YearBuilt)
	rec.setNum("lot_size_sqft", p.LotSize)
	rec.setNum("price", p.LastSalePrice)
	rec.setText("zoning", p.ZoningCode)
	if p.Owner != nil && len(p.Owner.Names) > 0 {
		rec.setText("owner", strings.Join(p.Owner.Names, "; "))
	}
	if v, ok := latestAssessment(p); ok {
		rec.Display["assessed_value"] = formatMoney(v)
	}
	return rec, nil
}

func latestAssessment(p rentcastProperty) (float64, bool) {
	if len(p.TaxAssessments) == 0 {
		return 0, false
	}
	years := make([]string, 0, len(p.TaxAssessments))
	for y := range p.TaxAssessments {
		years = append(years, y)
	}
	sort.Strings(years)
	v := p.TaxAssessments[years[len(years)-1]].Value
	return v, v > 0
}

var moneyPrinter = message.NewPrinter(language.AmericanEnglish)

func formatMoney(v float64) string {
	return moneyPrinter.Sprintf("$%d", int64(math.Round(v)))
}
