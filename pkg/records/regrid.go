package records

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	// RegridBaseURL is the production Regrid API host.
	RegridBaseURL = "https://app.regrid.com"
	regridName    = "regrid"
)

// RegridClient looks up county parcel data through the Regrid v2 API.
type RegridClient struct {
	c *client
}

// NewRegridClient creates a parcel client authenticated with token.
func NewRegridClient(token string, opts ...Option) *RegridClient {
	return &RegridClient{c: newClient(regridName, RegridBaseURL, token, 5, opts)}
}

// Name identifies the source.
func (r *RegridClient) Name() string { return regridName }

type regridResponse struct {
	Parcels struct {
		Features []struct {
			Properties struct {
				Fields regridFields `json:"fields"`
			} `json:"properties"`
		} `json:"features"`
	} `json:"parcels"`
}

type regridFields struct {
	AreaBuilding      *float64 `json:"area_building"`
	Sqft              *float64 `json:"sqft"`
	LLBldgAreaSqFt    *float64 `json:"ll_bldg_area_sq_ft"`
	LLGISSqFt         *float64 `json:"ll_gissqft"`
	YearBuilt         *float64 `json:"yearbuilt"`
	Parval            *float64 `json:"parval"`
	SalePrice         *float64 `json:"saleprice"`
	Owner             string   `json:"owner"`
	Zoning            string   `json:"zoning"`
	ZoningDescription string   `json:"zoning_description"`
}

// Lookup returns the first parcel matching address, or nil when none matches.
func (r *RegridClient) Lookup(ctx context.Context, address string) (*Record, error) {
	if strings.TrimSpace(address) == "" {
		return nil, eris.New("records: regrid address is required")
	}
	if r.c.key == "" {
		return nil, eris.New("records: regrid token not configured")
	}

	params := url.Values{
		"query": {address},
		"token": {r.c.key},
	}
	reqURL := strings.TrimSuffix(r.c.baseURL, "/") + "/api/v2/parcels/address?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "records: regrid build request")
	}
	req.Header.Set("Accept", "application/json")

	var resp regridResponse
	found, err := r.c.getJSON(ctx, req, &resp)
	if err != nil || !found || len(resp.Parcels.Features) == 0 {
		return nil, err
	}

	f := resp.Parcels.Features[0].Properties.Fields
	rec := newRecord()
	// area_building is habitable area; the other size fields are fallbacks.
	rec.setNum("sqft", firstNonNil(f.AreaBuilding, f.Sqft, f.LLBldgAreaSqFt))
	rec.setNum("lot_size_sqft", f.LLGISSqFt)
	rec.setNum("year_built", f.YearBuilt)
	rec.setNum("price", f.SalePrice)
	if f.Parval != nil && *f.Parval > 0 {
		rec.Display["assessed_value"] = formatMoney(*f.Parval)
	}
	rec.setText("owner", f.Owner)
	if f.ZoningDescription != "" {
		rec.setText("zoning", f.ZoningDescription)
	} else {
		rec.setText("zoning", f.Zoning)
	}
	return rec, nil
}

func firstNonNil(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil && *v > 0 {
			return v
		}
	}
	return nil
}
