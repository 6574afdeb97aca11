// Package records provides clients for independent public-record sources
// (county parcel data and assessor records) keyed by street address.
package records

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/deal-engine/internal/resilience"
)

// Record is what a source knows about one property. Numeric fields use the
// same keys as declared listing fields (sqft, price, bedrooms, ...); Display
// carries text such as owner of record or zoning.
type Record struct {
	Fields  map[string]float64
	Display map[string]string
}

func newRecord() *Record {
	return &Record{Fields: make(map[string]float64), Display: make(map[string]string)}
}

func (r *Record) setNum(key string, v *float64) {
	if v != nil && *v > 0 {
		r.Fields[key] = *v
	}
}

func (r *Record) setText(key, v string) {
	if v != "" {
		r.Display[key] = v
	}
}

// Empty reports whether the record carries no numeric fields.
func (r *Record) Empty() bool { return r == nil || len(r.Fields) == 0 }

// Option configures a records client.
type Option func(*client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second ceiling.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
}

type client struct {
	name    string
	baseURL string
	key     string
	http    *http.Client
	limiter *rate.Limiter
}

func newClient(name, baseURL, key string, defaultRPS float64, opts []Option) *client {
	c := &client{
		name:    name,
		baseURL: baseURL,
		key:     key,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(defaultRPS), max(1, int(defaultRPS))),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON waits for the limiter, performs req and decodes a 2xx body into out.
// A 404 is reported as found=false rather than an error.
func (c *client) getJSON(ctx context.Context, req *http.Request, out any) (found bool, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, eris.Wrapf(err, "records: %s rate limit", c.name)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, eris.Wrapf(err, "records: %s request", c.name)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return false, eris.Wrapf(err, "records: %s read body", c.name)
	}
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := resilience.CheckStatus(c.name, resp, body); err != nil {
		return false, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, eris.Wrapf(err, "records: %s parse response", c.name)
	}
	return true, nil
}
