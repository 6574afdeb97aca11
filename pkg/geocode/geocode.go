// Package geocode resolves street addresses to coordinates via the Census
// Geocoder one-line API.
package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Census Geocoder host.
	DefaultBaseURL  = "https://geocoding.geo.census.gov"
	oneLinePath     = "/geocoder/locations/onelineaddress"
	censusBenchmark = "Public_AR_Current"
)

// AddressInput is an address to geocode.
type AddressInput struct {
	Street  string
	City    string
	State   string
	ZipCode string
}

// OneLine formats the address as a single comma-separated line.
func (a AddressInput) OneLine() string {
	var parts []string
	for _, p := range []string{a.Street, a.City, a.State + " " + a.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Result is the geocoding outcome. An unmatched address is not an error.
type Result struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	MatchedAddress string  `json:"matched_address,omitempty"`
	Matched        bool    `json:"matched"`
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the geocoder host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second ceiling.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		}
	}
}

// Client geocodes addresses and caches results, including misses, for the
// life of the process.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	cache   sync.Map // cacheKey -> *Result
}

// NewClient creates a Census geocoding client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type oneLineResponse struct {
	Result struct {
		AddressMatches []struct {
			Coordinates struct {
				X float64 `json:"x"` // longitude
				Y float64 `json:"y"` // latitude
			} `json:"coordinates"`
			MatchedAddress string `json:"matchedAddress"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// Geocode resolves addr. The first Census match wins.
func (c *Client) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	line := addr.OneLine()
	if line == "" {
		return nil, eris.New("geocode: empty address")
	}
	key := cacheKey(addr)
	if v, ok := c.cache.Load(key); ok {
		return v.(*Result), nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{
		"address":   {line},
		"benchmark": {censusBenchmark},
		"format":    {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+oneLinePath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: census returned status %d", resp.StatusCode)
	}

	var body oneLineResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}

	res := &Result{}
	if m := body.Result.AddressMatches; len(m) > 0 {
		res = &Result{
			Latitude:       m[0].Coordinates.Y,
			Longitude:      m[0].Coordinates.X,
			MatchedAddress: m[0].MatchedAddress,
			Matched:        true,
		}
	}
	c.cache.Store(key, res)
	zap.L().Debug("geocode: resolved",
		zap.String("address", line),
		zap.Bool("matched", res.Matched),
	)
	return res, nil
}

// cacheKey is the SHA-256 hex of the normalized address.
func cacheKey(a AddressInput) string {
	norm := strings.Join([]string{
		strings.ToLower(strings.Join(strings.Fields(a.Street), " ")),
		strings.ToLower(strings.TrimSpace(a.City)),
		strings.ToLower(strings.TrimSpace(a.State)),
		strings.TrimSpace(a.ZipCode),
	}, "|")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}
