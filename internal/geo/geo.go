// Package geo resolves source IPs to normalized country names. The
// engine never blocks on a resolver failure: every error path collapses
// to the UNKNOWN sentinel, which no allow-list contains.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/oschwald/geoip2-golang"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"authwatch/internal/config"
	"authwatch/internal/logging"
)

// Unknown is returned for unresolvable IPs. It is implicitly blocked by
// any allow-list comparison.
const Unknown = "UNKNOWN"

type Resolver interface {
	Resolve(ctx context.Context, ip string) string
}

// NormalizeCountry strips combining marks, upper-cases and trims, so
// allow-list membership is an exact string comparison.
func NormalizeCountry(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, name)
	if err != nil {
		ascii = name
	}
	return strings.ToUpper(strings.TrimSpace(ascii))
}

// CountryNameFromCode turns an ISO 3166-1 alpha-2 code into its English
// name, falling back to the normalized code itself.
func CountryNameFromCode(code string) string {
	region, err := language.ParseRegion(code)
	if err != nil {
		return NormalizeCountry(code)
	}
	name := display.English.Regions().Name(region)
	if name == "" {
		return NormalizeCountry(code)
	}
	return NormalizeCountry(name)
}

// Cache memoizes a Resolver per IP for the process lifetime. Unbounded
// growth is acceptable: cardinality is bounded by observed traffic.
// Concurrent resolvers for the same IP may both compute; the later write
// wins, which is harmless since resolution is pure.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string
	inner   Resolver
}

func NewCache(inner Resolver) *Cache {
	return &Cache{entries: make(map[string]string), inner: inner}
}

func (c *Cache) Resolve(ctx context.Context, ip string) string {
	c.mu.RLock()
	country, ok := c.entries[ip]
	c.mu.RUnlock()
	if ok {
		return country
	}
	country = c.inner.Resolve(ctx, ip)
	c.mu.Lock()
	c.entries[ip] = country
	c.mu.Unlock()
	return country
}

// HTTPResolver queries an ipinfo.io-style JSON endpoint.
type HTTPResolver struct {
	endpoint string
	client   *http.Client
	notifier *logging.Notifier
}

func NewHTTPResolver(endpoint string, timeout time.Duration, notifier *logging.Notifier) *HTTPResolver {
	return &HTTPResolver{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		notifier: notifier,
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, ip string) string {
	url := fmt.Sprintf("%s/%s/json", r.endpoint, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Unknown
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.notifier.Error().Err(err).Str("ip", ip).Msg("geo lookup failed")
		return Unknown
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.notifier.Error().Int("status", resp.StatusCode).Str("ip", ip).Msg("geo lookup failed")
		return Unknown
	}
	var payload struct {
		Country string `json:"country"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		r.notifier.Error().Err(err).Str("ip", ip).Msg("geo response decode failed")
		return Unknown
	}
	if payload.Country == "" {
		return Unknown
	}
	return CountryNameFromCode(payload.Country)
}

// MMDBResolver reads countries from a local MaxMind database.
type MMDBResolver struct {
	reader   *geoip2.Reader
	notifier *logging.Notifier
}

func NewMMDBResolver(path string, notifier *logging.Notifier) (*MMDBResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening geoip database %s: %w", path, err)
	}
	return &MMDBResolver{reader: reader, notifier: notifier}, nil
}

func (r *MMDBResolver) Resolve(_ context.Context, ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Unknown
	}
	record, err := r.reader.Country(parsed)
	if err != nil {
		r.notifier.Error().Err(err).Str("ip", ip).Msg("geo lookup failed")
		return Unknown
	}
	if name := record.Country.Names["en"]; name != "" {
		return NormalizeCountry(name)
	}
	if record.Country.IsoCode != "" {
		return CountryNameFromCode(record.Country.IsoCode)
	}
	return Unknown
}

func (r *MMDBResolver) Close() error {
	return r.reader.Close()
}

// FromConfig builds the configured backend wrapped in a memoizing cache.
func FromConfig(cfg config.GeoConfig, notifier *logging.Notifier) (*Cache, error) {
	switch cfg.Provider {
	case "mmdb":
		inner, err := NewMMDBResolver(cfg.MMDBPath, notifier)
		if err != nil {
			return nil, err
		}
		return NewCache(inner), nil
	default:
		return NewCache(NewHTTPResolver(cfg.Endpoint, cfg.Timeout, notifier)), nil
	}
}
