// Package geo resolves free-text city labels to canonical city names via a
// geocode lookup, paced to respect the provider's global quota and backed by
// a persisted cache so a label is looked up at most once.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"techevents/internal/config"
	"techevents/internal/metrics"
)

const locationIQBaseURL = "https://eu1.locationiq.com"

// Resolver queries the geocode lookup. Enrichment failure is never fatal:
// on any error the original label is returned unchanged.
type Resolver struct {
	cfg    config.GeoConfig
	token  string
	client *http.Client
	cache  *Cache
	logger *slog.Logger
	skip   map[string]struct{}
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewResolver creates a resolver around the given cache.
func NewResolver(cfg config.GeoConfig, token string, client *http.Client, cache *Cache, logger *slog.Logger) *Resolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = locationIQBaseURL
	}
	skip := make(map[string]struct{}, len(cfg.Skip))
	for _, s := range cfg.Skip {
		skip[strings.ToLower(s)] = struct{}{}
	}
	return &Resolver{
		cfg: cfg, token: token, client: client, cache: cache, logger: logger,
		skip: skip, sleep: sleepCtx,
	}
}

type lookupResult struct {
	Address struct {
		City  string `json:"city"`
		State string `json:"state"`
	} `json:"address"`
}

// Resolve returns the canonical name for city. Empty and skip-listed labels
// pass through untouched; cache hits return immediately with no delay. A
// miss sleeps the pacing delay, queries the lookup and caches a success.
func (r *Resolver) Resolve(ctx context.Context, city string) string {
	if city == "" {
		return city
	}
	if _, ok := r.skip[strings.ToLower(city)]; ok {
		return city
	}
	if cached, ok := r.cache.Get(city); ok {
		metrics.GeoLookups.WithLabelValues("hit").Inc()
		return cached
	}

	if err := r.sleep(ctx, r.cfg.Delay); err != nil {
		return city
	}

	resolved, err := r.lookup(ctx, city)
	if err != nil {
		metrics.GeoLookups.WithLabelValues("failed").Inc()
		r.logger.Error("City lookup failed, keeping original label.", "city", city, "error", err)
		return city
	}

	metrics.GeoLookups.WithLabelValues("resolved").Inc()
	r.logger.Info("Resolved city.", "from", city, "to", resolved)
	r.cache.Put(city, resolved)
	return resolved
}

// lookup queries the search endpoint with the first hyphen-delimited token
// of the label plus the country qualifier, preferring the returned city and
// falling back to the first word of the state.
func (r *Resolver) lookup(ctx context.Context, city string) (string, error) {
	query, _, _ := strings.Cut(city, "-")

	q := url.Values{}
	q.Set("key", r.token)
	q.Set("q", strings.TrimSpace(query)+","+r.cfg.Country)
	q.Set("format", "json")
	q.Set("addressdetails", "1")

	u := strings.TrimRight(r.cfg.BaseURL, "/") + "/v1/search.php?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("locationiq %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var results []lookupResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return "", fmt.Errorf("bad result for %q: %w", city, err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("bad result for %q: empty", city)
	}

	name := results[0].Address.City
	if name == "" {
		name, _, _ = strings.Cut(results[0].Address.State, " ")
	}
	if name == "" {
		return "", fmt.Errorf("bad result for %q: no city or state", city)
	}
	return capitalize(strings.ToLower(name)), nil
}

// capitalize upper-cases the first rune of s.
func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
