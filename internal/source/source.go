// Package source contains the upstream connectors. Every connector fetches
// raw records from one upstream, pages with a mandatory pacing delay, drops
// records it can already tell are unusable, and emits canonical events.
// A connector never fails the whole run: a failed sub-request is logged and
// the partial results collected so far are returned.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"techevents/internal/config"
	"techevents/internal/models"
)

// Source is the single capability all connectors satisfy.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.Event, error)
}

// NewFromConfig builds the connector selected by c.Type.
func NewFromConfig(c config.SourceConfig, sec config.Secrets, timeout time.Duration, logger *slog.Logger) (Source, error) {
	switch c.Type {
	case "github":
		return NewGitHub(c.GitHub, sec.GitHubToken, timeout, logger), nil
	case "meetup":
		return NewMeetup(c.Meetup, NewHTTPClient(timeout), logger), nil
	case "eventbrite":
		return NewEventbrite(c.Eventbrite, sec.EventbriteToken, NewHTTPClient(timeout), logger), nil
	case "eventbrite_html":
		return NewEventbriteHTML(c.EventbriteHTML, NewHTTPClient(timeout), logger), nil
	default:
		return nil, fmt.Errorf("unknown source type: %q", c.Type)
	}
}

// NewHTTPClient returns an HTTP client with sane connection limits and the
// per-request timeout every upstream call is bounded by.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// sleepCtx pauses for d, the pacing delay between successive upstream
// requests. It returns early only when the context is canceled.
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
