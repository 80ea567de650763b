package source

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

	"techevents/internal/config"
	"techevents/internal/metrics"
	"techevents/internal/models"
)

const eventbriteBaseURL = "https://www.eventbriteapi.com"

// Eventbrite fetches events from the eventbrite-style search API.
type Eventbrite struct {
	cfg    config.EventbriteSourceConfig
	token  string
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewEventbrite creates the eventbrite API connector.
func NewEventbrite(cfg config.EventbriteSourceConfig, token string, client *http.Client, logger *slog.Logger) *Eventbrite {
	if cfg.BaseURL == "" {
		cfg.BaseURL = eventbriteBaseURL
	}
	return &Eventbrite{cfg: cfg, token: token, client: client, logger: logger, now: time.Now}
}

func (s *Eventbrite) Name() string { return "eventbrite" }

type eventbriteEvent struct {
	Name struct {
		Text string `json:"text"`
	} `json:"name"`
	Description struct {
		Text string `json:"text"`
	} `json:"description"`
	Start struct {
		Local    string `json:"local"`
		Timezone string `json:"timezone"`
	} `json:"start"`
	URL     string `json:"url"`
	VenueID string `json:"venue_id"`
	IsFree  bool   `json:"is_free"`
}

type eventbriteVenue struct {
	Address *struct {
		City   string `json:"city"`
		Region string `json:"region"`
	} `json:"address"`
}

// Fetch searches the category, then resolves each candidate's venue. Records
// are dropped at the boundary when the start has passed, the timezone does
// not match the configured country zone, or the venue has no usable address.
func (s *Eventbrite) Fetch(ctx context.Context) ([]models.Event, error) {
	q := url.Values{}
	q.Set("categories", s.cfg.Category)
	q.Set("q", s.cfg.Query)

	var result struct {
		Events []eventbriteEvent `json:"events"`
	}
	if err := s.getJSON(ctx, "/v3/events/search/", q, &result); err != nil {
		s.logger.Error("Eventbrite search failed.", "error", err)
		return nil, nil
	}

	nowMillis := s.now().UnixMilli()
	var events []models.Event
	for _, ev := range result.Events {
		date := ParseDateMillis(ev.Start.Local)
		if date == 0 || date < nowMillis {
			metrics.EventsDropped.WithLabelValues(s.Name(), "passed").Inc()
			continue
		}
		if !strings.Contains(strings.ToLower(ev.Start.Timezone), strings.ToLower(s.cfg.Timezone)) {
			metrics.EventsDropped.WithLabelValues(s.Name(), "country").Inc()
			continue
		}
		if ev.Name.Text == "" {
			metrics.EventsDropped.WithLabelValues(s.Name(), "invalid").Inc()
			continue
		}

		city, ok := s.venueCity(ctx, ev.VenueID)
		if !ok {
			metrics.EventsDropped.WithLabelValues(s.Name(), "no_venue").Inc()
			continue
		}

		events = append(events, models.Event{
			Title:       cleanTitle(ev.Name.Text),
			Date:        date,
			City:        city,
			Link:        ev.URL,
			Description: ev.Description.Text,
			Free:        ev.IsFree,
		})
	}
	metrics.EventsFetched.WithLabelValues(s.Name()).Add(float64(len(events)))
	s.logger.Info("Fetched eventbrite events.", "count", len(events))
	return events, nil
}

// venueCity resolves the venue and returns its city label, falling back to
// the region when the city is absent. Only the part before the first comma
// is kept.
func (s *Eventbrite) venueCity(ctx context.Context, venueID string) (string, bool) {
	if venueID == "" {
		return "", false
	}
	var venue eventbriteVenue
	if err := s.getJSON(ctx, "/v3/venues/"+venueID+"/", nil, &venue); err != nil {
		s.logger.Error("Eventbrite venue lookup failed.", "venue", venueID, "error", err)
		return "", false
	}
	if venue.Address == nil {
		return "", false
	}
	city := venue.Address.City
	if city == "" {
		city = venue.Address.Region
	}
	if city == "" {
		return "", false
	}
	city, _, _ = strings.Cut(city, ",")
	return strings.TrimSpace(city), true
}

// cleanTitle strips a trailing bracketed qualifier from the source title.
func cleanTitle(text string) string {
	title, _, _ := strings.Cut(text, "[")
	title = strings.TrimSpace(title)
	if title == "" {
		return text
	}
	return title
}

func (s *Eventbrite) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := strings.TrimRight(s.cfg.BaseURL, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("eventbrite %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
