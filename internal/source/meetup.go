package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"techevents/internal/config"
	"techevents/internal/metrics"
	"techevents/internal/models"
)

const meetupBaseURL = "https://api.meetup.com"

// postalDigits matches postal-code noise inside venue city labels,
// e.g. "111 22 Stockholm".
var postalDigits = regexp.MustCompile(`\d+\s?\d+`)

// Meetup fetches open events per city from a meetup-style API.
type Meetup struct {
	cfg     config.MeetupSourceConfig
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
	exclude map[string]struct{}
}

// NewMeetup creates the meetup-style connector.
func NewMeetup(cfg config.MeetupSourceConfig, client *http.Client, logger *slog.Logger) *Meetup {
	if cfg.BaseURL == "" {
		cfg.BaseURL = meetupBaseURL
	}
	exclude := make(map[string]struct{}, len(cfg.ExcludeGroups))
	for _, g := range cfg.ExcludeGroups {
		exclude[strings.ToLower(g)] = struct{}{}
	}
	return &Meetup{cfg: cfg, client: client, logger: logger, now: time.Now, exclude: exclude}
}

func (s *Meetup) Name() string { return "meetup" }

type meetupCity struct {
	City        string `json:"city"`
	Country     string `json:"country"`
	MemberCount int    `json:"member_count"`
}

type meetupEvent struct {
	Name        string `json:"name"`
	Time        int64  `json:"time"` // epoch milliseconds
	EventURL    string `json:"event_url"`
	Description string `json:"description"`
	Venue       *struct {
		City    string `json:"city"`
		Country string `json:"country"`
	} `json:"venue"`
	Group struct {
		URLName string `json:"urlname"`
	} `json:"group"`
}

// Fetch finds the cities with enough members, then queries open events one
// city at a time with the mandatory pacing delay in between. A failed city
// query yields nothing for that city; the others' results are kept.
func (s *Meetup) Fetch(ctx context.Context) ([]models.Event, error) {
	cities, err := s.findCities(ctx)
	if err != nil {
		s.logger.Error("Meetup city lookup failed.", "error", err)
		return nil, nil
	}
	if len(cities) == 0 {
		return nil, nil
	}
	s.logger.Info("Found meetup cities.", "count", len(cities))

	var events []models.Event
	for i, city := range cities {
		if i > 0 {
			if err := sleepCtx(ctx, s.cfg.Delay); err != nil {
				return events, nil
			}
		}
		evs, err := s.openEvents(ctx, city)
		if err != nil {
			s.logger.Error("Meetup open events query failed.", "city", city.City, "error", err)
			continue
		}
		events = append(events, evs...)
	}
	metrics.EventsFetched.WithLabelValues(s.Name()).Add(float64(len(events)))
	s.logger.Info("Fetched meetup events.", "count", len(events))
	return events, nil
}

func (s *Meetup) findCities(ctx context.Context) ([]meetupCity, error) {
	q := url.Values{}
	q.Set("category", strconv.Itoa(s.cfg.Category))
	q.Set("country", s.cfg.Country)
	q.Set("page", "200")

	var body struct {
		Results []meetupCity `json:"results"`
	}
	if err := s.getJSON(ctx, "/2/cities", q, &body); err != nil {
		return nil, err
	}

	cities := body.Results[:0]
	for _, c := range body.Results {
		if c.MemberCount >= s.cfg.MinMembers {
			cities = append(cities, c)
		}
	}
	return cities, nil
}

func (s *Meetup) openEvents(ctx context.Context, city meetupCity) ([]models.Event, error) {
	q := url.Values{}
	q.Set("city", city.City)
	q.Set("country", city.Country)
	q.Set("category", strconv.Itoa(s.cfg.Category))
	q.Set("page", "200")

	var body struct {
		Results []meetupEvent `json:"results"`
	}
	if err := s.getJSON(ctx, "/2/open_events", q, &body); err != nil {
		return nil, err
	}

	nowMillis := s.now().UnixMilli()
	var events []models.Event
	for _, ev := range body.Results {
		if ev.Time < nowMillis {
			metrics.EventsDropped.WithLabelValues(s.Name(), "passed").Inc()
			continue
		}
		// A missing venue cannot be recovered later, drop at the boundary.
		if ev.Venue == nil {
			metrics.EventsDropped.WithLabelValues(s.Name(), "no_venue").Inc()
			continue
		}
		if !strings.EqualFold(ev.Venue.Country, s.cfg.Country) {
			metrics.EventsDropped.WithLabelValues(s.Name(), "country").Inc()
			continue
		}
		if _, ok := s.exclude[strings.ToLower(ev.Group.URLName)]; ok {
			metrics.EventsDropped.WithLabelValues(s.Name(), "excluded").Inc()
			continue
		}
		events = append(events, models.Event{
			Title:       ev.Name,
			Date:        ev.Time,
			City:        strings.TrimSpace(postalDigits.ReplaceAllString(ev.Venue.City, "")),
			Link:        ev.EventURL,
			Description: ev.Description,
			Free:        true,
		})
	}
	return events, nil
}

func (s *Meetup) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := strings.TrimRight(s.cfg.BaseURL, "/") + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("meetup %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
