package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"techevents/internal/config"
	"techevents/internal/metrics"
	"techevents/internal/models"
)

// EventbriteHTML scrapes events out of an eventbrite-style search results
// page, following rel=next pagination with the mandatory pacing delay.
type EventbriteHTML struct {
	cfg     config.EventbriteHTMLSourceConfig
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
	exclude map[string]struct{}
}

// NewEventbriteHTML creates the scraped-HTML connector.
func NewEventbriteHTML(cfg config.EventbriteHTMLSourceConfig, client *http.Client, logger *slog.Logger) *EventbriteHTML {
	exclude := make(map[string]struct{}, len(cfg.Exclude))
	for _, link := range cfg.Exclude {
		exclude[strings.ToLower(stripQuery(link))] = struct{}{}
	}
	return &EventbriteHTML{cfg: cfg, client: client, logger: logger, now: time.Now, exclude: exclude}
}

func (s *EventbriteHTML) Name() string { return "eventbrite_html" }

// Fetch walks the result pages. A failed page fetch is logged and treated as
// "no more results"; cards already collected are kept. Cards with an
// unparsable date or an excluded link are dropped.
func (s *EventbriteHTML) Fetch(ctx context.Context) ([]models.Event, error) {
	var all []models.Event
	pageURL := s.cfg.URL
	for pageURL != "" {
		events, next, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			s.logger.Error("Eventbrite page fetch failed, keeping partial results.", "url", pageURL, "error", err)
			break
		}
		all = append(all, events...)
		if next == "" {
			break
		}
		if err := sleepCtx(ctx, s.cfg.Delay); err != nil {
			break
		}
		pageURL = next
	}

	kept := all[:0]
	for _, e := range all {
		if e.Date == 0 {
			metrics.EventsDropped.WithLabelValues(s.Name(), "invalid").Inc()
			continue
		}
		if _, ok := s.exclude[strings.ToLower(e.Link)]; ok {
			metrics.EventsDropped.WithLabelValues(s.Name(), "excluded").Inc()
			continue
		}
		kept = append(kept, e)
	}
	metrics.EventsFetched.WithLabelValues(s.Name()).Add(float64(len(kept)))
	s.logger.Info("Fetched eventbrite events from HTML.", "count", len(kept))
	return kept, nil
}

// fetchPage scrapes one result page and returns its events plus the URL of
// the next page, empty when pagination ends.
func (s *EventbriteHTML) fetchPage(ctx context.Context, pageURL string) ([]models.Event, string, error) {
	s.logger.Info("Requesting page.", "url", pageURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("eventbrite %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	year := now.Year()
	tomorrow := now.AddDate(0, 0, 1)

	var events []models.Event
	doc.Find(".search-main-content__events-list > li").Each(func(_ int, card *goquery.Selection) {
		title := card.Find(".eds-media-card-content__title .eds-is-hidden-accessible").Text()
		dateText := card.Find(".eds-media-card-content__primary-content > div").First().Text()
		link, _ := card.Find(".eds-media-card-content__action-link").Attr("href")
		free := strings.EqualFold(strings.TrimSpace(card.Find(".eds-media-card-content__sub-content > div").Last().Text()), "free")
		cityParts := strings.Split(card.Find(".card-text--truncated__one").Text(), " • ")
		city := strings.TrimSpace(cityParts[len(cityParts)-1])

		events = append(events, models.Event{
			Title:       strings.TrimSpace(title),
			Date:        parseCardDate(dateText, tomorrow, year),
			Link:        stripQuery(link),
			City:        city,
			Description: "Read more about this event at Eventbrite",
			Free:        free,
		})
	})

	next, _ := doc.Find("link[rel=next]").Attr("href")
	return events, resolveNext(pageURL, next), nil
}

// parseCardDate turns a result-card date label into epoch milliseconds. The
// label carries no year, so the current one is appended, and the "Tomorrow
// at" shorthand is rewritten to tomorrow's month and day first.
func parseCardDate(text string, tomorrow time.Time, year int) int64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	text = strings.ReplaceAll(text, "Tomorrow at", fmt.Sprintf("%s %d,", tomorrow.Month(), tomorrow.Day()))
	return ParseDateMillis(fmt.Sprintf("%s %d", text, year))
}

// stripQuery drops the ?query suffix from a link, keeping the dedup identity
// stable across tracking parameters.
func stripQuery(link string) string {
	base, _, _ := strings.Cut(link, "?")
	return base
}

// resolveNext makes a possibly relative next-page reference absolute.
func resolveNext(pageURL, next string) string {
	if next == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return next
	}
	ref, err := url.Parse(next)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
