package encode

import (
	"fmt"
	"time"

	"github.com/gorilla/feeds"

	"techevents/internal/models"
)

// FeedOptions describes one syndication feed document.
type FeedOptions struct {
	Title       string
	Description string
	// Qualifier, when set, is appended to the title in parentheses.
	// Per-city feeds use the city name here.
	Qualifier string
	// SelfURL is the feed's own address, derived from its output path.
	SelfURL string
	SiteURL string
}

// Feed renders the events as an RSS document. Each entry's title is
// prefixed with the event's formatted local date-time.
func Feed(events []models.Event, opts FeedOptions, now time.Time) (string, error) {
	title := opts.Title
	if opts.Qualifier != "" {
		title = fmt.Sprintf("%s (%s)", title, opts.Qualifier)
	}

	f := &feeds.Feed{
		Title:       title,
		Id:          opts.SelfURL,
		Link:        &feeds.Link{Href: opts.SiteURL},
		Description: opts.Description,
		Created:     now,
	}
	for _, e := range events {
		start := e.Start().UTC()
		f.Items = append(f.Items, &feeds.Item{
			Title:       start.Format("Mon Jan 2 15:04") + " " + e.Title,
			Link:        &feeds.Link{Href: e.Link},
			Description: "Event date: " + start.Format(time.RFC1123) + " " + e.Description,
			Created:     now,
		})
	}

	out, err := f.ToRss()
	if err != nil {
		return "", fmt.Errorf("encode feed: %w", err)
	}
	return out, nil
}
