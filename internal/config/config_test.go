package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
sources:
  - type: github
    github:
      owner: acme
      repo: events
      labels: [event]
  - type: meetup
    meetup:
      base_url: https://api.meetup.test
      country: se
      category: 34
  - type: eventbrite_html
    eventbrite_html:
      url: https://www.eventbrite.test/d/sweden/events/
geo:
  country: SE
  skip: [Stockholm]
store:
  owner: acme
  repo: site
social:
  hashtag: "#swtech"
  cities:
    stockholm: sthlm
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if got := cfg.Sources[0].GitHub.PageSize; got != 100 {
		t.Errorf("github page size = %d, want 100", got)
	}
	if got := cfg.Sources[1].Meetup.MinMembers; got != 10 {
		t.Errorf("meetup min members = %d, want 10", got)
	}
	if got := cfg.Sources[2].EventbriteHTML.Delay; got != 10*time.Second {
		t.Errorf("html delay = %v, want 10s", got)
	}
	if cfg.Geo.Delay != 5*time.Second || cfg.Geo.CachePath != "cities.json" {
		t.Errorf("geo defaults = %v %q", cfg.Geo.Delay, cfg.Geo.CachePath)
	}
	if cfg.Store.Branch != "master" || cfg.Store.EventsPath != "events.json" ||
		cfg.Store.CalendarPath != "calendar.ics" || cfg.Store.FeedPath != "rss.xml" ||
		cfg.Store.FeedDir != "feeds" {
		t.Errorf("store defaults = %+v", cfg.Store)
	}
	if cfg.Social.Cities["stockholm"] != "sthlm" {
		t.Error("city suffix map not parsed")
	}
}

func TestLoadRejectsInvalidConfigs(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", "{}"},
		{"unknown type", "sources: [{type: carrier-pigeon}]\nstore: {owner: a, repo: b}"},
		{"github without repo", "sources: [{type: github, github: {owner: a}}]\nstore: {owner: a, repo: b}"},
		{"meetup without country", "sources: [{type: meetup}]\nstore: {owner: a, repo: b}"},
		{"meetup without category", "sources: [{type: meetup, meetup: {country: se}}]\nstore: {owner: a, repo: b}"},
		{"eventbrite without category", "sources: [{type: eventbrite, eventbrite: {query: sweden}}]\nstore: {owner: a, repo: b}"},
		{"missing store", "sources: [{type: meetup, meetup: {country: se}}]"},
		{"bad yaml", "sources: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("Load() accepted an invalid config")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Error("Load() must fail for a missing file")
	}
}
