package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"techevents/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMeetupFetch(t *testing.T) {
	future := time.Now().Add(48 * time.Hour).UnixMilli()
	past := time.Now().Add(-time.Hour).UnixMilli()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/cities":
			fmt.Fprint(w, `{"results":[
				{"city":"Stockholm","country":"se","member_count":500},
				{"city":"Tiny","country":"se","member_count":3}
			]}`)
		case "/2/open_events":
			if r.URL.Query().Get("city") != "Stockholm" {
				t.Errorf("unexpected city query: %s", r.URL.Query().Get("city"))
			}
			fmt.Fprintf(w, `{"results":[
				{"name":"Go Meetup","time":%d,"event_url":"https://example.com/1",
				 "description":"desc","venue":{"city":"111 22 Stockholm","country":"se"},
				 "group":{"urlname":"go-stockholm"}},
				{"name":"Passed","time":%d,"event_url":"https://example.com/2",
				 "venue":{"city":"Stockholm","country":"se"},"group":{"urlname":"g"}},
				{"name":"No venue","time":%d,"event_url":"https://example.com/3",
				 "group":{"urlname":"g"}},
				{"name":"Abroad","time":%d,"event_url":"https://example.com/4",
				 "venue":{"city":"Oslo","country":"no"},"group":{"urlname":"g"}},
				{"name":"Excluded","time":%d,"event_url":"https://example.com/5",
				 "venue":{"city":"Stockholm","country":"se"},"group":{"urlname":"Spam-Group"}}
			]}`, future, past, future, future, future)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewMeetup(config.MeetupSourceConfig{
		BaseURL:       srv.URL,
		Category:      34,
		Country:       "se",
		MinMembers:    10,
		ExcludeGroups: []string{"spam-group"},
	}, srv.Client(), testLogger())
	s.cfg.Delay = 0

	events, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(events), events)
	}
	ev := events[0]
	if ev.Title != "Go Meetup" || ev.Link != "https://example.com/1" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.City != "Stockholm" {
		t.Errorf("postal digits not stripped from city: %q", ev.City)
	}
	if !ev.Free {
		t.Error("meetup events default to free")
	}
}

func TestMeetupFailedCityQueryKeepsOthers(t *testing.T) {
	future := time.Now().Add(48 * time.Hour).UnixMilli()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/cities":
			fmt.Fprint(w, `{"results":[
				{"city":"Broken","country":"se","member_count":100},
				{"city":"Stockholm","country":"se","member_count":100}
			]}`)
		case "/2/open_events":
			if r.URL.Query().Get("city") == "Broken" {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			fmt.Fprintf(w, `{"results":[{"name":"E","time":%d,"event_url":"https://example.com/1",
				"venue":{"city":"Stockholm","country":"se"},"group":{"urlname":"g"}}]}`, future)
		}
	}))
	defer srv.Close()

	s := NewMeetup(config.MeetupSourceConfig{BaseURL: srv.URL, Country: "se", MinMembers: 10}, srv.Client(), testLogger())
	s.cfg.Delay = 0

	events, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("partial results lost: got %d events", len(events))
	}
}
