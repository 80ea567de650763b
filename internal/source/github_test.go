package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"

	"techevents/internal/config"
)

func TestNewGitHubBoundsRequests(t *testing.T) {
	for _, token := range []string{"", "secret"} {
		s := NewGitHub(config.GitHubSourceConfig{Owner: "acme", Repo: "events"}, token, 200*time.Millisecond, testLogger())
		if got := s.client.Client().Timeout; got != 200*time.Millisecond {
			t.Errorf("token %q: client timeout = %v, want 200ms", token, got)
		}
	}
}

func newTestGitHub(t *testing.T, srv *httptest.Server, cfg config.GitHubSourceConfig) *GitHub {
	t.Helper()
	s := NewGitHub(cfg, "", 10*time.Second, testLogger())
	s.client = github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	s.client.BaseURL = base
	s.cfg.Delay = 0
	return s
}

func TestGitHubFetch(t *testing.T) {
	var closed atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/acme/events/issues":
			if got := r.URL.Query().Get("labels"); got != "event" {
				t.Errorf("labels query = %q", got)
			}
			issues := []map[string]any{
				{"number": 1, "body": "Title: Upcoming\nDate: 2030-01-01\nLink: https://example.com/1"},
				{"number": 2, "body": "Title: Passed\nDate: 2001-01-01\nLink: https://example.com/2"},
				{"number": 3, "body": "Title: No date\nLink: https://example.com/3"},
			}
			json.NewEncoder(w).Encode(issues)
		case r.Method == http.MethodPatch && r.URL.Path == "/repos/acme/events/issues/2":
			closed.Add(1)
			var req struct {
				State string `json:"state"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			if req.State != "closed" {
				t.Errorf("state = %q, want closed", req.State)
			}
			fmt.Fprint(w, `{"number":2,"state":"closed"}`)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := newTestGitHub(t, srv, config.GitHubSourceConfig{
		Owner: "acme", Repo: "events", Labels: []string{"event"}, PageSize: 100, ClosePassed: true,
	})

	events, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(events), events)
	}
	if events[0].Title != "Upcoming" || events[0].Number != 1 {
		t.Errorf("unexpected event: %+v", events[0])
	}
	if closed.Load() != 1 {
		t.Errorf("passed issue close calls = %d, want 1", closed.Load())
	}
}

func TestGitHubFetchFailureYieldsNoEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestGitHub(t, srv, config.GitHubSourceConfig{Owner: "acme", Repo: "events", PageSize: 100})

	events, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("a failed page must not fail the run: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}
