package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"techevents/internal/config"
	"techevents/internal/metrics"
	"techevents/internal/models"
)

// GitHub fetches events from issues labeled in a tracker repository.
type GitHub struct {
	client *github.Client
	cfg    config.GitHubSourceConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewGitHub creates the issue-tracker connector. An empty token yields an
// unauthenticated client, which is enough for public repositories. Every
// request is bounded by timeout, token or not.
func NewGitHub(cfg config.GitHubSourceConfig, token string, timeout time.Duration, logger *slog.Logger) *GitHub {
	hc := NewHTTPClient(timeout)
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(ctx, ts)
		hc.Timeout = timeout
	}
	return &GitHub{client: github.NewClient(hc), cfg: cfg, logger: logger, now: time.Now}
}

func (s *GitHub) Name() string { return "github" }

// Fetch lists open labeled issues page by page, parses each body into an
// event, closes issues whose date has passed, and drops unparsable records.
// A failed page fetch ends pagination; pages already collected are kept.
func (s *GitHub) Fetch(ctx context.Context) ([]models.Event, error) {
	opt := &github.IssueListByRepoOptions{
		State:       "open",
		Labels:      s.cfg.Labels,
		ListOptions: github.ListOptions{PerPage: s.cfg.PageSize},
	}

	var events []models.Event
	nowMillis := s.now().UnixMilli()
	for {
		issues, resp, err := s.client.Issues.ListByRepo(ctx, s.cfg.Owner, s.cfg.Repo, opt)
		if err != nil {
			s.logger.Error("GitHub issue listing failed, keeping partial results.", "error", err, "page", opt.Page)
			return events, nil
		}
		for _, issue := range issues {
			ev := ParseIssue(issue.GetBody(), issue.GetNumber())
			if !ev.Valid() {
				metrics.EventsDropped.WithLabelValues(s.Name(), "invalid").Inc()
				continue
			}
			if ev.Date < nowMillis {
				s.closePassed(ctx, ev.Number)
				metrics.EventsDropped.WithLabelValues(s.Name(), "passed").Inc()
				continue
			}
			events = append(events, ev)
		}
		if resp.NextPage == 0 {
			break
		}
		if err := sleepCtx(ctx, s.cfg.Delay); err != nil {
			return events, nil
		}
		opt.Page = resp.NextPage
	}
	metrics.EventsFetched.WithLabelValues(s.Name()).Add(float64(len(events)))
	s.logger.Info("Fetched GitHub issues.", "count", len(events))
	return events, nil
}

// closePassed closes an issue whose event date has elapsed. Failure to close
// is logged and otherwise ignored; the record is dropped regardless.
func (s *GitHub) closePassed(ctx context.Context, number int) {
	if !s.cfg.ClosePassed {
		return
	}
	state := "closed"
	_, _, err := s.client.Issues.Edit(ctx, s.cfg.Owner, s.cfg.Repo, number, &github.IssueRequest{State: &state})
	if err != nil {
		s.logger.Error("Failed to close passed issue.", "number", number, "error", err)
		return
	}
	s.logger.Info(fmt.Sprintf("Closed issue #%d", number))
}
