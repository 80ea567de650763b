package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"techevents/internal/config"
	"techevents/internal/encode"
	"techevents/internal/metrics"
	"techevents/internal/models"
	"techevents/internal/pipeline"
)

// Poster publishes one status and returns the post identifier.
type Poster interface {
	Post(ctx context.Context, status string) (string, error)
}

// Suppressor remembers which links were already announced.
type Suppressor interface {
	Seen(ctx context.Context, link string) (bool, error)
	Mark(ctx context.Context, link string, ttl time.Duration) error
}

// Announcer posts not-yet-announced upcoming events.
type Announcer struct {
	store  DocumentStore
	poster Poster
	sup    Suppressor
	cfg    config.SocialConfig
	events string // stored events document path
	dryRun bool
	logger *slog.Logger
	now    func() time.Time
}

// NewAnnouncer creates an announcer reading events from the stored document
// at eventsPath.
func NewAnnouncer(st DocumentStore, poster Poster, sup Suppressor, cfg config.SocialConfig,
	eventsPath string, dryRun bool, logger *slog.Logger) *Announcer {
	return &Announcer{
		store: st, poster: poster, sup: sup, cfg: cfg,
		events: eventsPath, dryRun: dryRun, logger: logger, now: time.Now,
	}
}

// Run posts every upcoming stored event whose link is not in the
// suppression store, then marks the link with a TTL equal to the time left
// until the event starts, so the entry expires together with the event.
// A duplicate or a failed post never stops the remaining events.
func (a *Announcer) Run(ctx context.Context) error {
	raw, found, err := a.store.Get(ctx, a.events)
	if err != nil {
		return err
	}
	if !found {
		a.logger.Info("No events document yet, nothing to announce.")
		return nil
	}
	var events []models.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return err
	}

	now := a.now()
	for _, e := range pipeline.FilterUpcoming(events, now) {
		seen, err := a.sup.Seen(ctx, e.Link)
		if err != nil {
			a.logger.Error("Suppression check failed.", "link", e.Link, "error", err)
			continue
		}
		if seen {
			metrics.Posts.WithLabelValues("duplicate").Inc()
			a.logger.Info("Status is a duplicate.", "link", e.Link)
			continue
		}

		status := encode.Status(e, a.cfg)
		if a.dryRun {
			a.logger.Info("[DRY RUN] Would post status.", "status", status)
			continue
		}

		id, err := a.poster.Post(ctx, status)
		if err != nil {
			metrics.Posts.WithLabelValues("error").Inc()
			a.logger.Error("Post failed.", "title", e.Title, "error", err)
			continue
		}
		metrics.Posts.WithLabelValues("posted").Inc()
		a.logger.Info("Posted status.", "title", e.Title, "id", id)

		ttl := e.Start().Sub(now)
		if err := a.sup.Mark(ctx, e.Link, ttl); err != nil {
			a.logger.Error("Failed to mark posted link.", "link", e.Link, "error", err)
		}
	}
	return nil
}
