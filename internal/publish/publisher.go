// Package publish sequences the pipeline: fetch from every connector,
// normalize, filter, dedup, enrich, then synchronize the events document
// and regenerate the derived calendar and feed documents. No error from a
// connector, the enricher or the store ever terminates a run; each failed
// path is logged and the run proceeds to the next output.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"techevents/internal/config"
	"techevents/internal/encode"
	"techevents/internal/geo"
	"techevents/internal/models"
	"techevents/internal/pipeline"
	"techevents/internal/source"
	"techevents/internal/store"
)

// DocumentStore is the synchronizer the publisher writes through.
type DocumentStore interface {
	Get(ctx context.Context, path string) ([]byte, bool, error)
	Sync(ctx context.Context, path string, content []byte, merge store.MergeFunc) error
	Delete(ctx context.Context, path string) error
}

// CityResolver resolves a free-text city label to its canonical name.
type CityResolver interface {
	Resolve(ctx context.Context, city string) string
}

// Publisher runs one aggregation cycle.
type Publisher struct {
	sources  []source.Source
	store    DocumentStore
	resolver CityResolver
	cache    *geo.Cache
	cfg      config.StoreConfig
	dryRun   bool
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a publisher. resolver may be nil, which disables enrichment.
func New(sources []source.Source, st DocumentStore, resolver CityResolver, cache *geo.Cache,
	cfg config.StoreConfig, dryRun bool, logger *slog.Logger) *Publisher {
	return &Publisher{
		sources: sources, store: st, resolver: resolver, cache: cache,
		cfg: cfg, dryRun: dryRun, logger: logger, now: time.Now,
	}
}

// Run executes one full cycle.
func (p *Publisher) Run(ctx context.Context) error {
	events := p.aggregate(ctx)

	events = pipeline.Normalize(events)
	events = pipeline.FilterUpcoming(events, p.now())
	events = pipeline.Dedup(events)
	events = pipeline.UnifyCities(events)
	events = p.enrich(ctx, events)
	p.logger.Info("Aggregated events.", "count", len(events))

	// The cache is local state, not a published artifact; persisting it even
	// on a dry run keeps the paid-for lookups.
	if p.cache != nil {
		if err := p.cache.Save(); err != nil {
			p.logger.Error("Failed to save city cache.", "error", err)
		}
	}

	prev := p.previousEvents(ctx)

	// New data first, so a refreshed record wins its link while still-valid
	// stored events survive a partial upstream failure.
	merged := pipeline.FilterUpcoming(pipeline.Dedup(append(events, prev...)), p.now())

	if p.dryRun {
		p.logger.Info("[DRY RUN] Would publish events.", "count", len(merged))
		return nil
	}

	p.syncEvents(ctx, merged)
	p.syncCalendar(ctx, merged)
	p.syncFeeds(ctx, merged, prev)

	p.logger.Info("Run finished.", "events", len(merged))
	return nil
}

// aggregate fetches every source, keeping whatever each one managed to
// return. Sources are rate-limited independently, so one failing never
// stops the others.
func (p *Publisher) aggregate(ctx context.Context) []models.Event {
	var all []models.Event
	for _, src := range p.sources {
		events, err := src.Fetch(ctx)
		if err != nil {
			p.logger.Error("Source fetch failed.", "source", src.Name(), "error", err)
		}
		all = append(all, events...)
	}
	return all
}

// enrich resolves city labels one at a time; the lookup quota is global to
// the process, so there is no parallelism here. A second unification pass
// collapses labels the resolver mapped onto the same city.
func (p *Publisher) enrich(ctx context.Context, events []models.Event) []models.Event {
	if p.resolver == nil {
		return events
	}
	for i := range events {
		events[i].City = p.resolver.Resolve(ctx, events[i].City)
	}
	return pipeline.UnifyCities(events)
}

// previousEvents reads the stored events document; a missing or unreadable
// document is treated as empty.
func (p *Publisher) previousEvents(ctx context.Context) []models.Event {
	raw, found, err := p.store.Get(ctx, p.cfg.EventsPath)
	if err != nil {
		p.logger.Error("Failed to read stored events.", "path", p.cfg.EventsPath, "error", err)
		return nil
	}
	if !found {
		return nil
	}
	var events []models.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		p.logger.Error("Stored events document is malformed, ignoring it.", "path", p.cfg.EventsPath, "error", err)
		return nil
	}
	return events
}

func (p *Publisher) syncEvents(ctx context.Context, events []models.Event) {
	content, err := json.Marshal(events)
	if err != nil {
		p.logger.Error("Failed to marshal events.", "error", err)
		return
	}
	if err := p.store.Sync(ctx, p.cfg.EventsPath, content, p.mergeEvents); err != nil {
		p.logger.Error("Events sync failed.", "path", p.cfg.EventsPath, "error", err)
	}
}

// mergeEvents is the merge applied when the events document already exists:
// concatenate incoming before stored, dedup by link, drop expired. It runs
// against the content read inside the synchronizer, so a concurrent write
// between our earlier read and this one is still merged against fresh data.
func (p *Publisher) mergeEvents(current, incoming []byte) ([]byte, error) {
	var cur, inc []models.Event
	if err := json.Unmarshal(incoming, &inc); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(current, &cur); err != nil {
		// A malformed stored document should not wedge the run forever.
		p.logger.Error("Stored events document is malformed, replacing it.", "error", err)
		cur = nil
	}
	merged := pipeline.FilterUpcoming(pipeline.Dedup(append(inc, cur...)), p.now())
	return json.Marshal(merged)
}

func (p *Publisher) syncCalendar(ctx context.Context, events []models.Event) {
	content, err := encode.Calendar(events, p.cfg.Domain, p.now())
	if err != nil {
		p.logger.Error("Calendar encoding failed.", "error", err)
		return
	}
	if err := p.store.Sync(ctx, p.cfg.CalendarPath, content, nil); err != nil {
		p.logger.Error("Calendar sync failed.", "path", p.cfg.CalendarPath, "error", err)
	}
}

// syncFeeds regenerates the global feed and one feed per city, and deletes
// feeds for cities that had events in the previous document but have none
// now.
func (p *Publisher) syncFeeds(ctx context.Context, events, prev []models.Event) {
	p.syncFeed(ctx, p.cfg.FeedPath, "", events)

	current := make(map[string][]models.Event)
	for _, e := range events {
		if e.City == "" {
			continue
		}
		current[e.City] = append(current[e.City], e)
	}
	currentSlugs := make(map[string]struct{}, len(current))
	for city, cityEvents := range current {
		slug := Slugify(city)
		if slug == "" {
			p.logger.Warn("City has no usable slug, skipping its feed.", "city", city)
			continue
		}
		currentSlugs[slug] = struct{}{}
		p.syncFeed(ctx, p.cityFeedPath(slug), city, cityEvents)
	}

	for _, e := range prev {
		slug := Slugify(e.City)
		if slug == "" {
			continue
		}
		if _, ok := currentSlugs[slug]; ok {
			continue
		}
		currentSlugs[slug] = struct{}{} // delete once
		if err := p.store.Delete(ctx, p.cityFeedPath(slug)); err != nil {
			p.logger.Error("Feed delete failed.", "city", e.City, "error", err)
		}
	}
}

func (p *Publisher) syncFeed(ctx context.Context, feedPath, qualifier string, events []models.Event) {
	content, err := encode.Feed(events, encode.FeedOptions{
		Title:       p.cfg.Domain,
		Description: "Upcoming tech events",
		Qualifier:   qualifier,
		SelfURL:     strings.TrimRight(p.cfg.SiteURL, "/") + "/" + feedPath,
		SiteURL:     p.cfg.SiteURL,
	}, p.now())
	if err != nil {
		p.logger.Error("Feed encoding failed.", "path", feedPath, "error", err)
		return
	}
	if err := p.store.Sync(ctx, feedPath, []byte(content), nil); err != nil {
		p.logger.Error("Feed sync failed.", "path", feedPath, "error", err)
	}
}

func (p *Publisher) cityFeedPath(slug string) string {
	return path.Join(p.cfg.FeedDir, slug+".xml")
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a city label into a stable file-name fragment: diacritics
// folded, lower-cased, non-alphanumerics collapsed to hyphens.
func Slugify(city string) string {
	s := pipeline.FoldCity(city)
	s = slugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// String renders a short run summary, handy for log lines.
func (p *Publisher) String() string {
	names := make([]string, 0, len(p.sources))
	for _, s := range p.sources {
		names = append(names, s.Name())
	}
	return fmt.Sprintf("publisher(%s)", strings.Join(names, ","))
}
