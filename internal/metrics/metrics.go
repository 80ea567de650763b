// Package metrics exposes the run counters. In watch mode they are served
// over HTTP; in one-shot mode they still count, which keeps the call sites
// unconditional.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsFetched counts events a connector emitted, per source.
	EventsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "techevents_events_fetched_total",
		Help: "Events emitted by a connector.",
	}, []string{"source"})

	// EventsDropped counts records dropped at the source boundary, per reason.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "techevents_events_dropped_total",
		Help: "Records dropped before leaving a connector.",
	}, []string{"source", "reason"})

	// StoreWrites counts remote document writes by outcome
	// (created, updated, conflict, error, deleted).
	StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "techevents_store_writes_total",
		Help: "Remote document operations by outcome.",
	}, []string{"outcome"})

	// GeoLookups counts enrichment lookups by outcome (hit, resolved, failed).
	GeoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "techevents_geo_lookups_total",
		Help: "City enrichment lookups by outcome.",
	}, []string{"outcome"})

	// Posts counts announcement attempts by outcome (posted, duplicate, error).
	Posts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "techevents_posts_total",
		Help: "Status posts by outcome.",
	}, []string{"outcome"})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
