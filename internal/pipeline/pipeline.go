// Package pipeline holds the pure transformation stages the aggregated
// events flow through: normalization, link dedup, date filtering and
// diacritic city unification.
package pipeline

import (
	"html"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"techevents/internal/models"
)

const (
	titleMax       = 100
	descriptionMax = 280
	ellipsis       = "..."
)

var stripPolicy = bluemonday.StrictPolicy()

// Truncate cuts s at max runes, appending an ellipsis only when it cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + ellipsis
}

// StripHTML removes markup from s, returning plain text.
func StripHTML(s string) string {
	return html.UnescapeString(stripPolicy.Sanitize(s))
}

// Normalize applies the canonical field rules to every event: bounded title,
// markup-free bounded description. Date validity is not checked here; the
// zero sentinel is consumed by Valid checks downstream.
func Normalize(events []models.Event) []models.Event {
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		e.Title = Truncate(strings.TrimSpace(e.Title), titleMax)
		e.Description = Truncate(strings.TrimSpace(StripHTML(e.Description)), descriptionMax)
		out = append(out, e)
	}
	return out
}

// Dedup collapses the sequence to one event per link, first occurrence wins.
// It is idempotent: Dedup(Dedup(xs)) == Dedup(xs).
func Dedup(events []models.Event) []models.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		if e.Link == "" {
			continue
		}
		if _, ok := seen[e.Link]; ok {
			continue
		}
		seen[e.Link] = struct{}{}
		out = append(out, e)
	}
	return out
}

// FilterUpcoming keeps events whose date is at or after now. Events with an
// invalid (zero) date fall out here as well.
func FilterUpcoming(events []models.Event, now time.Time) []models.Event {
	cutoff := now.UnixMilli()
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		if e.Date >= cutoff && e.Valid() {
			out = append(out, e)
		}
	}
	return out
}

var foldTransform = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldCity lowercases s and strips combining marks, so "Malmö" and "malmo"
// share one key.
func FoldCity(s string) string {
	folded, _, err := transform.String(foldTransform, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// UnifyCities picks a single representative spelling per ASCII-folded city
// key across the batch, so diacritic variants of the same city do not split
// into separate labels. The first spelling seen wins, except the label
// "gothenburg" which always becomes "Göteborg".
func UnifyCities(events []models.Event) []models.Event {
	spelling := make(map[string]string)
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		city := strings.TrimSpace(e.City)
		if city == "" {
			out = append(out, e)
			continue
		}
		if strings.EqualFold(city, "gothenburg") {
			city = "Göteborg"
		}
		key := FoldCity(city)
		if rep, ok := spelling[key]; ok {
			city = rep
		} else {
			spelling[key] = city
		}
		e.City = city
		out = append(out, e)
	}
	return out
}
