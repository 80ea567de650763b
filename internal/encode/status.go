package encode

import (
	"strings"
	"unicode/utf8"

	"techevents/internal/config"
	"techevents/internal/models"
)

const (
	statusBudget   = 280
	statusTitleMax = 177
)

// Status builds the announcement text for one event. The budget is spent
// greedily in a fixed order: title, link, not-free marker, city hashtag,
// global hashtag, per-city suffix. A component is appended only when it
// fits in full; it is never abbreviated.
func Status(e models.Event, cfg config.SocialConfig) string {
	title := []rune(e.Title)
	status := string(title)
	if len(title) > statusTitleMax {
		status = string(title[:statusTitleMax]) + "..."
	}
	budget := statusBudget - utf8.RuneCountInString(status)

	if n := utf8.RuneCountInString(e.Link); e.Link != "" && budget >= n+1 {
		status += " " + e.Link
		budget -= n + 1
	}

	if !e.Free && budget >= 4 {
		status += " ($)"
		budget -= 4
	}

	city := strings.ToLower(e.City)
	if n := utf8.RuneCountInString(city); city != "" && budget >= n+2 {
		status += " #" + city
		budget -= n + 2
	}

	if tag := strings.TrimPrefix(cfg.Hashtag, "#"); tag != "" {
		if n := utf8.RuneCountInString(tag); budget >= n+2 {
			status += " #" + tag
			budget -= n + 2
		}
	}

	if suffix := cfg.Cities[city]; suffix != "" {
		if n := utf8.RuneCountInString(suffix); budget >= n+1 {
			status += " " + suffix
		}
	}

	return status
}
