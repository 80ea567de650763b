package source

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"techevents/internal/models"
)

var keyLine = regexp.MustCompile(`^\w+:`)

// ParseIssue builds an event from a semi-structured issue body. The body is
// the last segment after the comment marker, holding "key: value" lines;
// lines that do not start a new key continue the previous value.
func ParseIssue(body string, number int) models.Event {
	if i := strings.LastIndex(body, "-->"); i >= 0 {
		body = body[i+len("-->"):]
	}
	body = strings.ReplaceAll(body, "\r\n", "\n")
	lines := strings.Split(strings.TrimSpace(body), "\n")

	merged := make([]string, 0, len(lines))
	for _, ln := range lines {
		if !keyLine.MatchString(ln) && len(merged) > 0 {
			merged[len(merged)-1] += ln
			continue
		}
		merged = append(merged, ln)
	}

	fields := make(map[string]string, len(merged))
	for _, ln := range merged {
		key, val, ok := strings.Cut(ln, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		// Heal links that lost the colon to the key split above.
		val = strings.ReplaceAll(val, "https//", "https://")
		val = strings.ReplaceAll(val, "http//", "http://")
		fields[strings.ToLower(key)] = val
	}

	free := true
	if f, ok := fields["free"]; ok && f != "" {
		free = !strings.EqualFold(f, "false")
	}

	return models.Event{
		Title:       fields["title"],
		Date:        ParseDateMillis(fields["date"]),
		Link:        fields["link"],
		City:        fields["city"],
		Description: fields["description"],
		Free:        free,
		Number:      number,
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"January 2, 2006 15:04",
	"January 2, 2006",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"2 January 2006 15:04",
	"2 January 2006",
	"Mon, Jan 2, 3:04 PM 2006",
	"Jan 2, 3:04 PM 2006",
	"January 2, 3:04 PM 2006",
}

// ParseDateMillis parses a free-form date string into epoch milliseconds.
// It returns 0 when the string is unparsable; downstream validity checks
// drop such records.
func ParseDateMillis(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		// Bare digits: epoch seconds up to 10 digits, milliseconds beyond.
		if len(s) <= 10 {
			return ms * 1000
		}
		return ms
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}
