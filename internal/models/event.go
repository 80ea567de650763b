package models

import "time"

// Event is the canonical event record, the common currency of the pipeline.
// JSON keys match the persisted events document so existing documents
// round-trip unchanged.
type Event struct {
	Title       string `json:"title"`
	Date        int64  `json:"date"` // epoch milliseconds
	Link        string `json:"link"`
	City        string `json:"city,omitempty"`
	Description string `json:"description,omitempty"`
	Free        bool   `json:"free"`
	// Number is the originating issue number, set only for issue-sourced
	// events so the upstream issue can be closed once the date has passed.
	Number int `json:"number,omitempty"`
}

// Valid reports whether the event carries the minimum the pipeline needs:
// a link identity and a parseable date. Records failing either are dropped.
func (e Event) Valid() bool {
	return e.Link != "" && e.Date > 0
}

// Start returns the event date as a time.Time.
func (e Event) Start() time.Time {
	return time.UnixMilli(e.Date)
}
