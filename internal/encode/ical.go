// Package encode holds the pure output encoders: calendar, syndication feed
// and status text. None of them perform I/O.
package encode

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"techevents/internal/models"
)

// Calendar renders the events as an iCalendar document, one VEVENT per
// event with its start time, a generation timestamp, title and link.
func Calendar(events []models.Event, domain string, now time.Time) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, fmt.Sprintf("-//%s//EN", domain))

	for _, e := range events {
		ve := ical.NewComponent(ical.CompEvent)
		ve.Props.SetText(ical.PropUID, uuid.New().String())
		ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeStart, e.Start().UTC())
		ve.Props.SetText(ical.PropSummary, e.Title)
		ve.Props.SetText(ical.PropURL, e.Link)
		cal.Children = append(cal.Children, ve)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}
