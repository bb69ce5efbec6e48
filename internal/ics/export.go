package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"calboard/internal/model"
)

const productID = "-//calboard//calboard 1.0//EN"

// Export serialises events as a VCALENDAR. UIDs are the event ids, so an
// exported file can be re-imported without duplicating entries.
func Export(events []model.Event, name string, now time.Time) []byte {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, e := range events {
		ve := cal.AddEvent(e.ID)
		ve.SetDtStampTime(now)
		ve.SetStartAt(e.Start)
		ve.SetEndAt(e.End)
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if e.Color != "" {
			ve.SetProperty(propertyColor, e.Color)
		}
		if e.Category != "" {
			ve.SetProperty(propertyCategories, e.Category)
		}
	}

	return []byte(cal.Serialize())
}
