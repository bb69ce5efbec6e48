package ics

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	appLog "calboard/internal/log"
	"calboard/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// idNamespace seeds the deterministic UUIDs of imported occurrences so a
// refresh produces the same ids for the same instances.
var idNamespace = uuid.MustParse("6f1c7a0e-2b8e-4d8c-9a53-5c1f0d3b7e21")

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// Location is the zone occurrences are converted into. Nil means
	// time.Local.
	Location *time.Location

	// RangeStart / RangeEnd define the inclusive time window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. Zero uses the default.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the expanded events and the UIDs that hit the cap.
type ExpandResult struct {
	Events          []model.Event
	TruncatedEvents []string
}

// ExpandOccurrences turns parsed VEVENTs into concrete calendar events inside
// the configured window. It handles single events, RRULE recurrence, EXDATE
// removal, RECURRENCE-ID overrides and all-day semantics.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID, keeping first-seen order so
	// the output is stable across refreshes.
	order := make([]string, 0)
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)

	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	out := make([]model.Event, 0)
	for _, uid := range order {
		truncated := false
		for _, ev := range baseByUID[uid] {
			occ, hitCap := expandEvent(ev, overridesByUID[uid], cfg)
			truncated = truncated || hitCap
			out = append(out, occ...)
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	result.Events = out
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Event {
	if o, ok := findOverride(overrides, ev.Start); ok {
		ev = o
	}
	if !overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.Event{toEvent(ev, ev.Start, ev.End, cfg.Location)}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	out := make([]model.Event, 0)

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event length so occurrences that started
	// before the window but still run into it are kept.
	dur := ev.End.Sub(ev.Start)
	from := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	to := cfg.RangeEnd.In(ev.Start.Location())

	starts := set.Between(from, to, true)
	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, occStart := range starts {
		occEnd := occStart.Add(dur)
		if ev.AllDay {
			day := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart, occEnd = day, day.AddDate(0, 0, 1)
		}

		base := ev
		if o, ok := findOverride(overrides, occStart); ok {
			base = o
			occStart, occEnd = o.Start, o.End
		}
		if !overlaps(occStart, occEnd, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		out = append(out, toEvent(base, occStart, occEnd, cfg.Location))
	}

	return out, hitCap
}

// findOverride returns the override whose RECURRENCE-ID equals start.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// toEvent converts one occurrence into a model.Event in loc. Colors and
// categories outside the fixed lists fall back to the defaults.
func toEvent(ev ParsedEvent, start, end time.Time, loc *time.Location) model.Event {
	start = start.In(loc)
	end = end.In(loc)

	color := ev.Color
	if !model.ValidColor(color) {
		color = model.DefaultColor()
	}
	category := ev.Category
	if !model.ValidCategory(category) {
		category = model.DefaultCategory()
	}

	key := ev.Source.ID + "\x00" + ev.UID + "\x00" + start.UTC().Format(time.RFC3339Nano)
	return model.Event{
		ID:          uuid.NewSHA1(idNamespace, []byte(key)).String(),
		Title:       ev.Summary,
		Description: ev.Description,
		Start:       start,
		End:         end,
		Color:       color,
		Category:    category,
		SourceID:    ev.Source.ID,
	}
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
