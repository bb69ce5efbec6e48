package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calboard/internal/model"
)

func feed(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var recurring = feed(
	"BEGIN:VEVENT",
	"UID:weekly@test",
	"DTSTAMP:20240101T000000Z",
	"DTSTART:20240304T090000Z",
	"DTEND:20240304T100000Z",
	"RRULE:FREQ=WEEKLY;COUNT=4",
	"EXDATE:20240311T090000Z",
	"SUMMARY:Weekly sync",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly@test",
	"DTSTAMP:20240101T000000Z",
	"RECURRENCE-ID:20240318T090000Z",
	"DTSTART:20240318T140000Z",
	"DTEND:20240318T150000Z",
	"SUMMARY:Weekly sync (moved)",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:holiday@test",
	"DTSTAMP:20240101T000000Z",
	"DTSTART;VALUE=DATE:20240315",
	"DTEND;VALUE=DATE:20240316",
	"SUMMARY:Holiday",
	"CATEGORIES:Holiday",
	"COLOR:#22C55E",
	"END:VEVENT",
)

func march() ExpandConfig {
	return ExpandConfig{
		Location:   time.UTC,
		RangeStart: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
	}
}

func TestParseICS(t *testing.T) {
	parsed, err := ParseICS(Source{ID: "team"}, recurring)
	require.NoError(t, err)
	require.Len(t, parsed, 3)

	assert.Equal(t, "weekly@test", parsed[0].UID)
	assert.Equal(t, "FREQ=WEEKLY;COUNT=4", parsed[0].RawRRule)
	require.Len(t, parsed[0].ExDates, 1)

	assert.True(t, parsed[1].IsOverride)
	require.NotNil(t, parsed[1].Recurrence)

	assert.True(t, parsed[2].AllDay)
	assert.Equal(t, "Holiday", parsed[2].Category)
	assert.Equal(t, "#22c55e", parsed[2].Color)
}

func TestParseICSEmpty(t *testing.T) {
	_, err := ParseICS(Source{ID: "x"}, nil)
	assert.Error(t, err)
}

func TestExpandOccurrences(t *testing.T) {
	parsed, err := ParseICS(Source{ID: "team"}, recurring)
	require.NoError(t, err)

	res, err := ExpandOccurrences(parsed, march())
	require.NoError(t, err)
	assert.Empty(t, res.TruncatedEvents)

	var weekly []model.Event
	var holiday *model.Event
	for i, e := range res.Events {
		assert.Equal(t, "team", e.SourceID)
		if e.Title == "Holiday" {
			holiday = &res.Events[i]
			continue
		}
		weekly = append(weekly, e)
	}

	require.Len(t, weekly, 3, "4 instances minus one EXDATE")
	assert.Equal(t, time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), weekly[0].Start)
	assert.Equal(t, "Weekly sync (moved)", weekly[1].Title)
	assert.Equal(t, time.Date(2024, 3, 18, 14, 0, 0, 0, time.UTC), weekly[1].Start)
	assert.Equal(t, time.Date(2024, 3, 25, 10, 0, 0, 0, time.UTC), weekly[2].End)

	require.NotNil(t, holiday)
	assert.Equal(t, "Holiday", holiday.Category)
	assert.Equal(t, "#22c55e", holiday.Color)
	assert.Equal(t, 24*time.Hour, holiday.Duration())
}

func TestExpandIDsAreStable(t *testing.T) {
	parsed, err := ParseICS(Source{ID: "team"}, recurring)
	require.NoError(t, err)

	a, err := ExpandOccurrences(parsed, march())
	require.NoError(t, err)
	b, err := ExpandOccurrences(parsed, march())
	require.NoError(t, err)

	require.Equal(t, len(a.Events), len(b.Events))
	seen := map[string]bool{}
	for i := range a.Events {
		assert.Equal(t, a.Events[i].ID, b.Events[i].ID)
		assert.False(t, seen[a.Events[i].ID], "ids must be unique")
		seen[a.Events[i].ID] = true
	}
}

func TestExpandCap(t *testing.T) {
	parsed, err := ParseICS(Source{ID: "team"}, recurring)
	require.NoError(t, err)

	cfg := march()
	cfg.MaxOccurrencesPerEvent = 1
	res, err := ExpandOccurrences(parsed, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"weekly@test"}, res.TruncatedEvents)
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	cfg := march()
	cfg.RangeStart, cfg.RangeEnd = cfg.RangeEnd, cfg.RangeStart
	_, err := ExpandOccurrences(nil, cfg)
	assert.Error(t, err)
}

func TestExportRoundTrip(t *testing.T) {
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	events := []model.Event{
		{ID: "a1", Title: "Dentist", Description: "bring card", Start: start, End: start.Add(time.Hour), Color: "#3b82f6", Category: "Personal"},
		{ID: "a2", Title: "Standup", Start: start.AddDate(0, 0, 1), End: start.AddDate(0, 0, 1).Add(15 * time.Minute), Color: model.DefaultColor(), Category: "Meeting"},
	}

	body := Export(events, "Mine", start)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")

	parsed, err := ParseICS(Source{ID: "local"}, body)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, "a1", parsed[0].UID)

	res, err := ExpandOccurrences(parsed, march())
	require.NoError(t, err)
	require.Len(t, res.Events, 2)

	got := res.Events[0]
	assert.Equal(t, "Dentist", got.Title)
	assert.Equal(t, "bring card", got.Description)
	assert.True(t, start.Equal(got.Start))
	assert.Equal(t, time.Hour, got.Duration())
	assert.Equal(t, "#3b82f6", got.Color)
	assert.Equal(t, "Personal", got.Category)
	assert.Equal(t, "Meeting", res.Events[1].Category)
}

func TestFetcherCaching(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(recurring)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), WithRateLimit(time.Millisecond, 10))
	src := Source{ID: "team", URL: srv.URL + "/team.ics"}

	first, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, recurring, first.Body)

	second, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, recurring, second.Body)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetcherFallsBackOnServerError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(recurring)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), WithRateLimit(time.Millisecond, 10))
	src := Source{ID: "team", URL: srv.URL}

	_, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.FetchOne(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	other := Source{ID: "other", URL: srv.URL + "/other"}
	results, errs := f.FetchAll(context.Background(), []Source{src, other})
	assert.Len(t, results, 1)
	assert.Len(t, errs, 1)
}

func TestFetchOneRequiresURL(t *testing.T) {
	_, err := NewFetcher(t.TempDir()).FetchOne(context.Background(), Source{ID: "x"})
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://calendar.example.com/...(redacted)", redactURL("https://calendar.example.com/private/abc.ics?token=s3cret"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
