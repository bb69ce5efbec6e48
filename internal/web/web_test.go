package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calboard/internal/config"
	"calboard/internal/model"
	"calboard/internal/state"
	calsync "calboard/internal/sync"
)

var anchor = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) (*Server, *state.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	store := state.New(anchor)
	opts = append([]Option{WithClock(func() time.Time { return anchor })}, opts...)
	return NewServer(cfg, store, opts...), store
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func seed(store *state.Store) {
	store.AddEvent(model.Event{ID: "e1", Title: "Dentist", Start: anchor, End: anchor.Add(time.Hour), Color: "#3b82f6", Category: "Personal"})
	store.AddEvent(model.Event{ID: "e2", Title: "Review", Start: anchor.AddDate(0, 0, 2), End: anchor.AddDate(0, 0, 2).Add(30 * time.Minute), Color: "#ef4444", Category: "Work"})
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/state", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.SetBasicAuth("u", "p")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestState(t *testing.T) {
	s, store := newTestServer(t)
	seed(store)

	rec := do(t, s.Handler(), http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[stateResponse](t, rec)
	assert.Equal(t, model.ViewMonth, got.ViewMode)
	assert.Equal(t, 2, got.EventCount)
	assert.Equal(t, "March 2024", got.Title)
}

func TestMonth(t *testing.T) {
	s, store := newTestServer(t)
	seed(store)

	rec := do(t, s.Handler(), http.MethodGet, "/api/month?date=2024-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[monthResponse](t, rec)

	assert.Equal(t, "March 2024", got.Title)
	require.Len(t, got.Days, 31)
	assert.Equal(t, 1, got.Grid[0][5], "March 1 2024 is a Friday")
	assert.Len(t, got.Days[9].Events, 1)
	assert.Equal(t, "Dentist", got.Days[9].Events[0].Title)
	assert.Empty(t, got.Days[10].Events)
}

func TestMonthCacheInvalidatesOnMutation(t *testing.T) {
	s, store := newTestServer(t)
	h := s.Handler()

	first := decode[monthResponse](t, do(t, h, http.MethodGet, "/api/month", nil))
	assert.Empty(t, first.Days[9].Events)

	seed(store)
	second := decode[monthResponse](t, do(t, h, http.MethodGet, "/api/month", nil))
	assert.Len(t, second.Days[9].Events, 1)
}

func TestMonthAnchorFollowsStore(t *testing.T) {
	s, store := newTestServer(t)
	h := s.Handler()

	first := decode[monthResponse](t, do(t, h, http.MethodGet, "/api/month", nil))
	assert.True(t, anchor.Equal(first.Anchor))

	later := anchor.Add(5 * time.Hour)
	store.SetCurrentDate(later)
	second := decode[monthResponse](t, do(t, h, http.MethodGet, "/api/month", nil))
	assert.True(t, later.Equal(second.Anchor), "same day, newer anchor")
}

func TestMonthBadDate(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/month?date=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWeek(t *testing.T) {
	s, store := newTestServer(t)
	seed(store)

	rec := do(t, s.Handler(), http.MethodGet, "/api/week?date=2024-03-13", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[weekResponse](t, rec)

	require.Len(t, got.Days, 7)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), got.Start)
	require.Len(t, got.Days[0].Events, 1)
	assert.Equal(t, 18.0, got.Days[0].Events[0].Slot)
	assert.Equal(t, 2.0, got.Days[0].Events[0].Slots)
	require.Len(t, got.Days[2].Events, 1)
	assert.Equal(t, 1.0, got.Days[2].Events[0].Slots)
}

func TestListEventsInRange(t *testing.T) {
	s, store := newTestServer(t)
	seed(store)
	h := s.Handler()

	all := decode[[]model.Event](t, do(t, h, http.MethodGet, "/api/events", nil))
	assert.Len(t, all, 2)

	some := decode[[]model.Event](t, do(t, h, http.MethodGet, "/api/events?from=2024-03-10&to=2024-03-10", nil))
	require.Len(t, some, 1)
	assert.Equal(t, "e1", some[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/events?from=x&to=y", nil).Code)
}

func TestCreateEvent(t *testing.T) {
	s, store := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/events", map[string]any{
		"title": "  Lunch ",
		"start": anchor,
		"end":   anchor.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	ev := decode[model.Event](t, rec)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "Lunch", ev.Title)
	assert.Equal(t, model.DefaultColor(), ev.Color)

	stored, ok := store.Event(ev.ID)
	require.True(t, ok)
	assert.Equal(t, "Lunch", stored.Title)
}

func TestCreateEventValidation(t *testing.T) {
	s, store := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodPost, "/api/events", map[string]any{
		"title": "",
		"start": anchor,
		"end":   anchor.Add(-time.Hour),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	got := decode[validationResponse](t, rec)
	assert.Len(t, got.Fields, 2)
	assert.Empty(t, store.Events())
}

func TestGetUpdateDeleteEvent(t *testing.T) {
	s, store := newTestServer(t)
	seed(store)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/events/e1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Dentist", decode[model.Event](t, rec).Title)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/events/missing", nil).Code)

	rec = do(t, h, http.MethodPatch, "/api/events/e1", map[string]any{"title": "Orthodontist"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[model.Event](t, rec)
	assert.Equal(t, "Orthodontist", updated.Title)
	assert.Equal(t, "Personal", updated.Category)

	rec = do(t, h, http.MethodPatch, "/api/events/e1", map[string]any{"color": "#123456"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPatch, "/api/events/missing", map[string]any{"title": "x"}).Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/events/e1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/events/e1", nil).Code)
	assert.Len(t, store.Events(), 1)
}

func TestUpdateEventRejectsEndBeforeStart(t *testing.T) {
	s, store := newTestServer(t)
	seed(store)
	h := s.Handler()

	rec := do(t, h, http.MethodPatch, "/api/events/e1", map[string]any{"end": anchor.Add(-time.Hour)})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	got := decode[validationResponse](t, rec)
	require.Len(t, got.Fields, 1)
	assert.Equal(t, "end", got.Fields[0].Field)

	ev, ok := store.Event("e1")
	require.True(t, ok)
	assert.Equal(t, anchor.Add(time.Hour), ev.End, "rejected patch leaves the event unchanged")
}

func TestConcurrentPatchesKeepEndAfterStart(t *testing.T) {
	s, store := newTestServer(t)
	seed(store)
	h := s.Handler()

	var wg sync.WaitGroup
	codes := make([]int, 2)
	bodies := []map[string]any{
		{"start": anchor.Add(50 * time.Minute)},
		{"end": anchor.Add(30 * time.Minute)},
	}
	for i, body := range bodies {
		i, body := i, body
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = do(t, h, http.MethodPatch, "/api/events/e1", body).Code
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusOK, http.StatusBadRequest}, codes)
	ev, ok := store.Event("e1")
	require.True(t, ok)
	assert.False(t, ev.End.Before(ev.Start))
}

func TestReschedule(t *testing.T) {
	s, store := newTestServer(t)
	seed(store)
	h := s.Handler()

	newStart := time.Date(2024, 3, 12, 14, 0, 0, 0, time.UTC)
	rec := do(t, h, http.MethodPost, "/api/events/e1/reschedule", map[string]any{"start": newStart})
	require.Equal(t, http.StatusOK, rec.Code)
	ev := decode[model.Event](t, rec)
	assert.True(t, newStart.Equal(ev.Start))
	assert.True(t, newStart.Add(time.Hour).Equal(ev.End))

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/events/e1/reschedule", map[string]any{}).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/events/nope/reschedule", map[string]any{"start": newStart}).Code)
}

func TestNavigate(t *testing.T) {
	s, store := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name string
		req  navigateRequest
		want time.Time
	}{
		{"next month", navigateRequest{Action: "next"}, time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)},
		{"previous month", navigateRequest{Action: "prev"}, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)},
		{"goto", navigateRequest{Action: "goto", Date: "2024-12-25"}, time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)},
		{"arrow right", navigateRequest{Action: "right"}, time.Date(2024, 12, 26, 0, 0, 0, 0, time.UTC)},
		{"arrow up", navigateRequest{Action: "ArrowUp"}, time.Date(2024, 12, 19, 0, 0, 0, 0, time.UTC)},
		{"today", navigateRequest{Action: "today"}, anchor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/navigate", tt.req)
			require.Equal(t, http.StatusOK, rec.Code)
			got := decode[stateResponse](t, rec)
			assert.True(t, tt.want.Equal(got.CurrentDate), "got %s", got.CurrentDate)
			assert.True(t, tt.want.Equal(store.CurrentDate()))
		})
	}
}

func TestNavigateErrors(t *testing.T) {
	s, store := newTestServer(t)
	h := s.Handler()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/navigate", navigateRequest{Action: "goto", Date: "garbage"}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/navigate", navigateRequest{Action: "sideways"}).Code)
	assert.True(t, anchor.Equal(store.CurrentDate()))
}

func TestSetView(t *testing.T) {
	s, store := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPut, "/api/view", viewRequest{Mode: "week"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.ViewWeek, store.ViewMode())

	rec = do(t, h, http.MethodPost, "/api/navigate", navigateRequest{Action: "next"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, anchor.AddDate(0, 0, 7).Equal(store.CurrentDate()))

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/api/view", viewRequest{Mode: "year"}).Code)
	assert.Equal(t, model.ViewWeek, store.ViewMode())
}

type fakeRefresher struct {
	res calsync.Result
	err error
}

func (f fakeRefresher) Refresh(context.Context) (calsync.Result, error) { return f.res, f.err }

func TestRefresh(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodPost, "/api/refresh", nil).Code)

	s, _ = newTestServer(t, WithRefresher(fakeRefresher{res: calsync.Result{Sources: 2, Events: 7, Failed: 1}, err: errors.New("fetch broken: 500")}))
	rec := do(t, s.Handler(), http.MethodPost, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[refreshResponse](t, rec)
	assert.Equal(t, 7, got.Events)
	assert.Equal(t, 1, got.Failed)
	assert.Contains(t, got.Error, "broken")
}

func TestExport(t *testing.T) {
	s, store := newTestServer(t)
	seed(store)

	rec := do(t, s.Handler(), http.MethodGet, "/calendar.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Dentist")
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
}

func TestCalendarPage(t *testing.T) {
	s, store := newTestServer(t)
	seed(store)
	for i := 0; i < 4; i++ {
		store.AddEvent(model.Event{ID: "busy", Title: "Busy", Start: anchor.AddDate(0, 0, 1), End: anchor.AddDate(0, 0, 1).Add(time.Hour), Color: "#22c55e"})
	}
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/calendar", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `data-ready="true"`)
	assert.Contains(t, body, "March 2024")
	assert.Contains(t, body, "Dentist")
	assert.Contains(t, body, "+1 more")

	rec = do(t, h, http.MethodGet, "/calendar?view=week", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-view="week"`)
	assert.Contains(t, rec.Body.String(), "09:00 AM Dentist")

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/calendar?view=year", nil).Code)
}

func TestWeekPageDrawsEveryOverlappedHour(t *testing.T) {
	events := []model.Event{{ID: "long", Title: "Workshop", Start: anchor, End: anchor.Add(150 * time.Minute), Color: "#22c55e"}}
	data := buildPage(anchor, model.ViewWeek, events, anchor)

	require.Len(t, data.Hours, 24)
	for h, want := range map[int]int{8: 0, 9: 1, 10: 1, 11: 1, 12: 0} {
		assert.Len(t, data.Hours[h].Cells[0], want, "hour %d", h)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	do(t, h, http.MethodGet, "/api/state", nil)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "calboard_http_requests_total")
}
