package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"calboard/internal/calendar"
	"calboard/internal/form"
	"calboard/internal/ics"
	appLog "calboard/internal/log"
	"calboard/internal/model"
	"calboard/internal/state"
)

const maxBodyBytes = 1 << 20

// stateResponse is the JSON response shape for /api/state and /api/navigate.
type stateResponse struct {
	CurrentDate time.Time      `json:"current_date"`
	ViewMode    model.ViewMode `json:"view_mode"`
	Title       string         `json:"title"`
	Revision    uint64         `json:"revision"`
	EventCount  int            `json:"event_count"`
	Timezone    string         `json:"timezone"`
}

type monthDay struct {
	Day    int           `json:"day"`
	Date   time.Time     `json:"date"`
	Events []model.Event `json:"events"`
}

// monthResponse is the JSON response shape for /api/month.
type monthResponse struct {
	Title    string        `json:"title"`
	Anchor   time.Time     `json:"anchor"`
	Weekdays [7]string     `json:"weekdays"`
	Grid     calendar.Grid `json:"grid"`
	Days     []monthDay    `json:"days"`
}

// slotEvent places an event in the week view's half-hour rows.
type slotEvent struct {
	model.Event
	Slot  float64 `json:"slot"`
	Slots float64 `json:"slots"`
}

type weekDay struct {
	Date   time.Time   `json:"date"`
	Label  string      `json:"label"`
	Events []slotEvent `json:"events"`
}

// weekResponse is the JSON response shape for /api/week.
type weekResponse struct {
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Days  []weekDay `json:"days"`
}

type rescheduleRequest struct {
	Start time.Time `json:"start"`
}

type navigateRequest struct {
	// Action is prev, next, today, goto or an arrow key (left, right, up,
	// down).
	Action      string `json:"action"`
	Date        string `json:"date,omitempty"`
	HourPrecise bool   `json:"hour_precise,omitempty"`
}

type viewRequest struct {
	Mode string `json:"mode"`
}

type refreshResponse struct {
	Sources   int      `json:"sources"`
	Events    int      `json:"events"`
	Failed    int      `json:"failed"`
	Truncated []string `json:"truncated,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields []form.FieldError `json:"fields"`
}

func (s *Server) currentState() stateResponse {
	snap := s.store.Snapshot()
	return stateResponse{
		CurrentDate: snap.CurrentDate,
		ViewMode:    snap.ViewMode,
		Title:       calendar.MonthTitle(snap.CurrentDate),
		Revision:    snap.Revision,
		EventCount:  len(snap.Events),
		Timezone:    s.loc.String(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.currentState())
}

// anchor resolves the ?date= parameter, defaulting to the store's anchor.
func (s *Server) anchor(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return s.store.CurrentDate().In(s.loc), nil
	}
	return calendar.ParseGoToDate(v, s.loc)
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	at, err := s.anchor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := s.cachedGrid(model.ViewMonth, at, func(events []model.Event) any {
		return buildMonth(at, events)
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	at, err := s.anchor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := s.cachedGrid(model.ViewWeek, at, func(events []model.Event) any {
		return buildWeek(at, events)
	})
	writeJSON(w, http.StatusOK, resp)
}

// cachedGrid returns the cached payload for (view, anchor, revision) or
// builds it from a snapshot of the store.
func (s *Server) cachedGrid(view model.ViewMode, at time.Time, build func([]model.Event) any) any {
	snap := s.store.Snapshot()
	key := fmt.Sprintf("%s|%s|%d", view, at.Format(time.RFC3339Nano), snap.Revision)
	if v, ok := s.grids.Get(key); ok {
		gridCacheTotal.WithLabelValues("hit").Inc()
		return v
	}
	gridCacheTotal.WithLabelValues("miss").Inc()
	v := build(snap.Events)
	s.grids.Add(key, v)
	return v
}

func buildMonth(at time.Time, events []model.Event) monthResponse {
	from, to := calendar.MonthRange(at)
	inMonth := calendar.EventsInRange(events, from, to)

	grid := calendar.MonthGrid(at)
	days := make([]monthDay, 0, 31)
	for _, d := range grid.Days() {
		date := calendar.CellDate(at, d)
		days = append(days, monthDay{
			Day:    d,
			Date:   date,
			Events: calendar.EventsForDay(inMonth, date),
		})
	}
	return monthResponse{
		Title:    calendar.MonthTitle(at),
		Anchor:   at,
		Weekdays: calendar.WeekdayLabels,
		Grid:     grid,
		Days:     days,
	}
}

func buildWeek(at time.Time, events []model.Event) weekResponse {
	from, to := calendar.WeekRange(at)
	inWeek := calendar.EventsInRange(events, from, to)

	resp := weekResponse{
		Title: calendar.MonthTitle(at),
		Start: from,
		End:   to,
	}
	for i, d := range calendar.WeekDays(at) {
		day := weekDay{
			Date:   d,
			Label:  calendar.WeekdayLabels[i] + " " + d.Format("2"),
			Events: make([]slotEvent, 0),
		}
		for _, e := range calendar.EventsForDay(inWeek, d) {
			start := e.Start.In(d.Location())
			day.Events = append(day.Events, slotEvent{
				Event: e,
				Slot:  calendar.TimeSlotIndex(start),
				Slots: calendar.DurationInSlots(e.Start, e.End),
			})
		}
		resp.Days = append(resp.Days, day)
	}
	return resp
}

// handleListEvents returns every event, or those overlapping ?from=&to=
// when both are given. Bare dates cover the whole day.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events := s.store.Events()
	if q.Get("from") == "" && q.Get("to") == "" {
		writeJSON(w, http.StatusOK, events)
		return
	}

	from, err := s.parseBound(q.Get("from"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from: "+err.Error())
		return
	}
	to, err := s.parseBound(q.Get("to"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, calendar.EventsInRange(events, from, to))
}

func (s *Server) parseBound(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := calendar.ParseGoToDate(v, s.loc)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var f form.Form
	if err := decodeJSON(r, &f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.ID = ""

	ev, err := f.Submit(s.store)
	if err != nil {
		writeFormError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("create").Inc()
	appLog.Debug("event created", "id", ev.ID, "title", ev.Title)
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.store.Event(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, state.ErrEventNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleUpdateEvent merges a partial update. The merged event must still
// pass the form rules.
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var patch model.EventPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev, err := s.store.UpdateEventFunc(id, func(existing model.Event) (model.Event, error) {
		next := patch.Apply(existing)
		if err := form.Edit(next).Validate(); err != nil {
			return model.Event{}, err
		}
		return next, nil
	})
	if err != nil {
		writeFormError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("update").Inc()
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEvent(mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("delete").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Start.IsZero() {
		writeError(w, http.StatusBadRequest, "start is required")
		return
	}

	ev, err := s.store.Reschedule(mux.Vars(r)["id"], req.Start.In(s.loc))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	mutationsTotal.WithLabelValues("reschedule").Inc()
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch action := strings.ToLower(req.Action); action {
	case "prev", "previous":
		s.store.Previous()
	case "next":
		s.store.Next()
	case "today":
		s.store.Today(s.now().In(s.loc))
	case "goto":
		if _, err := s.store.GoTo(req.Date, s.loc); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	default:
		key, ok := calendar.ParseArrow(action)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
			return
		}
		s.store.Move(key, req.HourPrecise)
	}
	writeJSON(w, http.StatusOK, s.currentState())
}

func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.SetViewMode(model.ViewMode(req.Mode)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.currentState())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusNotFound, "no subscriptions configured")
		return
	}
	res, err := s.refresher.Refresh(r.Context())
	resp := refreshResponse{
		Sources:   res.Sources,
		Events:    res.Events,
		Failed:    res.Failed,
		Truncated: res.Truncated,
	}
	if err != nil {
		appLog.Error("api refresh: one or more sources failed", err, "failed", res.Failed)
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	body := ics.Export(s.store.Events(), "calboard", s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calboard.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeFormError(w http.ResponseWriter, err error) {
	var verr *form.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: verr.Error(), Fields: verr.Fields})
		return
	}
	writeStoreError(w, err)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, state.ErrEventNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	appLog.Error("api request failed", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
