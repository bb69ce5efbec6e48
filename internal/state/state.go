// Package state owns the session's event list, anchor date and view mode.
// All mutation goes through Store so the UI layers never touch the list
// directly.
package state

import (
	"errors"
	"sync"
	"time"

	"calboard/internal/model"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrInvalidViewMode = errors.New("invalid view mode")
)

// Snapshot is a point-in-time copy of the store.
type Snapshot struct {
	Events      []model.Event  `json:"events"`
	CurrentDate time.Time      `json:"current_date"`
	ViewMode    model.ViewMode `json:"view_mode"`
	Revision    uint64         `json:"revision"`
}

// Store is the calendar state for one application session. It is safe for
// concurrent use; every method runs to completion under the lock.
type Store struct {
	mu          sync.RWMutex
	events      []model.Event
	currentDate time.Time
	viewMode    model.ViewMode
	revision    uint64
}

// New creates an empty store anchored at now in month view.
func New(now time.Time) *Store {
	return &Store{
		events:      make([]model.Event, 0),
		currentDate: now,
		viewMode:    model.ViewMonth,
	}
}

// AddEvent appends e. IDs are not checked for duplicates.
func (s *Store) AddEvent(e model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	s.revision++
}

// UpdateEvent merges patch onto the event with the given id. An unknown id
// leaves the list untouched and returns ErrEventNotFound.
func (s *Store) UpdateEvent(id string, patch model.EventPatch) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Event{}, ErrEventNotFound
	}
	s.events[i] = patch.Apply(s.events[i])
	s.revision++
	return s.events[i], nil
}

// UpdateEventFunc replaces the event with the given id by fn's result, with
// the lock held for the whole read-modify-write. If fn returns an error the
// event is left unchanged and the error is returned as is.
func (s *Store) UpdateEventFunc(id string, fn func(model.Event) (model.Event, error)) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Event{}, ErrEventNotFound
	}
	next, err := fn(s.events[i])
	if err != nil {
		return model.Event{}, err
	}
	next.ID = s.events[i].ID
	s.events[i] = next
	s.revision++
	return next, nil
}

// DeleteEvent removes the event with the given id. Deleting an unknown id is
// a no-op that returns ErrEventNotFound, so repeated deletes are harmless.
func (s *Store) DeleteEvent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrEventNotFound
	}
	out := make([]model.Event, 0, len(s.events)-1)
	out = append(out, s.events[:i]...)
	out = append(out, s.events[i+1:]...)
	s.events = out
	s.revision++
	return nil
}

// Reschedule moves the event to start at newStart, keeping its duration.
func (s *Store) Reschedule(id string, newStart time.Time) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Event{}, ErrEventNotFound
	}
	ev := s.events[i]
	dur := ev.Duration()
	ev.Start = newStart
	ev.End = newStart.Add(dur)
	s.events[i] = ev
	s.revision++
	return ev, nil
}

// ReplaceSource drops every event imported from sourceID and appends events
// in their place. Locally created events keep their order.
func (s *Store) ReplaceSource(sourceID string, events []model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Event, 0, len(s.events)+len(events))
	for _, e := range s.events {
		if sourceID != "" && e.SourceID == sourceID {
			continue
		}
		out = append(out, e)
	}
	for _, e := range events {
		e.SourceID = sourceID
		out = append(out, e)
	}
	s.events = out
	s.revision++
}

// SetCurrentDate replaces the anchor date without validation.
func (s *Store) SetCurrentDate(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDate = t
	s.revision++
}

// SetViewMode switches between month and week.
func (s *Store) SetViewMode(m model.ViewMode) error {
	if m != model.ViewMonth && m != model.ViewWeek {
		return ErrInvalidViewMode
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewMode = m
	s.revision++
	return nil
}

// Events returns a copy of the event list in insertion order.
func (s *Store) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Event looks up a single event by id.
func (s *Store) Event(id string) (model.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.events[i], true
	}
	return model.Event{}, false
}

func (s *Store) CurrentDate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentDate
}

func (s *Store) ViewMode() model.ViewMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewMode
}

// Revision increases on every mutation. Caches key on it.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]model.Event, len(s.events))
	copy(events, s.events)
	return Snapshot{
		Events:      events,
		CurrentDate: s.currentDate,
		ViewMode:    s.viewMode,
		Revision:    s.revision,
	}
}

func (s *Store) indexOf(id string) int {
	for i := range s.events {
		if s.events[i].ID == id {
			return i
		}
	}
	return -1
}
