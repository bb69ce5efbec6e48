package state

import (
	"time"

	"calboard/internal/calendar"
)

// Previous moves the anchor back one page of the active view.
func (s *Store) Previous() time.Time {
	return s.shift(-1)
}

// Next moves the anchor forward one page of the active view.
func (s *Store) Next() time.Time {
	return s.shift(1)
}

// Today resets the anchor to now.
func (s *Store) Today(now time.Time) time.Time {
	s.SetCurrentDate(now)
	return now
}

// GoTo parses free text and, on success, moves the anchor there. On failure
// the anchor is unchanged and the parse error is returned for the caller to
// flag.
func (s *Store) GoTo(text string, loc *time.Location) (time.Time, error) {
	t, err := calendar.ParseGoToDate(text, loc)
	if err != nil {
		return time.Time{}, err
	}
	s.SetCurrentDate(t)
	return t, nil
}

// Move applies an arrow key to the anchor using the active view's rules.
func (s *Store) Move(key calendar.Arrow, hourPrecise bool) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDate = calendar.MoveCursor(s.currentDate, s.viewMode, key, hourPrecise)
	s.revision++
	return s.currentDate
}

func (s *Store) shift(dir int) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentDate = calendar.Shift(s.currentDate, s.viewMode, dir)
	s.revision++
	return s.currentDate
}
