// Package calendar holds the pure date arithmetic behind the month and week
// views: grid layout, week anchoring, event filtering and half-hour slot
// positioning. Nothing in here keeps state.
package calendar

import (
	"time"

	"calboard/internal/model"
)

const (
	// GridRows is fixed so every month renders at the same height, even when
	// the last row ends up blank.
	GridRows = 6
	GridCols = 7

	SlotMinutes = 30
	SlotsPerDay = 24 * 60 / SlotMinutes
)

// Grid is a month laid out Sunday-first. A zero cell is blank.
type Grid [GridRows][GridCols]int

// Days returns the non-blank cells in row-major order.
func (g Grid) Days() []int {
	out := make([]int, 0, 31)
	for _, row := range g {
		for _, d := range row {
			if d != 0 {
				out = append(out, d)
			}
		}
	}
	return out
}

// DaysInMonth returns the length of the month containing t, taken from day
// 0 of the following month.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// FirstWeekdayOfMonth returns the weekday of the 1st, Sunday=0.
func FirstWeekdayOfMonth(t time.Time) int {
	return int(time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).Weekday())
}

// MonthGrid lays out the month containing t as 6 rows of 7 cells: leading
// blanks up to the 1st's weekday, then 1..DaysInMonth, then trailing blanks.
func MonthGrid(t time.Time) Grid {
	var g Grid
	n := DaysInMonth(t)
	first := FirstWeekdayOfMonth(t)

	day := 1
	for row := 0; row < GridRows; row++ {
		for col := 0; col < GridCols; col++ {
			if row == 0 && col < first {
				continue
			}
			if day > n {
				return g
			}
			g[row][col] = day
			day++
		}
	}
	return g
}

// CellDate returns the date of a non-blank grid cell in t's month.
func CellDate(t time.Time, day int) time.Time {
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, t.Location())
}

// WeekDays returns Sunday..Saturday of the week containing t, each at
// midnight.
func WeekDays(t time.Time) [7]time.Time {
	var out [7]time.Time
	sunday := StartOfDay(t).AddDate(0, 0, -int(t.Weekday()))
	for i := range out {
		out[i] = sunday.AddDate(0, 0, i)
	}
	return out
}

// WeekRange returns the first and last instant of the week containing t.
func WeekRange(t time.Time) (time.Time, time.Time) {
	days := WeekDays(t)
	return days[0], days[0].AddDate(0, 0, 7).Add(-time.Nanosecond)
}

// MonthRange returns the first and last instant of the month containing t.
func MonthRange(t time.Time) (time.Time, time.Time) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return first, first.AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports calendar-day equality, viewing b in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// EventsForDay returns the events whose start falls on day's calendar date.
// Multi-day events only match their first day.
func EventsForDay(events []model.Event, day time.Time) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if SameDay(day, ev.Start) {
			out = append(out, ev)
		}
	}
	return out
}

// EventsInRange returns the events overlapping [from, to], inclusive at both
// ends: start <= to && end >= from.
func EventsInRange(events []model.Event, from, to time.Time) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if !ev.Start.After(to) && !ev.End.Before(from) {
			out = append(out, ev)
		}
	}
	return out
}

// EventsInSlot returns the events strictly overlapping [from, to), the rule
// the week view uses to place events into hour rows.
func EventsInSlot(events []model.Event, from, to time.Time) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if ev.Start.Before(to) && ev.End.After(from) {
			out = append(out, ev)
		}
	}
	return out
}

// TimeSlotIndex positions t within its day in 30-minute units.
func TimeSlotIndex(t time.Time) float64 {
	return float64(t.Hour()*60+t.Minute()) / SlotMinutes
}

// DurationInSlots expresses end-start in 30-minute units. Negative spans are
// returned as is.
func DurationInSlots(start, end time.Time) float64 {
	return end.Sub(start).Minutes() / SlotMinutes
}

// FormatTime renders a 12-hour clock label such as "09:30 AM".
func FormatTime(t time.Time) string {
	return t.Format("03:04 PM")
}

// FormatDate renders a short date such as "Mar 10, 2024".
func FormatDate(t time.Time) string {
	return t.Format("Jan 2, 2006")
}

// MonthTitle renders the header label such as "March 2024".
func MonthTitle(t time.Time) string {
	return t.Format("January 2006")
}

// WeekdayLabels are the grid column headers, Sunday first.
var WeekdayLabels = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
