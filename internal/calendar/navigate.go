package calendar

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"calboard/internal/model"
)

var (
	ErrEmptyDate   = errors.New("empty date")
	ErrInvalidDate = errors.New("invalid date")
)

// AddMonths moves t by n calendar months keeping the time of day. The day of
// month is clamped to the length of the target month, so Jan 31 + 1 month is
// the last day of February rather than a day in March.
func AddMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	day := t.Day()
	if last := DaysInMonth(first); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

// Shift moves the anchor one page: a month in month view, seven days in
// week view. dir is -1 for previous and +1 for next.
func Shift(t time.Time, mode model.ViewMode, dir int) time.Time {
	if mode == model.ViewWeek {
		return t.AddDate(0, 0, 7*dir)
	}
	return AddMonths(t, dir)
}

// Arrow is a cursor key.
type Arrow int

const (
	ArrowLeft Arrow = iota
	ArrowRight
	ArrowUp
	ArrowDown
)

// ParseArrow accepts "left", "ArrowLeft" and similar spellings.
func ParseArrow(s string) (Arrow, bool) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "Arrow"), "arrow")) {
	case "left":
		return ArrowLeft, true
	case "right":
		return ArrowRight, true
	case "up":
		return ArrowUp, true
	case "down":
		return ArrowDown, true
	}
	return 0, false
}

// MoveCursor applies one arrow press to the cursor.
//
// Month view works on whole days: left/right move one day, up/down one
// week, and the time is reset to midnight. Week view moves one day sideways
// and one hour vertically, clamped to 00:00..23:00; when hourPrecise is false
// the cursor is first reset to midnight.
func MoveCursor(t time.Time, mode model.ViewMode, key Arrow, hourPrecise bool) time.Time {
	if mode != model.ViewWeek {
		t = StartOfDay(t)
		switch key {
		case ArrowLeft:
			return t.AddDate(0, 0, -1)
		case ArrowRight:
			return t.AddDate(0, 0, 1)
		case ArrowUp:
			return t.AddDate(0, 0, -7)
		case ArrowDown:
			return t.AddDate(0, 0, 7)
		}
		return t
	}

	if !hourPrecise {
		t = StartOfDay(t)
	}
	switch key {
	case ArrowLeft:
		return t.AddDate(0, 0, -1)
	case ArrowRight:
		return t.AddDate(0, 0, 1)
	case ArrowUp:
		return atHour(t, t.Hour()-1)
	case ArrowDown:
		return atHour(t, t.Hour()+1)
	}
	return t
}

func atHour(t time.Time, h int) time.Time {
	if h < 0 {
		h = 0
	}
	if h > 23 {
		h = 23
	}
	return time.Date(t.Year(), t.Month(), t.Day(), h, 0, 0, 0, t.Location())
}

var (
	ymdPattern = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`)
	abyPattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
)

// fallbackLayouts are tried, in order, when the text is not one of the
// numeric slash forms.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	time.RFC1123,
	time.RFC1123Z,
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Mon Jan 2 2006",
	"Mon, Jan 2, 2006",
	"January 2006",
	"Jan 2006",
}

// ParseGoToDate interprets free text typed into the go-to-date box.
//
// Dots and dashes are read as slashes. Y/M/D is taken as year first; A/B/YYYY
// is day-first when A > 12 and month-first otherwise. Out-of-range parts roll
// over the way time.Date normalises them. Anything else goes through a list of
// common layouts. The result is midnight in loc unless the layout carries a
// time.
func ParseGoToDate(text string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	raw := strings.TrimSpace(text)
	if raw == "" {
		return time.Time{}, ErrEmptyDate
	}

	cleaned := strings.NewReplacer(".", "/", "-", "/").Replace(raw)

	if m := ymdPattern.FindStringSubmatch(cleaned); m != nil {
		y, mo, d := atoi(m[1]), atoi(m[2]), atoi(m[3])
		return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc), nil
	}
	if m := abyPattern.FindStringSubmatch(cleaned); m != nil {
		a, b, y := atoi(m[1]), atoi(m[2]), atoi(m[3])
		mo, d := a, b
		if a > 12 {
			d, mo = a, b
		}
		return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, loc), nil
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
