package model

import (
	"fmt"
	"time"
)

// Event is a single titled, time-bounded calendar entry.
//
// End >= Start is expected but not enforced here; the form layer validates
// user input before an Event is built.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Color       string    `json:"color"`
	Category    string    `json:"category,omitempty"`

	// SourceID is empty for locally created events and holds the
	// subscription ID for events imported from an ICS feed.
	SourceID string `json:"source_id,omitempty"`
}

// Duration returns End - Start. It may be negative.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// EventPatch carries the fields to merge in an update. Nil fields are left
// untouched.
type EventPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Color       *string    `json:"color,omitempty"`
	Category    *string    `json:"category,omitempty"`
}

// Apply merges the non-nil fields of p onto e. The ID is never changed.
func (p EventPatch) Apply(e Event) Event {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Start != nil {
		e.Start = *p.Start
	}
	if p.End != nil {
		e.End = *p.End
	}
	if p.Color != nil {
		e.Color = *p.Color
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	return e
}

// IsZero reports whether the patch would change nothing.
func (p EventPatch) IsZero() bool {
	return p.Title == nil && p.Description == nil && p.Start == nil &&
		p.End == nil && p.Color == nil && p.Category == nil
}

// ViewMode selects the grid granularity.
type ViewMode string

const (
	ViewMonth ViewMode = "month"
	ViewWeek  ViewMode = "week"
)

// ParseViewMode accepts exactly "month" or "week".
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(s) {
	case ViewMonth, ViewWeek:
		return ViewMode(s), nil
	default:
		return "", fmt.Errorf("unknown view mode %q", s)
	}
}

// Limits used by the event form.
const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 500
)

// Colors is the fixed event palette; the first entry is the default.
var Colors = []string{
	"#ef4444", // red
	"#f97316", // orange
	"#eab308", // yellow
	"#22c55e", // green
	"#06b6d4", // cyan
	"#3b82f6", // blue
	"#8b5cf6", // purple
}

// Categories is the fixed category list; the first entry is the default.
var Categories = []string{"Work", "Personal", "Meeting", "Birthday", "Holiday", "Other"}

func DefaultColor() string    { return Colors[0] }
func DefaultCategory() string { return Categories[0] }

// ValidColor reports whether c is part of the palette.
func ValidColor(c string) bool {
	for _, x := range Colors {
		if x == c {
			return true
		}
	}
	return false
}

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c string) bool {
	for _, x := range Categories {
		if x == c {
			return true
		}
	}
	return false
}
