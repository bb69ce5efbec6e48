package tui

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"calboard/internal/form"
	"calboard/internal/model"
)

const (
	fieldTitle = iota
	fieldDescription
	fieldStartDate
	fieldStartTime
	fieldEndDate
	fieldEndTime
	fieldColor
	fieldCategory
	fieldCount
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

var fieldLabels = [fieldCount]string{"Title:", "Notes:", "Start date:", "Start:", "End date:", "End:", "Color:", "Category:"}

// eventForm is the create/edit dialog. Text fields are bubbles inputs; color
// and category are cycled with left/right.
type eventForm struct {
	inputs   [fieldColor]textinput.Model
	color    int
	category int
	focus    int
	editID   string
	err      error
}

func newInputs() [fieldColor]textinput.Model {
	var in [fieldColor]textinput.Model
	for i := range in {
		in[i] = textinput.New()
		in[i].Width = 40
	}
	in[fieldTitle].CharLimit = model.MaxTitleLen
	in[fieldDescription].CharLimit = model.MaxDescriptionLen
	for _, i := range []int{fieldStartDate, fieldEndDate} {
		in[i].Placeholder = "YYYY-MM-DD"
		in[i].CharLimit = 10
	}
	for _, i := range []int{fieldStartTime, fieldEndTime} {
		in[i].Placeholder = "HH:MM"
		in[i].CharLimit = 5
	}
	return in
}

func newForm(start time.Time, loc *time.Location) eventForm {
	return fromForm(form.New(start), loc)
}

func editForm(ev model.Event, loc *time.Location) eventForm {
	return fromForm(form.Edit(ev), loc)
}

func fromForm(f form.Form, loc *time.Location) eventForm {
	ef := eventForm{
		inputs:   newInputs(),
		color:    max(indexOf(model.Colors, f.Color), 0),
		category: max(indexOf(model.Categories, f.Category), 0),
		editID:   f.ID,
	}
	start, end := f.Start.In(loc), f.End.In(loc)
	ef.inputs[fieldTitle].SetValue(f.Title)
	ef.inputs[fieldDescription].SetValue(f.Description)
	ef.inputs[fieldStartDate].SetValue(start.Format(dateLayout))
	ef.inputs[fieldStartTime].SetValue(start.Format(clockLayout))
	ef.inputs[fieldEndDate].SetValue(end.Format(dateLayout))
	ef.inputs[fieldEndTime].SetValue(end.Format(clockLayout))
	ef.applyFocus()
	return ef
}

func indexOf(list []string, v string) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

func (f *eventForm) focusNext(step int) {
	f.focus = (f.focus + step + fieldCount) % fieldCount
	f.applyFocus()
}

func (f *eventForm) applyFocus() {
	for i := range f.inputs {
		if i == f.focus {
			f.inputs[i].Focus()
		} else {
			f.inputs[i].Blur()
		}
	}
}

// cycleChoice moves the color or category selector. It reports false when
// the focused field is a text input.
func (f *eventForm) cycleChoice(key string) bool {
	step := 1
	if key == "left" {
		step = -1
	}
	switch f.focus {
	case fieldColor:
		f.color = (f.color + step + len(model.Colors)) % len(model.Colors)
	case fieldCategory:
		f.category = (f.category + step + len(model.Categories)) % len(model.Categories)
	default:
		return false
	}
	return true
}

func (f *eventForm) updateInput(msg tea.KeyMsg) tea.Cmd {
	if f.focus >= len(f.inputs) {
		return nil
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	f.err = nil
	return cmd
}

// toForm reads the inputs back.
func (f *eventForm) toForm(loc *time.Location) (form.Form, error) {
	startDate, err := parseDate(f.inputs[fieldStartDate].Value(), loc)
	if err != nil {
		return form.Form{}, errors.New("invalid start date: use YYYY-MM-DD")
	}
	start, err := atClock(startDate, f.inputs[fieldStartTime].Value())
	if err != nil {
		return form.Form{}, errors.New("invalid start time: use HH:MM")
	}
	endDate, err := parseDate(f.inputs[fieldEndDate].Value(), loc)
	if err != nil {
		return form.Form{}, errors.New("invalid end date: use YYYY-MM-DD")
	}
	end, err := atClock(endDate, f.inputs[fieldEndTime].Value())
	if err != nil {
		return form.Form{}, errors.New("invalid end time: use HH:MM")
	}
	return form.Form{
		ID:          f.editID,
		Title:       f.inputs[fieldTitle].Value(),
		Description: f.inputs[fieldDescription].Value(),
		Start:       start,
		End:         end,
		Color:       model.Colors[f.color],
		Category:    model.Categories[f.category],
	}, nil
}

func parseDate(v string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(v), loc)
}

func atClock(date time.Time, v string) (time.Time, error) {
	c, err := time.Parse(clockLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, date.Location()), nil
}
