// Package tui is the terminal front end: a Bubble Tea program over the
// shared state store with month and week grids, an event form, go-to-date
// and keyboard rescheduling.
package tui

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"calboard/internal/calendar"
	appLog "calboard/internal/log"
	"calboard/internal/model"
	"calboard/internal/state"
	calsync "calboard/internal/sync"
)

type screen int

const (
	screenCalendar screen = iota
	screenForm
	screenGoTo
	screenDeleteConfirm
)

// defaultHour is where a new event starts when the cursor carries no time
// of day (month view).
const defaultHour = 9

// Refresher re-imports subscriptions on demand.
type Refresher interface {
	Refresh(ctx context.Context) (calsync.Result, error)
}

// App is the Bubble Tea model.
type App struct {
	store     *state.Store
	loc       *time.Location
	now       func() time.Time
	refresher Refresher

	width  int
	height int
	screen screen

	selectedIdx int
	// picked is the event being moved with x; enter drops it at the cursor.
	picked *model.Event

	gotoInput textinput.Model
	gotoErr   bool

	form eventForm

	status string
	err    error
}

// Option customises an App.
type Option func(*App)

func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

func WithRefresher(r Refresher) Option {
	return func(a *App) { a.refresher = r }
}

// Messages
type refreshedMsg struct {
	res calsync.Result
	err error
}

// New creates the terminal UI over store, displaying times in loc.
func New(store *state.Store, loc *time.Location, opts ...Option) *App {
	if loc == nil {
		loc = time.Local
	}
	a := &App{
		store:  store,
		loc:    loc,
		now:    time.Now,
		screen: screenCalendar,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run starts the program in the alternate screen and blocks until the user
// quits or ctx is cancelled.
func Run(ctx context.Context, a *App) error {
	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *App) Init() tea.Cmd {
	return nil
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case refreshedMsg:
		if msg.err != nil {
			a.err = msg.err
		}
		a.status = refreshStatus(msg.res)
		return a, nil

	case tea.KeyMsg:
		switch a.screen {
		case screenForm:
			return a.handleFormKeys(msg)
		case screenGoTo:
			return a.handleGoToKeys(msg)
		case screenDeleteConfirm:
			return a.handleDeleteKeys(msg)
		default:
			return a.handleCalendarKeys(msg)
		}
	}
	return a, nil
}

func (a *App) cursor() time.Time {
	return a.store.CurrentDate().In(a.loc)
}

// dayEvents lists the events starting on the cursor's day, earliest first.
func (a *App) dayEvents() []model.Event {
	events := calendar.EventsForDay(a.store.Events(), a.cursor())
	slices.SortStableFunc(events, func(x, y model.Event) int {
		return x.Start.Compare(y.Start)
	})
	return events
}

func (a *App) selected() (model.Event, bool) {
	events := a.dayEvents()
	if a.selectedIdx < 0 || a.selectedIdx >= len(events) {
		return model.Event{}, false
	}
	return events[a.selectedIdx], true
}

func (a *App) handleCalendarKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()
	if key, ok := calendar.ParseArrow(k); ok {
		a.store.Move(key, a.store.ViewMode() == model.ViewWeek)
		a.selectedIdx = 0
		return a, nil
	}

	switch k {
	case "q", "ctrl+c":
		return a, tea.Quit
	case "n":
		a.store.Next()
		a.selectedIdx = 0
	case "p":
		a.store.Previous()
		a.selectedIdx = 0
	case "t":
		a.store.Today(a.now().In(a.loc))
		a.selectedIdx = 0
	case "m":
		_ = a.store.SetViewMode(model.ViewMonth)
	case "w":
		_ = a.store.SetViewMode(model.ViewWeek)
	case "g":
		a.openGoTo()
	case "tab":
		if events := a.dayEvents(); len(events) > 0 {
			a.selectedIdx = (a.selectedIdx + 1) % len(events)
		}
	case "shift+tab":
		if events := a.dayEvents(); len(events) > 0 {
			a.selectedIdx = (a.selectedIdx + len(events) - 1) % len(events)
		}
	case "enter":
		if a.picked != nil {
			a.drop()
			return a, nil
		}
		a.openNewForm()
	case "a":
		a.openNewForm()
	case "e":
		if ev, ok := a.selected(); ok {
			a.form = editForm(ev, a.loc)
			a.screen = screenForm
		}
	case "d":
		if _, ok := a.selected(); ok {
			a.screen = screenDeleteConfirm
		}
	case "x":
		if ev, ok := a.selected(); ok {
			a.picked = &ev
			a.status = "Moving \"" + ev.Title + "\": pick a day and press enter"
		}
	case "r":
		if a.refresher != nil {
			a.status = "Refreshing subscriptions..."
			return a, a.refresh()
		}
	case "esc":
		a.picked = nil
		a.status = ""
		a.err = nil
	}
	return a, nil
}

// dropTarget is where a picked event lands: midnight of the cursor's day in
// month view, the cursor's hour in week view.
func (a *App) dropTarget() time.Time {
	c := a.cursor()
	if a.store.ViewMode() == model.ViewWeek {
		return c
	}
	return calendar.StartOfDay(c)
}

func (a *App) drop() {
	ev := *a.picked
	a.picked = nil
	moved, err := a.store.Reschedule(ev.ID, a.dropTarget())
	if err != nil {
		// The event vanished while picked, e.g. removed by a refresh.
		appLog.Debug("reschedule dropped", "id", ev.ID, "err", err)
		a.status = ""
		return
	}
	a.status = "Moved \"" + moved.Title + "\" to " + calendar.FormatDate(moved.Start) + " " + calendar.FormatTime(moved.Start)
}

func (a *App) openNewForm() {
	start := a.cursor()
	if a.store.ViewMode() != model.ViewWeek {
		start = calendar.StartOfDay(start).Add(defaultHour * time.Hour)
	}
	a.form = newForm(start, a.loc)
	a.screen = screenForm
}

func (a *App) openGoTo() {
	a.gotoInput = textinput.New()
	a.gotoInput.Placeholder = "2024-03-15, 03/15/2024, March 15 2024"
	a.gotoInput.CharLimit = 40
	a.gotoInput.Width = 40
	a.gotoInput.Focus()
	a.gotoErr = false
	a.screen = screenGoTo
}

func (a *App) handleGoToKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.screen = screenCalendar
		return a, nil
	case "enter":
		if _, err := a.store.GoTo(a.gotoInput.Value(), a.loc); err != nil {
			a.gotoErr = true
			return a, nil
		}
		a.selectedIdx = 0
		a.screen = screenCalendar
		return a, nil
	}

	var cmd tea.Cmd
	a.gotoInput, cmd = a.gotoInput.Update(msg)
	a.gotoErr = false
	return a, cmd
}

func (a *App) handleDeleteKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		if ev, ok := a.selected(); ok {
			_ = a.store.DeleteEvent(ev.ID)
			a.status = "Deleted \"" + ev.Title + "\""
		}
		if a.selectedIdx > 0 && a.selectedIdx >= len(a.dayEvents()) {
			a.selectedIdx--
		}
		a.screen = screenCalendar
	case "n", "esc", "q":
		a.screen = screenCalendar
	}
	return a, nil
}

func (a *App) handleFormKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.screen = screenCalendar
		return a, nil
	case "tab", "down":
		a.form.focusNext(1)
		return a, nil
	case "shift+tab", "up":
		a.form.focusNext(-1)
		return a, nil
	case "ctrl+s":
		a.saveForm()
		return a, nil
	case "enter":
		if a.form.focus == fieldCount-1 {
			a.saveForm()
			return a, nil
		}
		a.form.focusNext(1)
		return a, nil
	case "left", "right":
		if a.form.cycleChoice(msg.String()) {
			return a, nil
		}
	}

	return a, a.form.updateInput(msg)
}

func (a *App) saveForm() {
	f, err := a.form.toForm(a.loc)
	if err != nil {
		a.form.err = err
		return
	}
	ev, err := f.Submit(a.store)
	if err != nil {
		a.form.err = err
		return
	}
	if f.Editing() {
		a.status = "Updated \"" + ev.Title + "\""
	} else {
		a.status = "Added \"" + ev.Title + "\""
	}
	a.screen = screenCalendar
}

func (a *App) refresh() tea.Cmd {
	r := a.refresher
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		res, err := r.Refresh(ctx)
		return refreshedMsg{res: res, err: err}
	}
}
