package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"calboard/internal/calendar"
	"calboard/internal/model"
	calsync "calboard/internal/sync"
)

const (
	cellWidth     = 14
	maxCellEvents = 3
	// weekHours is how many hour rows of the week grid are shown, starting
	// so the cursor's hour is visible.
	weekHours = 12
)

var (
	primary = lipgloss.Color("#3B82F6")
	muted   = lipgloss.Color("#6B7280")
	danger  = lipgloss.Color("#EF4444")
	success = lipgloss.Color("#22C55E")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(primary).Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Foreground(muted).Width(cellWidth).Align(lipgloss.Center)
	cellStyle   = lipgloss.NewStyle().Width(cellWidth).Height(maxCellEvents + 2).
			Border(lipgloss.NormalBorder(), false, true, true, false).BorderForeground(muted)
	cursorStyle = cellStyle.BorderForeground(primary).Bold(true)
	hourStyle   = lipgloss.NewStyle().Foreground(muted).Width(9)
	slotStyle   = lipgloss.NewStyle().Width(cellWidth).MaxWidth(cellWidth)
	helpStyle   = lipgloss.NewStyle().Foreground(muted)
	keyStyle    = lipgloss.NewStyle().Bold(true).Foreground(primary)
	errStyle    = lipgloss.NewStyle().Foreground(danger)
	okStyle     = lipgloss.NewStyle().Foreground(success)
	labelStyle  = lipgloss.NewStyle().Width(12).Foreground(muted)
	focusStyle  = lipgloss.NewStyle().Foreground(primary)
	frameStyle  = lipgloss.NewStyle().Padding(1, 2)
)

func (a *App) View() string {
	switch a.screen {
	case screenForm:
		if a.form.editID != "" {
			return a.renderForm("Edit Event")
		}
		return a.renderForm("New Event")
	case screenGoTo:
		return a.renderGoTo()
	case screenDeleteConfirm:
		return a.renderDeleteConfirm()
	default:
		return a.renderCalendar()
	}
}

func (a *App) renderCalendar() string {
	var b strings.Builder

	c := a.cursor()
	mode := a.store.ViewMode()
	b.WriteString(titleStyle.Render(calendar.MonthTitle(c)))
	b.WriteString(helpStyle.Render("  [" + strings.ToUpper(string(mode)) + "]"))
	b.WriteString("\n\n")

	if mode == model.ViewWeek {
		b.WriteString(a.renderWeek(c))
	} else {
		b.WriteString(a.renderMonth(c))
	}
	b.WriteString("\n")
	b.WriteString(a.renderDayList(c))
	b.WriteString("\n")

	if a.err != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", a.err)))
		b.WriteString("\n")
	}
	if a.status != "" {
		b.WriteString(okStyle.Render(a.status))
		b.WriteString("\n")
	}
	b.WriteString(a.renderHelpBar())

	return frameStyle.Render(b.String())
}

func (a *App) renderMonth(c time.Time) string {
	events := a.store.Events()
	grid := calendar.MonthGrid(c)

	header := make([]string, 0, calendar.GridCols)
	for _, d := range calendar.WeekdayLabels {
		header = append(header, headerStyle.Render(d))
	}
	rows := []string{lipgloss.JoinHorizontal(lipgloss.Top, header...)}

	for _, row := range grid {
		cells := make([]string, 0, calendar.GridCols)
		for _, day := range row {
			cells = append(cells, a.renderMonthCell(c, day, events))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// monthCellLines is the text of one month cell: the day number, up to
// maxCellEvents titles and a "+N more" line for the rest.
func monthCellLines(date time.Time, events []model.Event) []string {
	lines := []string{fmt.Sprintf("%2d", date.Day())}
	dayEvents := calendar.EventsForDay(events, date)
	for i, e := range dayEvents {
		if i == maxCellEvents {
			lines = append(lines, fmt.Sprintf("+%d more", len(dayEvents)-maxCellEvents))
			break
		}
		lines = append(lines, e.Title)
	}
	return lines
}

func (a *App) renderMonthCell(c time.Time, day int, events []model.Event) string {
	if day == 0 {
		return cellStyle.Render("")
	}
	date := calendar.CellDate(c, day)
	lines := monthCellLines(date, events)

	dayEvents := calendar.EventsForDay(events, date)
	for i := 1; i < len(lines); i++ {
		style := slotStyle.Width(cellWidth - 1).MaxWidth(cellWidth - 1)
		if i-1 < len(dayEvents) && i-1 < maxCellEvents {
			style = style.Foreground(lipgloss.Color(dayEvents[i-1].Color))
		} else {
			style = style.Foreground(muted)
		}
		lines[i] = style.Render(lines[i])
	}
	if calendar.SameDay(date, a.now().In(a.loc)) {
		lines[0] = okStyle.Bold(true).Render(lines[0])
	}

	style := cellStyle
	if day == c.Day() {
		style = cursorStyle
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (a *App) renderWeek(c time.Time) string {
	events := a.store.Events()
	days := calendar.WeekDays(c)

	header := []string{hourStyle.Render("")}
	for i, d := range days {
		label := calendar.WeekdayLabels[i] + " " + d.Format("2")
		style := headerStyle
		if calendar.SameDay(d, c) {
			style = style.Foreground(primary).Bold(true)
		}
		header = append(header, style.Render(label))
	}
	rows := []string{lipgloss.JoinHorizontal(lipgloss.Top, header...)}

	first := min(max(c.Hour()-weekHours/2, 0), 24-weekHours)
	for h := first; h < first+weekHours; h++ {
		cells := []string{hourStyle.Render(calendar.FormatTime(time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC)))}
		for _, d := range days {
			from := d.Add(time.Duration(h) * time.Hour)
			cells = append(cells, a.renderSlot(c, from, events))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderSlot shows the first event overlapping the hour, marking the
// cursor's slot.
func (a *App) renderSlot(c, from time.Time, events []model.Event) string {
	inSlot := calendar.EventsInSlot(events, from, from.Add(time.Hour))
	text := "·"
	style := slotStyle.Foreground(muted)
	if len(inSlot) > 0 {
		text = inSlot[0].Title
		if len(inSlot) > 1 {
			text = fmt.Sprintf("%s +%d", text, len(inSlot)-1)
		}
		style = slotStyle.Foreground(lipgloss.Color(inSlot[0].Color))
	}
	if calendar.SameDay(from, c) && from.Hour() == c.Hour() {
		style = style.Reverse(true)
	}
	return style.Render(text)
}

func (a *App) renderDayList(c time.Time) string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(c.Format("Mon, Jan 2")))
	b.WriteString("\n")

	events := a.dayEvents()
	if len(events) == 0 {
		b.WriteString(helpStyle.Italic(true).Render("  No events"))
		b.WriteString("\n")
		return b.String()
	}
	for i, e := range events {
		prefix := "  "
		title := lipgloss.NewStyle().Foreground(lipgloss.Color(e.Color))
		if i == a.selectedIdx {
			prefix = focusStyle.Render("▸ ")
			title = title.Bold(true)
		}
		if a.picked != nil && a.picked.ID == e.ID {
			prefix = focusStyle.Render("✥ ")
		}
		when := fmt.Sprintf("%s - %s", calendar.FormatTime(e.Start.In(a.loc)), calendar.FormatTime(e.End.In(a.loc)))
		b.WriteString(prefix + helpStyle.Width(22).Render(when) + title.Render(e.Title))
		if e.Category != "" {
			b.WriteString(helpStyle.Render(" [" + e.Category + "]"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (a *App) renderHelpBar() string {
	row1 := []string{
		keyStyle.Render("←→↑↓") + " move",
		keyStyle.Render("n/p") + " next/prev",
		keyStyle.Render("t") + " today",
		keyStyle.Render("m/w") + " month/week",
		keyStyle.Render("g") + " go to",
	}
	row2 := []string{
		keyStyle.Render("a") + " add",
		keyStyle.Render("tab") + " select",
		keyStyle.Render("e") + " edit",
		keyStyle.Render("d") + " delete",
		keyStyle.Render("x") + " move event",
	}
	if a.refresher != nil {
		row2 = append(row2, keyStyle.Render("r")+" refresh")
	}
	row2 = append(row2, keyStyle.Render("q")+" quit")
	return helpStyle.Render(strings.Join(row1, "  ")) + "\n" +
		helpStyle.Render(strings.Join(row2, "  "))
}

func (a *App) renderForm(title string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	for i, label := range fieldLabels {
		if i == a.form.focus {
			label = focusStyle.Render(label)
		}
		b.WriteString(labelStyle.Render(label))
		switch i {
		case fieldColor:
			swatch := lipgloss.NewStyle().Foreground(lipgloss.Color(model.Colors[a.form.color])).Render("■■")
			b.WriteString(fmt.Sprintf("◀ %s %s ▶", swatch, model.Colors[a.form.color]))
		case fieldCategory:
			b.WriteString(fmt.Sprintf("◀ %s ▶", model.Categories[a.form.category]))
		default:
			b.WriteString(a.form.inputs[i].View())
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if a.form.err != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", a.form.err)))
		b.WriteString("\n\n")
	}
	b.WriteString(helpStyle.Render("tab: next field  ←/→: choose  ctrl+s: save  esc: cancel"))
	return frameStyle.Render(b.String())
}

func (a *App) renderGoTo() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Go to date"))
	b.WriteString("\n\n")
	b.WriteString(a.gotoInput.View())
	b.WriteString("\n\n")
	if a.gotoErr {
		b.WriteString(errStyle.Render("Could not read that date"))
		b.WriteString("\n\n")
	}
	b.WriteString(helpStyle.Render("enter: go  esc: cancel"))
	return frameStyle.Render(b.String())
}

func (a *App) renderDeleteConfirm() string {
	var b strings.Builder
	title := ""
	if ev, ok := a.selected(); ok {
		title = ev.Title
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(danger).Render("Delete Event?"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Are you sure you want to delete %q?\n\n", title))
	b.WriteString(helpStyle.Render("y/enter: delete  n/esc: cancel"))
	return frameStyle.Render(b.String())
}

func refreshStatus(res calsync.Result) string {
	s := fmt.Sprintf("Refreshed %d source(s), %d event(s)", res.Sources, res.Events)
	if res.Failed > 0 {
		s += fmt.Sprintf(", %d failed", res.Failed)
	}
	return s
}
