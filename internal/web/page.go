package web

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"calboard/internal/calendar"
	appLog "calboard/internal/log"
	"calboard/internal/model"
)

// maxCellEvents is how many events a month cell lists before collapsing the
// rest into "+N more".
const maxCellEvents = 3

type pageCell struct {
	Day    int
	Today  bool
	Events []model.Event
	More   int
}

type pageHour struct {
	Label string
	Cells [7][]model.Event
}

type pageData struct {
	Title    string
	View     model.ViewMode
	Weekdays [7]string
	Rows     [][7]pageCell
	Days     [7]time.Time
	Hours    []pageHour
}

var pageFuncs = template.FuncMap{
	"clock":  calendar.FormatTime,
	"dayNum": func(t time.Time) string { return t.Format("2") },
}

var pageTmpl = template.Must(template.New("calendar").Funcs(pageFuncs).Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 16px; }
table { border-collapse: collapse; width: 100%; table-layout: fixed; }
th, td { border: 1px solid #ccc; vertical-align: top; padding: 4px; }
td.month { height: 96px; }
td.today { background: #eef6ff; }
.ev { font-size: 12px; color: #fff; border-radius: 3px; padding: 1px 3px; margin: 1px 0; overflow: hidden; white-space: nowrap; }
.more { font-size: 11px; color: #666; }
</style>
</head>
<body>
<main id="calendar" data-view="{{.View}}" data-ready="true">
<h1>{{.Title}}</h1>
{{if eq .View "week"}}
<table>
<tr><th></th>{{range $i, $d := .Days}}<th>{{index $.Weekdays $i}} {{dayNum $d}}</th>{{end}}</tr>
{{range .Hours}}<tr><th>{{.Label}}</th>{{range .Cells}}<td>{{range .}}<div class="ev" style="background: {{.Color}}">{{clock .Start}} {{.Title}}</div>{{end}}</td>{{end}}</tr>
{{end}}</table>
{{else}}
<table>
<tr>{{range .Weekdays}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td class="month{{if .Today}} today{{end}}">{{if .Day}}<div>{{.Day}}</div>{{range .Events}}<div class="ev" style="background: {{.Color}}">{{.Title}}</div>{{end}}{{if .More}}<div class="more">+{{.More}} more</div>{{end}}{{end}}</td>{{end}}</tr>
{{end}}</table>
{{end}}
</main>
</body>
</html>
`))

// handleCalendarPage renders the active view as static HTML. The data-ready
// attribute tells the snapshot capture the page is complete.
func (s *Server) handleCalendarPage(w http.ResponseWriter, r *http.Request) {
	at, err := s.anchor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view := s.store.ViewMode()
	if v := r.URL.Query().Get("view"); v != "" {
		if view, err = model.ParseViewMode(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	data := buildPage(at, view, s.store.Events(), s.now().In(s.loc))

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		appLog.Error("calendar page render failed", err)
		writeError(w, http.StatusInternalServerError, "failed to render calendar")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func buildPage(at time.Time, view model.ViewMode, events []model.Event, now time.Time) pageData {
	data := pageData{
		Title:    calendar.MonthTitle(at),
		View:     view,
		Weekdays: calendar.WeekdayLabels,
	}

	if view == model.ViewWeek {
		data.Days = calendar.WeekDays(at)
		for h := 0; h < 24; h++ {
			hour := pageHour{Label: calendar.FormatTime(time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC))}
			for i, d := range data.Days {
				from := d.Add(time.Duration(h) * time.Hour)
				hour.Cells[i] = calendar.EventsInSlot(events, from, from.Add(time.Hour))
			}
			data.Hours = append(data.Hours, hour)
		}
		return data
	}

	grid := calendar.MonthGrid(at)
	for _, row := range grid {
		var cells [7]pageCell
		for col, day := range row {
			if day == 0 {
				continue
			}
			date := calendar.CellDate(at, day)
			dayEvents := calendar.EventsForDay(events, date)
			cell := pageCell{Day: day, Today: calendar.SameDay(date, now)}
			if len(dayEvents) > maxCellEvents {
				cell.More = len(dayEvents) - maxCellEvents
				dayEvents = dayEvents[:maxCellEvents]
			}
			cell.Events = dayEvents
			cells[col] = cell
		}
		data.Rows = append(data.Rows, cells)
	}
	return data
}
