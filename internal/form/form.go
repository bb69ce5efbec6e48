// Package form turns user-entered fields into validated events, the way the
// create/edit dialog does before anything reaches the store.
package form

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"calboard/internal/model"
	"calboard/internal/state"
)

// Form holds the editable fields of the event dialog.
type Form struct {
	// ID is set when editing an existing event.
	ID string `json:"id,omitempty"`

	Title       string    `json:"title" validate:"required,max=100"`
	Description string    `json:"description" validate:"max=500"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtefield=Start"`
	Color       string    `json:"color" validate:"omitempty,palette"`
	Category    string    `json:"category" validate:"omitempty,category"`
}

// FieldError names one rejected field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError lists every field that failed.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" ("+f.Rule+")")
	}
	return "invalid event: " + strings.Join(parts, ", ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("palette", func(fl validator.FieldLevel) bool {
		return model.ValidColor(fl.Field().String())
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return model.ValidCategory(fl.Field().String())
	})
	return v
}

// New returns a blank form for an event starting at initial and lasting one
// hour.
func New(initial time.Time) Form {
	return Form{
		Start:    initial,
		End:      initial.Add(time.Hour),
		Color:    model.DefaultColor(),
		Category: model.DefaultCategory(),
	}
}

// Edit returns a form pre-filled from e.
func Edit(e model.Event) Form {
	return Form{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Start:       e.Start,
		End:         e.End,
		Color:       e.Color,
		Category:    e.Category,
	}
}

// Editing reports whether the form targets an existing event.
func (f Form) Editing() bool {
	return f.ID != ""
}

// Validate checks the fields and returns a *ValidationError on failure.
func (f Form) Validate() error {
	f.Title = strings.TrimSpace(f.Title)
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate event: %w", err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: strings.ToLower(fe.Field()), Rule: fe.Tag()})
	}
	return out
}

// Build validates the form and produces the event to store. New events get
// a fresh UUID; edits keep their id. Empty color and category fall back to
// the palette defaults.
func (f Form) Build() (model.Event, error) {
	if err := f.Validate(); err != nil {
		return model.Event{}, err
	}
	id := f.ID
	if id == "" {
		id = uuid.NewString()
	}
	color := f.Color
	if color == "" {
		color = model.DefaultColor()
	}
	category := f.Category
	if category == "" {
		category = model.DefaultCategory()
	}
	return model.Event{
		ID:          id,
		Title:       strings.TrimSpace(f.Title),
		Description: f.Description,
		Start:       f.Start,
		End:         f.End,
		Color:       color,
		Category:    category,
	}, nil
}

// Submit builds the event and either adds it or overwrites the existing one.
func (f Form) Submit(s *state.Store) (model.Event, error) {
	ev, err := f.Build()
	if err != nil {
		return model.Event{}, err
	}
	if !f.Editing() {
		s.AddEvent(ev)
		return ev, nil
	}
	return s.UpdateEvent(ev.ID, model.EventPatch{
		Title:       &ev.Title,
		Description: &ev.Description,
		Start:       &ev.Start,
		End:         &ev.End,
		Color:       &ev.Color,
		Category:    &ev.Category,
	})
}
