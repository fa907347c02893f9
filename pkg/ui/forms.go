package ui

import (
	"errors"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/vanderheijden86/composer/pkg/model"
	"github.com/vanderheijden86/composer/pkg/prefs"
)

type formKind int

const (
	formNone formKind = iota
	formEdit
	formGoTo
	formSaveSnapshot
	formRestoreSnapshot
)

// formState holds the values huh writes into. It lives behind a pointer
// so the bound addresses survive Model copies.
type formState struct {
	kind     formKind
	entityID string
	field    string
	value    string
	name     string
	original map[string]string
}

// editableFields lists the fields offered for e, current content first.
func editableFields(e model.Entity) []string {
	fields := []string{"name", "style"}
	props := make([]string, 0, len(e.Props))
	for k := range e.Props {
		props = append(props, k)
	}
	sort.Strings(props)
	fields = append(props, fields...)
	for _, f := range []string{"content", "text", "src"} {
		if _, ok := e.Props[f]; !ok {
			fields = append(fields, f)
		}
	}
	return fields
}

func currentValues(e model.Entity) map[string]string {
	out := make(map[string]string, len(e.Props)+2)
	for k, v := range e.Props {
		out[k] = v
	}
	out["name"] = e.Name
	out["style"] = strings.Join(e.Style, " ")
	return out
}

func newEditForm(st *formState, e model.Entity) *huh.Form {
	fields := editableFields(e)
	st.kind = formEdit
	st.entityID = e.ID
	st.original = currentValues(e)
	st.field = fields[0]
	st.value = st.original[st.field]

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Field of " + e.Label()).
				Options(huh.NewOptions(fields...)...).
				Value(&st.field),
		),
		huh.NewGroup(
			huh.NewInput().
				TitleFunc(func() string { return "New " + st.field }, &st.field).
				PlaceholderFunc(func() string { return st.original[st.field] }, &st.field).
				Value(&st.value),
		),
	).WithShowHelp(false)
}

// change builds the ChangeEvent for a completed edit form. ok is false
// when the value did not change.
func (st *formState) change(kind model.EntityKind) (model.ChangeEvent, bool) {
	old, had := st.original[st.field]
	if had && old == st.value {
		return model.ChangeEvent{}, false
	}
	var oldValue any
	if had {
		oldValue = old
	}
	var newValue any = st.value
	if st.value == "" && st.field != "name" && st.field != "style" {
		newValue = nil
	}
	return model.ChangeEvent{
		EntityID:   st.entityID,
		EntityType: kind,
		Field:      st.field,
		OldValue:   oldValue,
		NewValue:   newValue,
	}, true
}

func newGoToForm(st *formState, known func(string) bool) *huh.Form {
	st.kind = formGoTo
	st.name = ""
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Reveal entity id").
			Value(&st.name).
			Validate(func(s string) error {
				if !known(strings.TrimSpace(s)) {
					return errors.New("unknown id")
				}
				return nil
			}),
	)).WithShowHelp(false)
}

func newSaveSnapshotForm(st *formState) *huh.Form {
	st.kind = formSaveSnapshot
	st.name = ""
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Snapshot name").
			Value(&st.name).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("name is required")
				}
				return nil
			}),
	)).WithShowHelp(false)
}

func newRestoreSnapshotForm(st *formState, snaps []prefs.Snapshot) *huh.Form {
	st.kind = formRestoreSnapshot
	opts := make([]huh.Option[string], 0, len(snaps))
	for _, s := range snaps {
		opts = append(opts, huh.NewOption(s.Name, s.Name))
	}
	st.name = snaps[0].Name
	return huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Restore snapshot").
			Options(opts...).
			Value(&st.name),
	)).WithShowHelp(false)
}
