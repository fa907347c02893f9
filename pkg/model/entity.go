// Package model defines the entity, change and hierarchy types shared by the
// coordination core.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// EntityKind is the level of an entity in the Page→Container→Component tree.
type EntityKind string

const (
	KindPage      EntityKind = "page"
	KindContainer EntityKind = "container"
	KindComponent EntityKind = "component"
)

// IsValid reports whether k is a known kind.
func (k EntityKind) IsValid() bool {
	switch k {
	case KindPage, KindContainer, KindComponent:
		return true
	}
	return false
}

// Entity is one node of the externally owned entity tree. The core reads
// its style tokens and content props; it never mutates them.
type Entity struct {
	ID       string            `json:"id" yaml:"id"`
	ParentID string            `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Kind     EntityKind        `json:"kind" yaml:"kind"`
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	Type     string            `json:"type,omitempty" yaml:"type,omitempty"` // component type: button, text, image...
	Style    []string          `json:"style,omitempty" yaml:"style,omitempty"`
	Props    map[string]string `json:"props,omitempty" yaml:"props,omitempty"`
}

// Prop returns a content prop, or "" when unset.
func (e Entity) Prop(name string) string {
	if e.Props == nil {
		return ""
	}
	return e.Props[name]
}

// Label returns a human-readable name for lists and headers.
func (e Entity) Label() string {
	switch {
	case e.Name != "":
		return e.Name
	case e.Type != "":
		return e.Type
	default:
		return e.ID
	}
}

// Validate checks the fields the core relies on.
func (e Entity) Validate() error {
	if e.ID == "" {
		return errors.New("entity id is required")
	}
	if e.Kind != "" && !e.Kind.IsValid() {
		return fmt.Errorf("entity %s: unknown kind %q", e.ID, e.Kind)
	}
	if e.ParentID == e.ID {
		return fmt.Errorf("entity %s: parent references itself", e.ID)
	}
	return nil
}

// ChangeEvent records one committed field edit. It is a value type and is
// never modified after creation.
type ChangeEvent struct {
	EntityID   string     `json:"entityId"`
	EntityType EntityKind `json:"entityType"`
	Field      string     `json:"field"`
	OldValue   any        `json:"oldValue,omitempty"`
	NewValue   any        `json:"newValue,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewChange builds a ChangeEvent stamped with at.
func NewChange(entityID string, kind EntityKind, field string, oldValue, newValue any, at time.Time) ChangeEvent {
	return ChangeEvent{
		EntityID:   entityID,
		EntityType: kind,
		Field:      field,
		OldValue:   oldValue,
		NewValue:   newValue,
		Timestamp:  at,
	}
}

// String renders the change for logs.
func (c ChangeEvent) String() string {
	return fmt.Sprintf("%s.%s: %v -> %v", c.EntityID, c.Field, c.OldValue, c.NewValue)
}

// Apply returns e with c's new value written to the named field. Fields
// other than name, type and style are content props. A nil new value
// clears a prop.
func (e Entity) Apply(c ChangeEvent) Entity {
	switch c.Field {
	case "name":
		e.Name = valueString(c.NewValue)
	case "type":
		e.Type = valueString(c.NewValue)
	case "style", "className":
		e.Style = styleTokens(c.NewValue)
	default:
		props := make(map[string]string, len(e.Props)+1)
		for k, v := range e.Props {
			props[k] = v
		}
		if c.NewValue == nil {
			delete(props, c.Field)
		} else {
			props[c.Field] = valueString(c.NewValue)
		}
		e.Props = props
	}
	return e
}

func valueString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func styleTokens(v any) []string {
	switch v := v.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			out = append(out, valueString(t))
		}
		return out
	default:
		return strings.Fields(valueString(v))
	}
}
