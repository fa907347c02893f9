package model

import (
	"reflect"
	"testing"
)

func TestEntityApply(t *testing.T) {
	base := Entity{ID: "b", Kind: KindComponent, Name: "Btn", Props: map[string]string{"content": "Hi", "alt": "x"}}

	tests := []struct {
		name   string
		change ChangeEvent
		check  func(t *testing.T, e Entity)
	}{
		{"name", ChangeEvent{Field: "name", NewValue: "Primary"}, func(t *testing.T, e Entity) {
			if e.Name != "Primary" {
				t.Errorf("Name = %q", e.Name)
			}
		}},
		{"style string", ChangeEvent{Field: "style", NewValue: "bg-red-500  p-2"}, func(t *testing.T, e Entity) {
			if !reflect.DeepEqual(e.Style, []string{"bg-red-500", "p-2"}) {
				t.Errorf("Style = %v", e.Style)
			}
		}},
		{"style list", ChangeEvent{Field: "className", NewValue: []any{"m-1", 2}}, func(t *testing.T, e Entity) {
			if !reflect.DeepEqual(e.Style, []string{"m-1", "2"}) {
				t.Errorf("Style = %v", e.Style)
			}
		}},
		{"prop", ChangeEvent{Field: "content", NewValue: 42}, func(t *testing.T, e Entity) {
			if e.Prop("content") != "42" {
				t.Errorf("content = %q", e.Prop("content"))
			}
		}},
		{"clear prop", ChangeEvent{Field: "alt"}, func(t *testing.T, e Entity) {
			if _, ok := e.Props["alt"]; ok {
				t.Error("alt should be removed")
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, base.Apply(tt.change))
		})
	}

	if base.Prop("content") != "Hi" || base.Prop("alt") != "x" {
		t.Errorf("Apply mutated the receiver's props: %v", base.Props)
	}
}
