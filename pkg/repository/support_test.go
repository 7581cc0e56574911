package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ammar0144/rowrepo/pkg/db"
)

func TestEventBusOrder(t *testing.T) {
	bus := NewEventBus()
	var got []string

	bus.Subscribe("beforeSave", func(_ context.Context, e Event) { got = append(got, "first:"+e.Name) })
	bus.Subscribe("beforeSave", func(_ context.Context, e Event) { got = append(got, "second:"+e.Name) })
	bus.SubscribePhase(BeforeSave, "Widget", func(_ context.Context, e Event) { got = append(got, "typed:"+e.Name) })

	widget := &Widget{}
	bus.Dispatch(context.Background(), "beforeSave", widget)
	bus.Dispatch(context.Background(), EventName(BeforeSave, "Widget"), widget)
	bus.Dispatch(context.Background(), "afterSave", widget)

	assertEqual(t, []string{"first:beforeSave", "second:beforeSave", "typed:beforeSave.Widget"}, got)
}

func TestIdentityMap(t *testing.T) {
	m := NewIdentityMap[*Widget]()

	m.Put(&Widget{Name: "unsaved"})
	assertEqual(t, 0, m.Len())

	a := &Widget{BaseEntity: BaseEntity{ID: 1}}
	b := &Widget{BaseEntity: BaseEntity{ID: 1}}
	m.Put(a)
	m.Put(b)
	got, ok := m.Get(1)
	assertTrue(t, ok && got == b, "expected the latest instance")
	assertEqual(t, 1, m.Len())

	m.Clear()
	_, ok = m.Get(1)
	assertTrue(t, !ok, "expected an empty map after Clear")
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"Widget":     "widget",
		"OrderLine":  "order_line",
		"HTTPServer": "http_server",
		"userID":     "user_id",
	}
	for in, expected := range tests {
		assertEqual(t, expected, toSnakeCase(in))
	}
}

func TestInflectionConvention(t *testing.T) {
	name, err := InflectionConvention{}.TableNameFor("Category", &namelessWidget{})
	assertNoError(t, err)
	assertEqual(t, "categories", name)

	name, err = InflectionConvention{}.TableNameFor("Ignored", &Widget{})
	assertNoError(t, err)
	assertEqual(t, "widgets", name)

	_, err = InflectionConvention{}.TableNameFor("", nil)
	assertTrue(t, IsConfigurationError(err), "expected configuration error")
}

type mapProvider map[string]func() any

func (p mapProvider) Resolve(name string) (any, error) {
	fn, ok := p[name]
	if !ok {
		return nil, errors.New("not registered: " + name)
	}
	return fn(), nil
}

func TestContainerFactory(t *testing.T) {
	provider := mapProvider{
		"widget": func() any { return &Widget{Color: "default"} },
		"wrong":  func() any { return "not a widget" },
	}

	factory := NewContainerFactory[*Widget](provider, "widget")
	a, b := factory.Create(), factory.Create()
	assertEqual(t, "default", a.Color)
	assertTrue(t, a != b, "expected a new instance per Create")

	_, err := NewContainerFactory[*Widget](provider, "wrong").Resolve()
	assertTrue(t, IsConfigurationError(err), "expected configuration error for wrong type")

	_, err = NewContainerFactory[*Widget](provider, "missing").Resolve()
	assertTrue(t, IsConfigurationError(err), "expected configuration error for missing service")

	_, err = New[*Widget](newMemExecutor(false), NewContainerFactory[*Widget](provider, "missing"))
	assertTrue(t, IsConfigurationError(err), "expected New to reject a failing factory")
	assertTrue(t, strings.Contains(err.Error(), "not registered: missing"), "expected the provider error in "+err.Error())

	_, err = New[*Widget](newMemExecutor(false), NewContainerFactory[*Widget](provider, "wrong"))
	assertTrue(t, strings.Contains(err.Error(), "provider returned string"), "expected the type mismatch in "+err.Error())
}

func TestDataHydrator(t *testing.T) {
	h := NewDataHydrator[*Widget](FactoryFunc[*Widget](newWidget), "id")

	row := db.Row{"id": "15", "name": "bolt", "color": "red", "note": nil, "isDeleted": "1"}
	widget, err := h.Hydrate(row)
	assertNoError(t, err)
	assertEqual(t, int64(15), widget.GetID())
	assertTrue(t, widget.IsDeleted(), "expected deleted flag")

	row["name"] = "changed"
	assertEqual(t, "bolt", widget.Name)
	assertEqual(t, "bolt", h.Dehydrate(widget)["name"])
}

func TestAsInt64(t *testing.T) {
	tests := []struct {
		in       any
		expected int64
		ok       bool
	}{
		{int64(5), 5, true},
		{int(5), 5, true},
		{uint8(5), 5, true},
		{float64(5), 5, true},
		{float64(5.5), 0, false},
		{"42", 42, true},
		{[]byte("42"), 42, true},
		{"abc", 0, false},
		{true, 1, true},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := AsInt64(tt.in)
		assertEqual(t, tt.ok, ok)
		assertEqual(t, tt.expected, got)
	}
}
