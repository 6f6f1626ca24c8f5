package tools

import (
	"context"
	"reflect"
	"testing"
)

func newTestRegistry() *Registry {
	r := New(nil)
	r.Register(&Tool{
		Name:        "alpha",
		Description: "Tool alpha",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "alpha-result", nil
		},
	})
	r.Register(&Tool{
		Name:        "beta",
		Description: "Tool beta",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "beta-result", nil
		},
	})
	r.Register(&Tool{
		Name:        "gamma",
		Description: "Tool gamma",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "gamma-result", nil
		},
	})
	return r
}

func TestNames_RegistrationOrder(t *testing.T) {
	r := newTestRegistry()

	want := []string{"alpha", "beta", "gamma"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestRegister_ReplaceKeepsOrder(t *testing.T) {
	r := newTestRegistry()
	r.Register(&Tool{
		Name:        "beta",
		Description: "Replacement beta",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "new-beta", nil
		},
	})

	want := []string{"alpha", "beta", "gamma"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() after replace = %v, want %v", got, want)
	}
	if got := r.Get("beta").Description; got != "Replacement beta" {
		t.Errorf("Get(beta).Description = %q, want %q", got, "Replacement beta")
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
}

func TestRegister_SkipsNameless(t *testing.T) {
	r := New(nil)
	r.Register(nil)
	r.Register(&Tool{Description: "no name"})

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after nameless registrations", r.Len())
	}
}

func TestRegister_BindsBuiltinHandlers(t *testing.T) {
	r := New(nil)
	r.Register(&Tool{Name: "calculate"})
	r.Register(&Tool{Name: "lookup"})

	for _, name := range []string{"calculate", "lookup"} {
		if r.Get(name).Handler == nil {
			t.Errorf("Get(%q).Handler = nil, want built-in binding", name)
		}
	}

	got := r.Dispatch(context.Background(), "calculate", map[string]any{"expression": "2+2"})
	if got["result"] != "4" {
		t.Errorf("calculate result = %v, want %q", got["result"], "4")
	}
}

func TestUnregister(t *testing.T) {
	r := newTestRegistry()
	r.Unregister("beta")
	r.Unregister("nonexistent")

	want := []string{"alpha", "gamma"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() after Unregister = %v, want %v", got, want)
	}
	if r.Get("beta") != nil {
		t.Error("Get(beta) != nil after Unregister")
	}
}

func TestClear(t *testing.T) {
	r := newTestRegistry()
	r.Clear()

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after Clear", r.Len())
	}
	if got := r.Names(); len(got) != 0 {
		t.Errorf("Names() = %v, want empty after Clear", got)
	}
}

func TestDeclarations(t *testing.T) {
	r := New(nil)
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
	}
	r.Register(&Tool{Name: "weather", Description: "Current weather", Parameters: params})
	r.Register(&Tool{Name: "time", Description: "Current time"})

	decls := r.Declarations()
	if len(decls) != 2 {
		t.Fatalf("Declarations() returned %d entries, want 2", len(decls))
	}
	if decls[0].Name != "weather" || decls[1].Name != "time" {
		t.Errorf("declaration order = [%s %s], want [weather time]", decls[0].Name, decls[1].Name)
	}
	if decls[0].Description != "Current weather" {
		t.Errorf("Description = %q, want %q", decls[0].Description, "Current weather")
	}
	if !reflect.DeepEqual(decls[0].Parameters, params) {
		t.Errorf("Parameters = %v, want %v", decls[0].Parameters, params)
	}
	if decls[1].Parameters != nil {
		t.Errorf("Parameters for schemaless tool = %v, want nil", decls[1].Parameters)
	}
}
