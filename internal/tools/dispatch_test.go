package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDispatch_CustomHandlerResult(t *testing.T) {
	r := New(nil)
	r.Register(&Tool{
		Name: "lookup",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"entry": "found"}, nil
		},
	})

	got := r.Dispatch(context.Background(), "lookup", map[string]any{"key": "k1"})

	result, ok := got["result"].(map[string]any)
	if !ok {
		t.Fatalf("Dispatch() = %v, want result payload", got)
	}
	if result["entry"] != "found" {
		t.Errorf("result = %v, want entry=found", result)
	}
	if _, hasErr := got["error"]; hasErr {
		t.Error("successful dispatch carries an error key")
	}
}

func TestDispatch_CustomHandlerErrorIsContained(t *testing.T) {
	r := New(nil)
	r.Register(&Tool{
		Name: "lookup",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("backend unreachable")
		},
	})

	got := r.Dispatch(context.Background(), "lookup", nil)

	if got["error"] != "backend unreachable" {
		t.Errorf("Dispatch() = %v, want error=backend unreachable", got)
	}
	if _, hasResult := got["result"]; hasResult {
		t.Error("failed dispatch carries a result key")
	}
}

func TestDispatch_HandlerPanicIsContained(t *testing.T) {
	r := New(nil)
	r.Register(&Tool{
		Name: "lookup",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			panic("boom")
		},
	})

	got := r.Dispatch(context.Background(), "lookup", nil)

	msg, ok := got["error"].(string)
	if !ok {
		t.Fatalf("Dispatch() = %v, want error payload", got)
	}
	if !strings.Contains(msg, "panicked") || !strings.Contains(msg, "boom") {
		t.Errorf("error = %q, want panic description", msg)
	}
}

func TestDispatch_Calculate(t *testing.T) {
	r := New(nil)
	defaults := Defaults()
	for i := range defaults {
		r.Register(&defaults[i])
	}

	tests := []struct {
		name string
		args map[string]any
		want map[string]any
	}{
		{
			name: "valid expression",
			args: map[string]any{"expression": "2+2"},
			want: map[string]any{"result": "4"},
		},
		{
			name: "allow-listed function",
			args: map[string]any{"expression": "round(2.5 * 3, 1)"},
			want: map[string]any{"result": "7.5"},
		},
		{
			name: "malformed expression",
			args: map[string]any{"expression": "2 +"},
			want: map[string]any{"error": "Invalid expression"},
		},
		{
			name: "disallowed name",
			args: map[string]any{"expression": "sqrt(4)"},
			want: map[string]any{"error": "Invalid expression"},
		},
		{
			name: "missing expression",
			args: map[string]any{},
			want: map[string]any{"error": "Invalid expression"},
		},
		{
			name: "non-string expression",
			args: map[string]any{"expression": 4.0},
			want: map[string]any{"error": "Invalid expression"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Dispatch(context.Background(), "calculate", tt.args)
			if len(got) != len(tt.want) {
				t.Fatalf("Dispatch() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Dispatch()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestDispatch_SearchEchoesQuery(t *testing.T) {
	r := New(nil)
	defaults := Defaults()
	for i := range defaults {
		r.Register(&defaults[i])
	}

	got := r.Dispatch(context.Background(), "search", map[string]any{"query": "capital of France"})

	result, ok := got["result"].(string)
	if !ok {
		t.Fatalf("Dispatch() = %v, want result payload", got)
	}
	if !strings.Contains(result, "capital of France") {
		t.Errorf("result = %q, want the query echoed back", result)
	}
}

func TestDispatch_UnknownToolEchoesCall(t *testing.T) {
	r := newTestRegistry()

	got := r.Dispatch(context.Background(), "weather", map[string]any{"city": "Reykjavik"})

	result, ok := got["result"].(string)
	if !ok {
		t.Fatalf("Dispatch() = %v, want result payload, not a failure", got)
	}
	if !strings.Contains(result, "weather") || !strings.Contains(result, "Reykjavik") {
		t.Errorf("result = %q, want tool name and arguments echoed", result)
	}
	if _, hasErr := got["error"]; hasErr {
		t.Error("unknown tool produced an error payload; it must degrade to an echo")
	}
}

func TestDispatch_ValidateArgs(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key": map[string]any{"type": "string"},
		},
		"required": []string{"key"},
	}

	newRegistry := func(validate bool) (*Registry, *int) {
		calls := 0
		r := New(nil)
		r.ValidateArgs = validate
		r.Register(&Tool{
			Name:       "lookup",
			Parameters: schema,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				calls++
				return "ok", nil
			},
		})
		return r, &calls
	}

	t.Run("invalid args rejected before handler", func(t *testing.T) {
		r, calls := newRegistry(true)
		got := r.Dispatch(context.Background(), "lookup", map[string]any{"key": 7})

		msg, ok := got["error"].(string)
		if !ok {
			t.Fatalf("Dispatch() = %v, want validation error", got)
		}
		if !strings.Contains(msg, "invalid arguments") {
			t.Errorf("error = %q, want invalid arguments message", msg)
		}
		if *calls != 0 {
			t.Errorf("handler invoked %d times, want 0", *calls)
		}
	})

	t.Run("valid args pass through", func(t *testing.T) {
		r, calls := newRegistry(true)
		got := r.Dispatch(context.Background(), "lookup", map[string]any{"key": "k"})

		if got["result"] != "ok" {
			t.Errorf("Dispatch() = %v, want result=ok", got)
		}
		if *calls != 1 {
			t.Errorf("handler invoked %d times, want 1", *calls)
		}
	})

	t.Run("validation off by default", func(t *testing.T) {
		r, calls := newRegistry(false)
		got := r.Dispatch(context.Background(), "lookup", map[string]any{"key": 7})

		if got["result"] != "ok" {
			t.Errorf("Dispatch() = %v, want handler result despite bad args", got)
		}
		if *calls != 1 {
			t.Errorf("handler invoked %d times, want 1", *calls)
		}
	})
}
