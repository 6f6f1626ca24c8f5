package tools

import (
	"context"
	"fmt"
)

// Dispatch executes a tool call and never returns an error: executor
// errors, panics, invalid arguments, and unknown tool names are all
// contained as an {"error": message} payload, so one bad tool degrades
// a single turn rather than the whole run. Successful results arrive
// under the "result" key.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (out map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec)
			out = map[string]any{"error": fmt.Sprintf("tool %s panicked: %v", name, rec)}
		}
	}()

	tool := r.tools[name]
	if tool == nil {
		r.logger.Debug("call to unregistered tool", "tool", name)
		return map[string]any{"result": echoPayload(name, args)}
	}

	if r.ValidateArgs {
		if s := r.schemas[name]; s != nil {
			if err := s.Validate(toJSONValue(args)); err != nil {
				r.logger.Debug("tool arguments failed validation", "tool", name, "error", err)
				return map[string]any{"error": fmt.Sprintf("invalid arguments: %v", err)}
			}
		}
	}

	result, err := tool.Handler(ctx, args)
	if err != nil {
		r.logger.Debug("tool returned error", "tool", name, "error", err)
		return map[string]any{"error": err.Error()}
	}
	return map[string]any{"result": result}
}
