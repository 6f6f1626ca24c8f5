package tools

import (
	"encoding/json"
	"log/slog"

	"github.com/reevelabs/reeve-agent/internal/config"
)

// Build assembles the effective registry for a run from two sources:
// provider tools (definitions bundled with executors) and inline config
// declarations. Connected providers win outright: when any provider tool
// is present, the inline declarations are ignored entirely, never
// merged. If neither source yields a tool, the fixed default pair
// (search, calculate) is installed so the model always has a minimal
// tool affordance.
func Build(provided []Tool, inline []config.ToolConfig, logger *slog.Logger) *Registry {
	r := New(logger)

	if len(provided) > 0 {
		for i := range provided {
			t := provided[i]
			r.Register(&t)
		}
	} else {
		for _, tc := range inline {
			if tc.Name == "" {
				continue
			}
			r.Register(&Tool{
				Name:        tc.Name,
				Description: tc.Description,
				Parameters:  parseParameters(tc.Name, tc.Parameters, r.logger),
			})
		}
	}

	if r.Len() == 0 {
		defaults := Defaults()
		for i := range defaults {
			r.Register(&defaults[i])
		}
	}
	return r
}

// parseParameters normalizes an inline declaration's parameters field.
// Config mappings pass through unchanged; a raw JSON string is parsed; a
// parse failure degrades to no schema rather than failing the build.
func parseParameters(name string, v any, logger *slog.Logger) map[string]any {
	switch p := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return p
	case string:
		if p == "" {
			return nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(p), &m); err != nil {
			logger.Warn("tool parameters are not valid JSON, using empty schema", "tool", name, "error", err)
			return nil
		}
		return m
	default:
		logger.Warn("unsupported tool parameters type, using empty schema", "tool", name)
		return nil
	}
}
