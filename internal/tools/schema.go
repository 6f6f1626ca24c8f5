package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compileSchema compiles a declared parameters map into a reusable
// validator. Compilation doubles as a build-time diagnostic: a schema
// that does not compile is logged and skipped, never fatal.
func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", toJSONValue(params)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return s, nil
}

// toJSONValue round-trips v through JSON so the schema compiler and
// validator see the exact shapes json.Unmarshal produces, regardless of
// how config decoding or test literals typed the values.
func toJSONValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
