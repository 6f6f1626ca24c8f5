package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/reevelabs/reeve-agent/internal/calc"
)

// errInvalidExpression is the fixed containment message for calculate
// failures. The model sees this exact text as the error payload.
var errInvalidExpression = errors.New("Invalid expression")

// Defaults returns the fallback pair installed when a build produces no
// tools at all. The pair is never merged with user-declared tools.
func Defaults() []Tool {
	return []Tool{
		{
			Name:        "search",
			Description: "Search for information about a topic.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The search query",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "calculate",
			Description: "Evaluate an arithmetic expression. Supports + - * / % ^ and the functions abs, round, min, max, pow.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"expression": map[string]any{
						"type":        "string",
						"description": "The expression to evaluate, e.g. round(2.5 * 3, 1)",
					},
				},
				"required": []string{"expression"},
			},
		},
	}
}

// builtinFor resolves the executor for a tool registered without one.
// Resolution happens once at registration.
func builtinFor(name string) Handler {
	switch name {
	case "search":
		return searchHandler
	case "calculate":
		return calculateHandler
	default:
		return echoHandler(name)
	}
}

func searchHandler(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	return fmt.Sprintf("placeholder search results for %q (no search provider is configured)", query), nil
}

func calculateHandler(ctx context.Context, args map[string]any) (any, error) {
	expr, _ := args["expression"].(string)
	v, err := calc.Eval(expr)
	if err != nil {
		return nil, errInvalidExpression
	}
	return calc.Format(v), nil
}

// echoHandler serves declared tools that carry no executor. The payload
// describes the call so the model can tell nothing real happened.
func echoHandler(name string) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		return echoPayload(name, args), nil
	}
}

func echoPayload(name string, args map[string]any) string {
	detail, err := json.Marshal(args)
	if err != nil {
		detail = []byte(fmt.Sprintf("%v", args))
	}
	return fmt.Sprintf("tool %q has no executor; echoing call with arguments %s", name, detail)
}
