package fetch

import (
	"context"
	"fmt"

	"github.com/reevelabs/reeve-agent/internal/tools"
)

// Tools returns the provider tool set exposed when web fetching is
// enabled. Provider tools replace inline declarations outright, so this
// set becomes the whole effective registry while active.
func Tools(f *Fetcher) []tools.Tool {
	return []tools.Tool{
		{
			Name:        "web_fetch",
			Description: "Fetch a web page and return its readable text content. Use for looking up current information from a specific URL.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "URL to fetch and extract content from.",
					},
					"max_chars": map[string]any{
						"type":        "integer",
						"description": "Maximum characters to return. Default: 50000.",
					},
				},
				"required": []string{"url"},
			},
			Handler: f.handleFetch,
		},
	}
}

// handleFetch adapts Fetch to the tools.Handler signature. The Result
// struct is returned whole so the dispatcher serializes it under the
// "result" key.
func (f *Fetcher) handleFetch(ctx context.Context, args map[string]any) (any, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	maxChars := 0
	if mc, ok := args["max_chars"].(float64); ok && mc > 0 {
		maxChars = int(mc)
	}

	result, err := f.Fetch(ctx, url, maxChars)
	if err != nil {
		return nil, err
	}
	return result, nil
}
