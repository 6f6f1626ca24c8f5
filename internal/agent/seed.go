package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reevelabs/reeve-agent/internal/genai"
)

// seedContent builds the single user turn that opens every transcript.
// Prior history is prepended and structured input data appended, each
// as a labeled block, so the model sees one coherent task message. All
// later growth of the transcript belongs to the loop.
func seedContent(task, history string, inputData map[string]any) genai.Content {
	var b strings.Builder
	if history != "" {
		b.WriteString("Previous conversation:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}
	b.WriteString(task)
	if len(inputData) > 0 {
		b.WriteString("\n\nInput data:\n")
		b.WriteString(renderInputData(inputData))
	}
	return genai.Content{Role: genai.RoleUser, Parts: []genai.Part{genai.TextPart(b.String())}}
}

// renderInputData serializes input data in a stable form: MarshalIndent
// sorts map keys, so the same data always renders the same text.
func renderInputData(data map[string]any) string {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(out)
}
