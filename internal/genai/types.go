package genai

// Roles attributed to transcript turns. The wire protocol only knows
// these two; tool results ride on a user-role turn.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is the smallest unit within a turn. Exactly one of Text,
// FunctionCall, or FunctionResponse is populated.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// TextPart returns a Part carrying plain text.
func TextPart(s string) Part {
	return Part{Text: s}
}

// FunctionResponsePart returns a Part carrying a tool result attributed
// to the named tool.
func FunctionResponsePart(name string, response map[string]any) Part {
	return Part{FunctionResponse: &FunctionResponse{Name: name, Response: response}}
}

// FunctionCall is a model-initiated request to invoke a named tool.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries one tool result back to the model.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

// Content is one turn of the conversation: a role plus ordered parts.
// Role is empty on the systemInstruction content.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// FunctionDeclaration describes one callable tool to the model.
// Parameters is a JSON-Schema-like object; nil means the declaration is
// sent without a parameters field at all.
type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// toolGroup is the wire grouping for declarations; the endpoint accepts
// a list of groups but we always send exactly one.
type toolGroup struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// GenerationConfig carries sampling parameters on the wire.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// GenerateRequest is the caller-facing request for one model call.
// Contents is the full transcript so far, in order.
type GenerateRequest struct {
	Contents          []Content
	SystemInstruction string
	Declarations      []FunctionDeclaration
	Temperature       float64
	MaxOutputTokens   int
}

// generateRequest is the exact wire shape.
type generateRequest struct {
	Contents          []Content        `json:"contents"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
	Tools             []toolGroup      `json:"tools,omitempty"`
}

type generateResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata *Usage        `json:"usageMetadata"`
	Error         *apiErrorBody `json:"error"`
}

type candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

// Usage is the endpoint's token accounting, passed through for
// bookkeeping. It never influences control flow.
type Usage struct {
	PromptTokens    int `json:"promptTokenCount"`
	CandidateTokens int `json:"candidatesTokenCount"`
	TotalTokens     int `json:"totalTokenCount"`
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Reply is the classified result of one generateContent call.
//
// Exactly one of three conditions holds: Empty is true (no candidates),
// Calls is non-empty (the model wants tools invoked), or the reply is
// final text in Text. Parts preserves the candidate's raw parts so
// callers can append them to the transcript verbatim, including any
// text the model interleaved with its calls.
type Reply struct {
	Parts        []Part
	Text         string
	Calls        []FunctionCall
	Empty        bool
	FinishReason string
	Usage        Usage
}
