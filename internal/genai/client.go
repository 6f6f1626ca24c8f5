// Package genai is a client for generateContent-style generative
// language endpoints. It translates a conversation transcript, system
// instruction, and tool declarations into the wire format, issues the
// call, and classifies the response as final text, function calls, or
// empty.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reevelabs/reeve-agent/internal/config"
	"github.com/reevelabs/reeve-agent/internal/httpkit"
)

// maxResponseBytes caps how much of a response body is read. Generation
// responses are JSON text; anything past this is a misbehaving server.
const maxResponseBytes = 16 << 20

// APIError is a fatal endpoint failure: a non-2xx status or a response
// carrying a structured error body. The agent loop never retries these.
type APIError struct {
	HTTPStatus int
	Code       int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("genai API error %d (%s): %s", e.HTTPStatus, e.Status, e.Message)
	}
	return fmt.Sprintf("genai API error %d: %s", e.HTTPStatus, e.Message)
}

// Client issues generateContent calls to one endpoint with one key.
// It is safe for concurrent use; independent runs may share a Client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for the endpoint at baseURL (everything before
// "/models/..."). The key is sent as the key query parameter per the
// wire contract. Requests carry no client-level timeout; callers bound
// each call with a context deadline.
func New(baseURL, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	// Generation endpoints can stall for minutes before the first header
	// byte while the model thinks. The per-call context deadline bounds
	// the whole request, so the client itself carries no timeout.
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  logger.With("provider", "genai"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithResponseHeaderTimeout(5*time.Minute),
		),
	}
}

// Generate issues one generateContent call and classifies the result.
// Any transport failure, non-2xx status, or error body is returned as
// an error and is fatal for the surrounding run.
func (c *Client) Generate(ctx context.Context, model string, req *GenerateRequest) (*Reply, error) {
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	wire := generateRequest{
		Contents: req.Contents,
		GenerationConfig: GenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		},
	}
	if req.SystemInstruction != "" {
		// The system instruction rides its own field, never the transcript.
		wire.SystemInstruction = &Content{Parts: []Part{TextPart(req.SystemInstruction)}}
	}
	if len(req.Declarations) > 0 {
		wire.Tools = []toolGroup{{FunctionDeclarations: cleanDeclarations(req.Declarations)}}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("preparing request",
		"model", model,
		"contents", len(wire.Contents),
		"tools", len(req.Declarations),
		"system_len", len(req.SystemInstruction),
	)
	c.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(body))

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(model), url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// url.Error would echo the full URL, key included. Unwrap it so
		// the credential never lands in logs or error chains.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("generate call for model %s: %w", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		apiErr := &APIError{HTTPStatus: resp.StatusCode, Message: strings.TrimSpace(errBody)}
		if parsed := parseErrorBody(errBody); parsed != nil {
			apiErr.Code = parsed.Code
			apiErr.Status = parsed.Status
			apiErr.Message = parsed.Message
		}
		return nil, apiErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Log(ctx, config.LevelTrace, "response payload", "json", string(data))

	var wireResp generateResponse
	if err := json.Unmarshal(data, &wireResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if wireResp.Error != nil {
		c.logger.Error("API error in body",
			"code", wireResp.Error.Code,
			"status", wireResp.Error.Status,
			"message", wireResp.Error.Message,
		)
		return nil, &APIError{
			HTTPStatus: resp.StatusCode,
			Code:       wireResp.Error.Code,
			Status:     wireResp.Error.Status,
			Message:    wireResp.Error.Message,
		}
	}

	reply := classify(&wireResp)
	c.logger.Debug("response received",
		"empty", reply.Empty,
		"calls", len(reply.Calls),
		"text_len", len(reply.Text),
		"finish_reason", reply.FinishReason,
		"total_tokens", reply.Usage.TotalTokens,
	)
	return reply, nil
}

// classify folds a wire response into the three-way Reply shape. A
// missing candidates list is the Empty case; any functionCall part puts
// the reply in the calls case; otherwise text parts are concatenated in
// order (possibly to an empty string).
func classify(resp *generateResponse) *Reply {
	r := &Reply{}
	if resp.UsageMetadata != nil {
		r.Usage = *resp.UsageMetadata
	}
	if len(resp.Candidates) == 0 {
		r.Empty = true
		return r
	}

	cand := resp.Candidates[0]
	r.FinishReason = cand.FinishReason
	r.Parts = cand.Content.Parts

	var text strings.Builder
	for _, p := range cand.Content.Parts {
		if p.FunctionCall != nil {
			r.Calls = append(r.Calls, *p.FunctionCall)
			continue
		}
		text.WriteString(p.Text)
	}
	r.Text = text.String()
	return r
}

// cleanDeclarations strips degenerate parameter schemas. The endpoint
// rejects a parameters object with no properties, so such declarations
// must omit the field entirely.
func cleanDeclarations(decls []FunctionDeclaration) []FunctionDeclaration {
	out := make([]FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		d.Parameters = declaredParameters(d.Parameters)
		out = append(out, d)
	}
	return out
}

func declaredParameters(schema map[string]any) map[string]any {
	if len(schema) == 0 {
		return nil
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return nil
	}
	return schema
}

func parseErrorBody(body string) *apiErrorBody {
	var envelope struct {
		Error *apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return nil
	}
	return envelope.Error
}
