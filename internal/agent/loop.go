// Package agent implements the core agent loop: seed a transcript with
// the task, call the model, dispatch any tool calls it makes, feed the
// results back, and repeat until the model answers in plain text or the
// iteration budget runs out.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reevelabs/reeve-agent/internal/genai"
	"github.com/reevelabs/reeve-agent/internal/tools"
)

// Sentinel responses for the two non-error terminal conditions. They
// are ordinary response texts, not errors: the caller always gets a
// well-formed Result it can route on.
const (
	// ResponseExhausted is returned when the loop reaches its maximum
	// iterations before the model produces a final text response.
	ResponseExhausted = "Reached maximum iterations without a final response."

	// ResponseEmpty is returned when the endpoint answers with no
	// candidates at all.
	ResponseEmpty = "No response from model."
)

// ModelClient is the slice of the generation client the loop depends
// on. Tests substitute a scripted implementation.
type ModelClient interface {
	Generate(ctx context.Context, model string, req *genai.GenerateRequest) (*genai.Reply, error)
}

// Memory supplies prior conversation context when a run is seeded and
// records the completed exchange afterwards. A nil Memory disables
// persistence entirely.
type Memory interface {
	History(ctx context.Context, conversationID string) (string, error)
	Append(ctx context.Context, conversationID, role, content string) error
}

// Request describes one task for the loop. Zero-valued fields fall
// back to the loop's configured defaults.
type Request struct {
	// Task is the instruction to carry out. Required.
	Task string `json:"task"`

	// Model overrides the default model name.
	Model string `json:"model,omitempty"`

	// SystemPrompt overrides the default system instruction.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// InputData is structured context appended to the seeded task text
	// as a labeled block.
	InputData map[string]any `json:"input_data,omitempty"`

	// ConversationID selects the memory thread. Empty means "default".
	ConversationID string `json:"conversation_id,omitempty"`

	// Temperature overrides the default sampling temperature when set.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxOutputTokens overrides the default output budget when positive.
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`

	// MaxIterations overrides the default iteration ceiling when positive.
	MaxIterations int `json:"max_iterations,omitempty"`

	// Tools is the registry for this run. Nil gets the built-in default
	// pair, same as an empty tool configuration.
	Tools *tools.Registry `json:"-"`
}

// ToolCallRecord is the audit entry for one dispatched tool call. It is
// recorded before the tool runs, so a failing tool still leaves a trail.
type ToolCallRecord struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
	ID    string         `json:"id"`
}

// Result is the outcome of one run.
type Result struct {
	Response   string           `json:"response"`
	ToolCalls  []ToolCallRecord `json:"toolCalls"`
	Iterations int              `json:"iterations"`
	Model      string           `json:"model"`
	Usage      genai.Usage      `json:"usage"`
	RequestID  string           `json:"requestId"`
}

// Defaults carries the per-run fallbacks taken from configuration.
type Defaults struct {
	Model           string
	SystemPrompt    string
	Temperature     float64
	MaxOutputTokens int
	MaxIterations   int
}

// Loop executes agent runs. One Loop may serve many sequential runs;
// each run owns its transcript and record list exclusively.
type Loop struct {
	logger      *slog.Logger
	client      ModelClient
	memory      Memory
	callTimeout time.Duration
	defaults    Defaults
}

// NewLoop creates an agent loop. callTimeout bounds each individual
// model call; zero disables the per-call deadline. memory may be nil.
func NewLoop(logger *slog.Logger, client ModelClient, memory Memory, callTimeout time.Duration, defaults Defaults) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger:      logger,
		client:      client,
		memory:      memory,
		callTimeout: callTimeout,
		defaults:    defaults,
	}
}

// Run executes one task to completion. It returns an error only for a
// missing task or a failed model call; tool failures, empty responses,
// and iteration exhaustion all land in the Result instead.
func (l *Loop) Run(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || strings.TrimSpace(req.Task) == "" {
		return nil, fmt.Errorf("task is required")
	}

	model := req.Model
	if model == "" {
		model = l.defaults.Model
	}
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = l.defaults.SystemPrompt
	}
	temperature := l.defaults.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxOutputTokens := req.MaxOutputTokens
	if maxOutputTokens <= 0 {
		maxOutputTokens = l.defaults.MaxOutputTokens
	}
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = l.defaults.MaxIterations
	}
	if maxIterations <= 0 {
		maxIterations = 1
	}

	reg := req.Tools
	if reg == nil {
		reg = tools.Build(nil, nil, l.logger)
	}

	convID := req.ConversationID
	if convID == "" {
		convID = "default"
	}

	requestID := generateRequestID()
	ctx = tools.WithRequestID(ctx, requestID)
	ctx = tools.WithConversationID(ctx, convID)
	logger := l.logger.With("request_id", requestID, "conversation", convID)

	var history string
	if l.memory != nil {
		h, err := l.memory.History(ctx, convID)
		if err != nil {
			logger.Warn("loading history failed, starting fresh", "error", err)
		} else {
			history = h
		}
	}

	transcript := []genai.Content{seedContent(req.Task, history, req.InputData)}
	declarations := reg.Declarations()

	logger.Info("run started",
		"model", model,
		"tools", reg.Len(),
		"max_iterations", maxIterations,
	)

	var (
		records []ToolCallRecord
		usage   genai.Usage
	)

	iteration := 0
	for {
		iteration++
		if iteration > maxIterations {
			logger.Warn("iteration budget exhausted",
				"iterations", maxIterations,
				"tool_calls", len(records),
			)
			return l.finish(ctx, logger, convID, req.Task, &Result{
				Response:   ResponseExhausted,
				ToolCalls:  records,
				Iterations: maxIterations,
				Model:      model,
				Usage:      usage,
				RequestID:  requestID,
			})
		}

		reply, err := l.generate(ctx, model, &genai.GenerateRequest{
			Contents:          transcript,
			SystemInstruction: systemPrompt,
			Declarations:      declarations,
			Temperature:       temperature,
			MaxOutputTokens:   maxOutputTokens,
		})
		if err != nil {
			logger.Error("model call failed", "iteration", iteration, "error", err)
			return nil, fmt.Errorf("model call on iteration %d: %w", iteration, err)
		}

		usage.PromptTokens += reply.Usage.PromptTokens
		usage.CandidateTokens += reply.Usage.CandidateTokens
		usage.TotalTokens += reply.Usage.TotalTokens

		if reply.Empty {
			logger.Warn("model returned no candidates", "iteration", iteration)
			return l.finish(ctx, logger, convID, req.Task, &Result{
				Response:   ResponseEmpty,
				ToolCalls:  records,
				Iterations: iteration,
				Model:      model,
				Usage:      usage,
				RequestID:  requestID,
			})
		}

		if len(reply.Calls) == 0 {
			logger.Info("run completed",
				"iterations", iteration,
				"tool_calls", len(records),
				"finish_reason", reply.FinishReason,
				"total_tokens", usage.TotalTokens,
			)
			return l.finish(ctx, logger, convID, req.Task, &Result{
				Response:   reply.Text,
				ToolCalls:  records,
				Iterations: iteration,
				Model:      model,
				Usage:      usage,
				RequestID:  requestID,
			})
		}

		// The model wants tools. Append its turn with the raw parts so
		// any interleaved text survives, run every call in order, then
		// bundle all results into a single user turn.
		transcript = append(transcript, genai.Content{Role: genai.RoleModel, Parts: reply.Parts})

		responses := make([]genai.Part, 0, len(reply.Calls))
		for _, call := range reply.Calls {
			records = append(records, ToolCallRecord{
				Tool:  call.Name,
				Input: call.Args,
				ID:    fmt.Sprintf("%s_%d", call.Name, iteration),
			})
			logger.Info("dispatching tool", "tool", call.Name, "iteration", iteration)
			out := reg.Dispatch(ctx, call.Name, call.Args)
			responses = append(responses, genai.FunctionResponsePart(call.Name, out))
		}
		transcript = append(transcript, genai.Content{Role: genai.RoleUser, Parts: responses})
	}
}

// generate issues one model call under the per-call deadline. The loop
// itself has no wall-clock bound; only the iteration ceiling stops it.
func (l *Loop) generate(ctx context.Context, model string, req *genai.GenerateRequest) (*genai.Reply, error) {
	if l.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.callTimeout)
		defer cancel()
	}
	return l.client.Generate(ctx, model, req)
}

// finish persists the completed exchange and hands back the result.
// Memory failures are logged and swallowed: the run already has its
// answer, and losing one history entry is the lesser harm.
func (l *Loop) finish(ctx context.Context, logger *slog.Logger, convID, task string, res *Result) (*Result, error) {
	if l.memory != nil {
		if err := l.memory.Append(ctx, convID, "user", task); err != nil {
			logger.Warn("persisting task failed", "error", err)
		} else if err := l.memory.Append(ctx, convID, "assistant", res.Response); err != nil {
			logger.Warn("persisting response failed", "error", err)
		}
	}
	return res, nil
}
