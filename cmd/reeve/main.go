// Reeve is an agentic task runner backed by a generateContent-style
// model endpoint.
//
// A run seeds a transcript with the task, lets the model call declared
// tools, feeds the results back, and prints the final response.
// Conversation memory and token usage persist to SQLite; completed runs
// can be published to MQTT. Configuration is loaded from a single YAML
// file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	reeve run <task>            Run one task through the agent loop
//	reeve init [dir]            Initialize a working directory with defaults
//	reeve config-schema         Print the configuration JSON schema
//	reeve version               Print version and build information
//	reeve -o json run <task>    Output the full run result as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	invopop "github.com/invopop/jsonschema"

	"github.com/reevelabs/reeve-agent/internal/agent"
	"github.com/reevelabs/reeve-agent/internal/buildinfo"
	"github.com/reevelabs/reeve-agent/internal/config"
	"github.com/reevelabs/reeve-agent/internal/events"
	"github.com/reevelabs/reeve-agent/internal/fetch"
	"github.com/reevelabs/reeve-agent/internal/genai"
	"github.com/reevelabs/reeve-agent/internal/memory"
	"github.com/reevelabs/reeve-agent/internal/tools"
	"github.com/reevelabs/reeve-agent/internal/usage"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run]. This keeps os.Exit, os.Stdout, and
// os.Args out of the application logic so the full lifecycle can be
// driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the reeve command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it aborts an
//     in-flight run at the next model call.
//   - stdout receives command output (the response, JSON results,
//     schemas); stderr receives structured logs and fatal errors.
//   - args is os.Args[1:], parsed by hand so run() stays callable from
//     parallel tests without flag package globals.
//
// run returns nil on success; the caller (main) prints any error and
// exits non-zero.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				// Collect remaining args as subcommand arguments.
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "run":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: reeve run [-conversation id] <task>")
		}
		return runTask(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "config-schema":
		return runConfigSchema(stdout)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runTask handles the "reeve run" subcommand: one task through the
// agent loop, start to finish. The response lands on stdout; logs go to
// stderr so both text and JSON output stay pipeable.
func runTask(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath, outputFmt string, args []string) error {
	var conversationID string
	var taskWords []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-conversation" && i+1 < len(args):
			conversationID = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-conversation="):
			conversationID = strings.TrimPrefix(args[i], "-conversation=")
		default:
			taskWords = append(taskWords, args[i])
		}
	}
	task := strings.Join(taskWords, " ")
	if strings.TrimSpace(task) == "" {
		return fmt.Errorf("usage: reeve run [-conversation id] <task>")
	}
	if conversationID == "" {
		conversationID = "default"
	}

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, level, "text")
	logger.Info("config loaded", "path", cfgPath, "model", cfg.Model.Name)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Persistence ---
	// Conversation memory and usage records share one SQLite database.
	var db *sql.DB
	if cfg.Memory.Enabled || cfg.Usage.Enabled {
		db, err = sql.Open("sqlite3", cfg.Memory.DatabasePath+"?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			return fmt.Errorf("open database %s: %w", cfg.Memory.DatabasePath, err)
		}
		defer db.Close()
	}

	var mem agent.Memory
	if cfg.Memory.Enabled {
		store, err := memory.New(db, cfg.Memory.MaxHistoryMessages)
		if err != nil {
			return fmt.Errorf("open memory store: %w", err)
		}
		mem = store
		logger.Info("conversation memory enabled", "path", cfg.Memory.DatabasePath)
	}

	var usageStore *usage.Store
	if cfg.Usage.Enabled {
		usageStore, err = usage.New(db)
		if err != nil {
			return fmt.Errorf("open usage store: %w", err)
		}
	}

	// --- Tool registry ---
	// Connected providers (web fetch, when enabled) take precedence over
	// inline declarations from config.
	var provided []tools.Tool
	if cfg.Fetch.Enabled {
		provided = fetch.Tools(fetch.New(cfg.Fetch.MaxChars, logger))
	}
	reg := tools.Build(provided, cfg.Tools.Declarations, logger)
	reg.ValidateArgs = cfg.Tools.ValidateArgs
	logger.Info("tool registry built", "tools", reg.Names())

	// --- Model client ---
	client := genai.New(cfg.Endpoint.BaseURL, cfg.Endpoint.APIKey, logger)

	// --- Run events ---
	// Optional MQTT publisher. A broker outage never blocks the run.
	var pub *events.Publisher
	if cfg.Events.Enabled {
		pub = events.New(cfg.Events, logger)
		if err := pub.Start(ctx); err != nil {
			logger.Warn("event publisher unavailable", "error", err)
			pub = nil
		} else {
			defer func() {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer stopCancel()
				if err := pub.Stop(stopCtx); err != nil {
					logger.Warn("event publisher shutdown failed", "error", err)
				}
			}()
		}
	}

	// --- Agent loop ---
	loop := agent.NewLoop(logger, client, mem,
		time.Duration(cfg.Endpoint.TimeoutSeconds)*time.Second,
		agent.Defaults{
			Model:           cfg.Model.Name,
			SystemPrompt:    cfg.Model.SystemPrompt,
			Temperature:     cfg.Model.Temperature,
			MaxOutputTokens: cfg.Model.MaxOutputTokens,
			MaxIterations:   cfg.Loop.MaxIterations,
		})

	started := time.Now()
	res, err := loop.Run(ctx, &agent.Request{
		Task:           task,
		ConversationID: conversationID,
		Tools:          reg,
	})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	elapsed := time.Since(started)

	if usageStore != nil {
		rec := usage.Record{
			RequestID:       res.RequestID,
			ConversationID:  conversationID,
			Model:           res.Model,
			PromptTokens:    res.Usage.PromptTokens,
			CandidateTokens: res.Usage.CandidateTokens,
			TotalTokens:     res.Usage.TotalTokens,
			Iterations:      res.Iterations,
			ToolCalls:       len(res.ToolCalls),
		}
		if err := usageStore.Add(ctx, rec); err != nil {
			logger.Warn("recording usage failed", "error", err)
		}
	}

	if pub != nil {
		pub.PublishRun(ctx, events.RunEvent{
			RequestID:      res.RequestID,
			ConversationID: conversationID,
			Model:          res.Model,
			Response:       res.Response,
			Iterations:     res.Iterations,
			ToolCalls:      len(res.ToolCalls),
			TotalTokens:    res.Usage.TotalTokens,
			DurationMS:     elapsed.Milliseconds(),
		})
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(stdout, res.Response)
	return nil
}

// runConfigSchema prints the JSON schema for the configuration file,
// for editor integration and config linting.
func runConfigSchema(w io.Writer) error {
	reflector := &invopop.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "Reeve Configuration"
	schema.Description = "Configuration schema for the reeve agent"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// reeve is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Reeve - Agentic Task Runner")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: reeve [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run [-conversation id] <task>   Run one task through the agent loop")
	fmt.Fprintln(w, "  init [dir]                      Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  config-schema                   Print the configuration JSON schema")
	fmt.Fprintln(w, "  version                         Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/reeve/config.yaml, /etc/reeve/config.yaml")
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
// Otherwise [config.FindConfig] searches the default locations. Returns
// the parsed config, the path that was loaded, and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
