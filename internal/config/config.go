// Package config handles reeve configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/reeve/config.yaml, /etc/reeve/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "reeve", "config.yaml"))
	}

	paths = append(paths, "/etc/reeve/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all reeve configuration.
type Config struct {
	Endpoint EndpointConfig `yaml:"endpoint" json:"endpoint"`
	Model    ModelConfig    `yaml:"model" json:"model"`
	Loop     LoopConfig     `yaml:"loop" json:"loop"`
	Memory   MemoryConfig   `yaml:"memory" json:"memory"`
	Tools    ToolsConfig    `yaml:"tools" json:"tools"`
	Fetch    FetchConfig    `yaml:"fetch" json:"fetch"`
	Events   EventsConfig   `yaml:"events" json:"events"`
	Usage    UsageConfig    `yaml:"usage" json:"usage"`
	LogLevel string         `yaml:"log_level" json:"log_level"`
}

// EndpointConfig defines the generative-language endpoint connection.
// The API key is expected to come from the environment via ${VAR}
// expansion; there is no built-in default credential.
type EndpointConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	APIKey         string `yaml:"api_key" json:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ModelConfig defines default generation parameters. Callers may
// override the model name and temperature per run.
type ModelConfig struct {
	Name            string  `yaml:"name" json:"name"`
	SystemPrompt    string  `yaml:"system_prompt" json:"system_prompt"`
	Temperature     float64 `yaml:"temperature" json:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens" json:"max_output_tokens"`
}

// LoopConfig bounds the agent loop.
type LoopConfig struct {
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
}

// MemoryConfig defines the conversation store.
type MemoryConfig struct {
	Enabled            bool   `yaml:"enabled" json:"enabled"`
	DatabasePath       string `yaml:"database_path" json:"database_path"`
	MaxHistoryMessages int    `yaml:"max_history_messages" json:"max_history_messages"`
}

// ToolsConfig declares inline tools and dispatch options. Inline
// declarations are the fallback source: tools supplied by a connected
// provider replace them entirely.
type ToolsConfig struct {
	// ValidateArgs checks model-supplied arguments against a tool's
	// declared schema before dispatch. Off by default so a sloppy
	// schema never blocks a working tool.
	ValidateArgs bool         `yaml:"validate_args" json:"validate_args"`
	Declarations []ToolConfig `yaml:"declarations" json:"declarations"`
}

// ToolConfig declares one inline tool. Parameters accepts either a
// YAML mapping or a raw JSON string; a string that fails to parse
// degrades to an empty schema.
type ToolConfig struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Parameters  any    `yaml:"parameters" json:"parameters,omitempty"`
}

// FetchConfig controls the built-in web_fetch tool provider.
type FetchConfig struct {
	Enabled  bool `yaml:"enabled" json:"enabled"`
	MaxChars int  `yaml:"max_chars" json:"max_chars"`
}

// EventsConfig defines the optional MQTT run-event publisher.
type EventsConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Broker      string `yaml:"broker" json:"broker"`
	Username    string `yaml:"username" json:"username"`
	Password    string `yaml:"password" json:"password"`
	DeviceName  string `yaml:"device_name" json:"device_name"`
	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix"`
}

// UsageConfig controls token usage recording. Records land in the same
// database file as conversation memory.
type UsageConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file body (${VAR}) are expanded before parsing so secrets can
// live outside the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration. The endpoint key is always
// empty: credentials must be supplied by the deployment.
func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta",
			TimeoutSeconds: 120,
		},
		Model: ModelConfig{
			Name:            "gemini-2.0-flash",
			Temperature:     0.7,
			MaxOutputTokens: 2048,
		},
		Loop: LoopConfig{
			MaxIterations: 10,
		},
		Memory: MemoryConfig{
			DatabasePath:       "reeve.db",
			MaxHistoryMessages: 20,
		},
		Fetch: FetchConfig{
			MaxChars: 50000,
		},
		Events: EventsConfig{
			DeviceName:  "reeve",
			TopicPrefix: "reeve",
		},
	}
}

// Validate checks the fields a run cannot proceed without.
func (c *Config) Validate() error {
	if c.Endpoint.BaseURL == "" {
		return fmt.Errorf("endpoint.base_url is required")
	}
	if c.Endpoint.APIKey == "" {
		return fmt.Errorf("endpoint.api_key is required (set it via environment expansion, e.g. ${GENAI_API_KEY})")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	return nil
}
