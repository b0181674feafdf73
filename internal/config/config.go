package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Config holds application configuration.
type Config struct {
	// MaxConcurrentAgentCalls caps in-flight external agent calls (worker pool size).
	MaxConcurrentAgentCalls int `json:"max_concurrent_agent_calls"`

	// OptimizeThreshold is the confidence below which placements are sent to
	// the optimization agent. Stored as a float in [0,1].
	OptimizeThreshold float64 `json:"optimize_threshold"`

	// AgentModel is the model identifier passed to the agent HTTP client.
	AgentModel string `json:"agent_model,omitempty"`

	// AgentTimeoutSecs bounds each external agent call. Calls that exceed it
	// degrade to deterministic fallbacks.
	AgentTimeoutSecs int `json:"agent_timeout_secs,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentAgentCalls: 4,
		OptimizeThreshold:       0.5,
		AgentModel:              "claude-sonnet-4-20250514",
		AgentTimeoutSecs:        60,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.arbor.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.MaxConcurrentAgentCalls = overlay.MaxConcurrentAgentCalls
	if result.MaxConcurrentAgentCalls == 0 {
		result.MaxConcurrentAgentCalls = base.MaxConcurrentAgentCalls
	}

	result.OptimizeThreshold = overlay.OptimizeThreshold
	if result.OptimizeThreshold == 0 {
		result.OptimizeThreshold = base.OptimizeThreshold
	}

	result.AgentModel = overlay.AgentModel
	if result.AgentModel == "" {
		result.AgentModel = base.AgentModel
	}

	result.AgentTimeoutSecs = overlay.AgentTimeoutSecs
	if result.AgentTimeoutSecs == 0 {
		result.AgentTimeoutSecs = base.AgentTimeoutSecs
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
