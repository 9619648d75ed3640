package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

// DirName is the name of both the global (~/.lspgate) and the repo
// (.lspgate) configuration directories.
const DirName = ".lspgate"

// Config holds application configuration.
type Config struct {
	// BudgetTokens is the largest estimated token count returned directly.
	// Larger results are buffered and replaced by a preview envelope.
	BudgetTokens int `json:"budget_tokens"`

	// BufferTTLSeconds is how long a buffered result stays retrievable.
	BufferTTLSeconds int `json:"buffer_ttl_seconds"`

	// CleanupIntervalSeconds is the eviction sweep period. Values above the
	// TTL are capped to it.
	CleanupIntervalSeconds int `json:"cleanup_interval_seconds"`

	// PreviewDepthLimit is the tree depth previews start from.
	PreviewDepthLimit int `json:"preview_depth_limit"`

	// PreviewMinDepth is the shallowest depth a preview is reduced to before
	// items are dropped.
	PreviewMinDepth int `json:"preview_min_depth"`

	// PreviewItems is how many list items or top-level tree nodes a preview keeps.
	PreviewItems int `json:"preview_items"`

	// DistributionSamples is how many files a text search preview samples.
	DistributionSamples int `json:"distribution_samples"`

	// CompressThresholdBytes is the buffered payload size at which payloads
	// are held compressed. -1 disables compression.
	CompressThresholdBytes int `json:"compress_threshold_bytes"`

	// Bind and Port are the HTTP listen address.
	Bind string `json:"bind"`
	Port int    `json:"port"`

	// BackendCommand starts the language server, e.g. ["gopls", "serve"].
	// An overlay replaces it as a whole.
	BackendCommand []string `json:"backend_command,omitempty"`

	// BackendTimeoutSeconds bounds each language server request.
	BackendTimeoutSeconds int `json:"backend_timeout_seconds"`

	// SearchMaxResults caps text search results when the caller sets no limit.
	SearchMaxResults int `json:"search_max_results"`

	// DisableLedger turns off the sqlite record of gate decisions.
	DisableLedger bool `json:"disable_ledger,omitempty"`

	// DBMaxOpenConns limits the maximum number of open ledger connections.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle ledger connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BudgetTokens:           2500,
		BufferTTLSeconds:       60,
		CleanupIntervalSeconds: 10,
		PreviewDepthLimit:      3,
		PreviewMinDepth:        1,
		PreviewItems:           10,
		DistributionSamples:    3,
		CompressThresholdBytes: 64 * 1024,
		Bind:                   "127.0.0.1",
		Port:                   9527,
		BackendCommand:         []string{"gopls"},
		BackendTimeoutSeconds:  30,
		SearchMaxResults:       100,
	}
}

// BufferTTL returns BufferTTLSeconds as a duration.
func (c *Config) BufferTTL() time.Duration {
	return time.Duration(c.BufferTTLSeconds) * time.Second
}

// CleanupInterval returns CleanupIntervalSeconds as a duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

// BackendTimeout returns BackendTimeoutSeconds as a duration.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSeconds) * time.Second
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Validate reports settings that cannot be served.
func (c *Config) Validate() error {
	var problems []string
	if c.BudgetTokens <= 0 {
		problems = append(problems, "budget_tokens must be positive")
	}
	if c.BufferTTLSeconds <= 0 {
		problems = append(problems, "buffer_ttl_seconds must be positive")
	}
	if c.PreviewMinDepth < 1 {
		problems = append(problems, "preview_min_depth must be at least 1")
	}
	if c.PreviewDepthLimit < c.PreviewMinDepth {
		problems = append(problems, "preview_depth_limit must not be below preview_min_depth")
	}
	if c.Port < 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.lspgate.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.lspgate) and repo (.lspgate) directories.
// Repo config is found by walking upward from startDir to find the nearest .lspgate/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .lspgate/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
// Comments and trailing commas are accepted.
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
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
	result := &Config{
		BudgetTokens:           pick(overlay.BudgetTokens, base.BudgetTokens),
		BufferTTLSeconds:       pick(overlay.BufferTTLSeconds, base.BufferTTLSeconds),
		CleanupIntervalSeconds: pick(overlay.CleanupIntervalSeconds, base.CleanupIntervalSeconds),
		PreviewDepthLimit:      pick(overlay.PreviewDepthLimit, base.PreviewDepthLimit),
		PreviewMinDepth:        pick(overlay.PreviewMinDepth, base.PreviewMinDepth),
		PreviewItems:           pick(overlay.PreviewItems, base.PreviewItems),
		DistributionSamples:    pick(overlay.DistributionSamples, base.DistributionSamples),
		CompressThresholdBytes: pick(overlay.CompressThresholdBytes, base.CompressThresholdBytes),
		Bind:                   pick(overlay.Bind, base.Bind),
		Port:                   pick(overlay.Port, base.Port),
		BackendTimeoutSeconds:  pick(overlay.BackendTimeoutSeconds, base.BackendTimeoutSeconds),
		SearchMaxResults:       pick(overlay.SearchMaxResults, base.SearchMaxResults),
		DBMaxOpenConns:         pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:         pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
	}

	// A command is replaced, not merged
	result.BackendCommand = base.BackendCommand
	if len(overlay.BackendCommand) > 0 {
		result.BackendCommand = overlay.BackendCommand
	}

	// Booleans: overlay wins if true, else base
	result.DisableLedger = base.DisableLedger || overlay.DisableLedger

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// pick returns overlay if it is non-zero, else base.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
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
