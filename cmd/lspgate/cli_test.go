package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/lspgate/internal/backend"
	"github.com/hpungsan/lspgate/internal/config"
	"github.com/hpungsan/lspgate/internal/db"
	"github.com/hpungsan/lspgate/internal/search"
	"github.com/hpungsan/lspgate/internal/tool"
)

// testDirs creates a global config dir and a workspace root.
func testDirs(t *testing.T) (configDir, workspace string) {
	t.Helper()
	return t.TempDir(), t.TempDir()
}

// writeConfig writes config.json into dir.
func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// runApp runs the CLI with args and returns stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp()
	var buf bytes.Buffer
	app.Writer = &buf
	err := app.Run(append([]string{"lspgate"}, args...))
	return buf.String(), err
}

// seedLedger inserts n events into the ledger under configDir.
func seedLedger(t *testing.T, configDir string, kinds ...string) {
	t.Helper()
	database, err := db.Init(configDir)
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	defer database.Close()

	now := time.Now().Unix()
	for i, kind := range kinds {
		e := &db.Event{
			ID:             "01EVENT" + string(rune('A'+i)),
			Kind:           kind,
			SizeBytes:      400,
			TokensEstimate: 100,
			CreatedAt:      now - int64(i),
		}
		if err := db.Insert(database, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
}

// TestParseDuration tests the parseDuration helper function.
func TestParseDuration(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    int
		expectError bool
	}{
		{name: "valid days", input: "7d", expected: 7},
		{name: "zero days", input: "0d", expected: 0},
		{name: "large number", input: "365d", expected: 365},
		{name: "negative days", input: "-7d", expectError: true},
		{name: "no suffix", input: "7", expectError: true},
		{name: "wrong suffix", input: "7h", expectError: true},
		{name: "invalid number", input: "abcd", expectError: true},
		{name: "empty string", input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseDuration(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Setenv("LSPGATE_DEBUG", "")

	tests := []struct {
		input       string
		expected    slog.Level
		expectError bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		level, err := parseLogLevel(tt.input)
		if tt.expectError {
			if err == nil {
				t.Errorf("parseLogLevel(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil || level != tt.expected {
			t.Errorf("parseLogLevel(%q) = %v, %v; want %v", tt.input, level, err, tt.expected)
		}
	}

	t.Setenv("LSPGATE_DEBUG", "1")
	if level, _ := parseLogLevel("error"); level != slog.LevelDebug {
		t.Errorf("LSPGATE_DEBUG should force debug, got %v", level)
	}
}

func TestPruneCutoff(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	if got := pruneCutoff(now, 0); got != 1_000_001 {
		t.Errorf("pruneCutoff(0) = %d, want 1000001", got)
	}
	if got := pruneCutoff(now, 1); got != 1_000_000-86400 {
		t.Errorf("pruneCutoff(1) = %d, want %d", got, 1_000_000-86400)
	}
}

func TestWorkspaceID(t *testing.T) {
	a := workspaceID("/src/a")
	if a != workspaceID("/src/a") {
		t.Error("workspaceID should be stable")
	}
	if a == workspaceID("/src/b") {
		t.Error("different roots should have different ids")
	}
	if len(a) != 36 {
		t.Errorf("workspaceID = %q, want a UUID", a)
	}
}

func TestDisplayHost(t *testing.T) {
	tests := map[string]string{
		"":          "127.0.0.1",
		"0.0.0.0":   "127.0.0.1",
		"::":        "127.0.0.1",
		"127.0.0.1": "127.0.0.1",
		"localhost": "localhost",
	}
	for bind, want := range tests {
		if got := displayHost(bind); got != want {
			t.Errorf("displayHost(%q) = %q, want %q", bind, got, want)
		}
	}
}

// TestCLIConfig tests that global and repo config merge.
func TestCLIConfig(t *testing.T) {
	configDir, workspace := testDirs(t)
	writeConfig(t, configDir, `{"budget_tokens": 4000, "disabled_tools": ["get_completions"]}`)
	writeConfig(t, filepath.Join(workspace, config.DirName), `{
		// repo overrides
		"buffer_ttl_seconds": 120,
		"disabled_tools": ["rename_symbol"],
	}`)

	out, err := runApp(t, "--config-dir", configDir, "--workspace", workspace, "config")
	if err != nil {
		t.Fatalf("config command failed: %v", err)
	}

	var cfg config.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if cfg.BudgetTokens != 4000 {
		t.Errorf("budget_tokens = %d, want 4000", cfg.BudgetTokens)
	}
	if cfg.BufferTTLSeconds != 120 {
		t.Errorf("buffer_ttl_seconds = %d, want 120", cfg.BufferTTLSeconds)
	}
	if cfg.Port != 9527 {
		t.Errorf("port = %d, want default 9527", cfg.Port)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("disabled_tools = %v, want both entries", cfg.DisabledTools)
	}
}

func TestCLIConfig_Invalid(t *testing.T) {
	configDir, workspace := testDirs(t)
	writeConfig(t, configDir, `{"budget_tokens": -1}`)

	_, err := runApp(t, "--config-dir", configDir, "--workspace", workspace, "config")
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("expected invalid config error, got %v", err)
	}
}

func TestCLI_WorkspaceNotDirectory(t *testing.T) {
	configDir, workspace := testDirs(t)
	file := filepath.Join(workspace, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := runApp(t, "--config-dir", configDir, "--workspace", file, "config")
	if err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("expected workspace error, got %v", err)
	}
}

func TestCLITools(t *testing.T) {
	configDir, workspace := testDirs(t)
	writeConfig(t, configDir, `{"disabled_tools": ["rename_symbol"]}`)

	out, err := runApp(t, "--config-dir", configDir, "--workspace", workspace, "tools")
	if err != nil {
		t.Fatalf("tools command failed: %v", err)
	}

	var output struct {
		Tools []toolInfo `json:"tools"`
	}
	if err := json.Unmarshal([]byte(out), &output); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if len(output.Tools) != 13 {
		t.Fatalf("expected 13 tools, got %d", len(output.Tools))
	}
	for _, ti := range output.Tools {
		if want := ti.Name != "rename_symbol"; ti.Enabled != want {
			t.Errorf("%s enabled = %v, want %v", ti.Name, ti.Enabled, want)
		}
	}
}

func TestCLIHistory(t *testing.T) {
	configDir, workspace := testDirs(t)
	seedLedger(t, configDir, "hover", "references", "hover")

	t.Run("events", func(t *testing.T) {
		out, err := runApp(t, "--config-dir", configDir, "--workspace", workspace, "history")
		if err != nil {
			t.Fatalf("history command failed: %v", err)
		}
		var output struct {
			Events []db.Event `json:"events"`
		}
		if err := json.Unmarshal([]byte(out), &output); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if len(output.Events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(output.Events))
		}
		if output.Events[0].ID != "01EVENTA" {
			t.Errorf("expected newest first, got %s", output.Events[0].ID)
		}
	})

	t.Run("kind filter", func(t *testing.T) {
		out, err := runApp(t, "--config-dir", configDir, "--workspace", workspace, "history", "--kind", "hover", "--limit", "1")
		if err != nil {
			t.Fatalf("history command failed: %v", err)
		}
		var output struct {
			Events []db.Event `json:"events"`
		}
		if err := json.Unmarshal([]byte(out), &output); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if len(output.Events) != 1 || output.Events[0].Kind != "hover" {
			t.Errorf("events = %+v, want one hover event", output.Events)
		}
	})

	t.Run("summary", func(t *testing.T) {
		out, err := runApp(t, "--config-dir", configDir, "--workspace", workspace, "history", "--summary")
		if err != nil {
			t.Fatalf("history command failed: %v", err)
		}
		var output struct {
			Summary []db.KindSummary `json:"summary"`
		}
		if err := json.Unmarshal([]byte(out), &output); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if len(output.Summary) != 2 {
			t.Errorf("expected 2 kinds, got %d", len(output.Summary))
		}
	})
}

func TestCLIHistory_LedgerDisabled(t *testing.T) {
	configDir, workspace := testDirs(t)
	writeConfig(t, configDir, `{"disable_ledger": true}`)

	_, err := runApp(t, "--config-dir", configDir, "--workspace", workspace, "history")
	if err == nil || !strings.Contains(err.Error(), "[UNAVAILABLE]") {
		t.Errorf("expected UNAVAILABLE error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(configDir, db.FileName)); !os.IsNotExist(statErr) {
		t.Error("disabled ledger should not create a database")
	}
}

func TestCLIPrune(t *testing.T) {
	configDir, workspace := testDirs(t)
	seedLedger(t, configDir, "hover", "references")

	out, err := runApp(t, "--config-dir", configDir, "--workspace", workspace, "prune", "--older-than", "7d")
	if err != nil {
		t.Fatalf("prune command failed: %v", err)
	}
	if !strings.Contains(out, `"pruned": 0`) {
		t.Errorf("recent events should be kept, got %s", out)
	}

	out, err = runApp(t, "--config-dir", configDir, "--workspace", workspace, "prune", "--older-than", "0d")
	if err != nil {
		t.Fatalf("prune command failed: %v", err)
	}
	if !strings.Contains(out, `"pruned": 2`) {
		t.Errorf("expected 2 pruned, got %s", out)
	}
}

func TestCLIPrune_InvalidDuration(t *testing.T) {
	configDir, workspace := testDirs(t)

	_, err := runApp(t, "--config-dir", configDir, "--workspace", workspace, "prune", "--older-than", "7h")
	if err == nil || !strings.Contains(err.Error(), "[INVALID_REQUEST]") {
		t.Errorf("expected INVALID_REQUEST error, got %v", err)
	}
}

func TestCLI_UnknownCommand(t *testing.T) {
	_, err := runApp(t, "frobnicate")
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected unknown command error, got %v", err)
	}
}

// TestStart_WithoutLanguageServer tests that a missing language server
// leaves search working and position tools unavailable.
func TestStart_WithoutLanguageServer(t *testing.T) {
	configDir, workspace := testDirs(t)
	writeConfig(t, configDir, `{"backend_command": ["lspgate-test-no-such-server"], "disable_ledger": true}`)
	if err := os.WriteFile(filepath.Join(workspace, "main.go"), []byte("package main\n\nfunc needle() {}\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	e, err := loadEnv(workspace, configDir, "error")
	if err != nil {
		t.Fatalf("loadEnv: %v", err)
	}
	rt, err := e.start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rt.Close()

	if rt.db != nil {
		t.Error("ledger should be disabled")
	}
	if rt.gate.Budget() != 2500 {
		t.Errorf("budget = %d, want 2500", rt.gate.Budget())
	}

	_, err = rt.backend.Invoke(context.Background(), tool.Hover, map[string]any{"uri": "file:///x.go"})
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Errorf("hover error = %v, want ErrUnavailable", err)
	}

	res, err := rt.backend.Invoke(context.Background(), tool.TextSearch, map[string]any{"query": "needle"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if matches, ok := res.([]search.Match); !ok || len(matches) != 1 {
		t.Errorf("search result = %#v, want one match", res)
	}
}
