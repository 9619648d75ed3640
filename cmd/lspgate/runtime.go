package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/lspgate/internal/backend"
	"github.com/hpungsan/lspgate/internal/buffer"
	"github.com/hpungsan/lspgate/internal/config"
	"github.com/hpungsan/lspgate/internal/db"
	"github.com/hpungsan/lspgate/internal/gate"
	"github.com/hpungsan/lspgate/internal/lsp"
	"github.com/hpungsan/lspgate/internal/mcp"
	"github.com/hpungsan/lspgate/internal/preview"
	"github.com/hpungsan/lspgate/internal/search"
	"github.com/hpungsan/lspgate/internal/session"
	"github.com/hpungsan/lspgate/internal/tool"
)

// env holds what every command resolves from the global flags.
type env struct {
	root      string // absolute workspace root
	configDir string // global config and ledger directory
	cfg       *config.Config
	logger    *slog.Logger
}

// runtime is the wired process: buffers, gate, session and backend.
type runtime struct {
	env
	db      *sql.DB // nil when the ledger is disabled
	store   *buffer.Store
	gate    *gate.Gate
	broker  *session.Broker
	backend backend.Backend
	server  *lsp.Server // nil when the language server failed to start
}

// loadEnv resolves the workspace, loads the merged config and builds the logger.
func loadEnv(workspace, configDir, logLevel string) (*env, error) {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	if workspace == "" {
		workspace, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not determine working directory: %w", err)
		}
	}
	root, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", root)
	}

	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home directory: %w", err)
		}
		configDir = filepath.Join(home, config.DirName)
	}

	cfg, err := config.LoadWithRepo(configDir, root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", "tools", strings.Join(unknown, ", "))
	}

	return &env{root: root, configDir: configDir, cfg: cfg, logger: logger}, nil
}

// openLedger opens the gate ledger, or returns nil when it is disabled.
func (e *env) openLedger() (*sql.DB, error) {
	if e.cfg.DisableLedger {
		return nil, nil
	}
	database, err := db.Init(e.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, e.cfg)
	return database, nil
}

// start wires the runtime. A language server that fails to start leaves the
// position tools answering UNAVAILABLE while text search keeps working.
func (e *env) start(ctx context.Context) (*runtime, error) {
	database, err := e.openLedger()
	if err != nil {
		return nil, err
	}

	rt := &runtime{env: *e, db: database, broker: session.NewBroker()}

	rt.store = buffer.NewStore(buffer.Options{
		TTL:               e.cfg.BufferTTL(),
		CleanupInterval:   e.cfg.CleanupInterval(),
		CompressThreshold: e.cfg.CompressThresholdBytes,
		Logger:            e.logger,
	})

	opts := gate.Options{
		BudgetTokens: e.cfg.BudgetTokens,
		Limits: preview.Limits{
			Depth:   e.cfg.PreviewDepthLimit,
			Items:   e.cfg.PreviewItems,
			Samples: e.cfg.DistributionSamples,
		},
		MinDepth: e.cfg.PreviewMinDepth,
		Logger:   e.logger,
	}
	if database != nil {
		opts.Recorder = db.NewLedger(database)
	}
	rt.gate = gate.New(rt.store, opts)

	var fallback backend.Backend = unavailableBackend
	startCtx, cancel := context.WithTimeout(ctx, e.cfg.BackendTimeout())
	defer cancel()
	srv, err := lsp.Start(startCtx, lsp.Options{
		Command: e.cfg.BackendCommand,
		Root:    e.root,
		Timeout: e.cfg.BackendTimeout(),
		Logger:  e.logger,
	})
	if err != nil {
		e.logger.Warn("language server unavailable", "command", strings.Join(e.cfg.BackendCommand, " "), "error", err)
	} else {
		rt.server = srv
		fallback = srv
	}

	rt.backend = backend.NewRouter(fallback).
		Handle(tool.TextSearch, search.New(e.root, e.cfg.SearchMaxResults))

	return rt, nil
}

// unavailableBackend answers every call when no language server is running.
var unavailableBackend = backend.Func(func(ctx context.Context, kind tool.Kind, args map[string]any) (any, error) {
	return nil, fmt.Errorf("%s: %w", kind, backend.ErrUnavailable)
})

// deps returns the MCP handler dependencies.
func (rt *runtime) deps() mcp.Deps {
	return mcp.Deps{
		Backend: rt.backend,
		Gate:    rt.gate,
		Store:   rt.store,
		Broker:  rt.broker,
		Logger:  rt.logger,
	}
}

// Close stops the language server and closes the ledger.
func (rt *runtime) Close() {
	if rt.server != nil {
		if err := rt.server.Close(); err != nil {
			rt.logger.Warn("language server shutdown", "error", err)
		}
	}
	if rt.db != nil {
		rt.db.Close()
	}
}

// workspaceID derives a stable id from the workspace path.
func workspaceID(root string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(root))).String()
}

// parseLogLevel accepts debug, info, warn or error. LSPGATE_DEBUG forces debug.
func parseLogLevel(s string) (slog.Level, error) {
	if os.Getenv("LSPGATE_DEBUG") != "" {
		return slog.LevelDebug, nil
	}
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// startedAt is stamped once per process.
var startedAt = time.Now().UTC()
