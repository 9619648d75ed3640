package web

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/lspgate/internal/buffer"
	"github.com/hpungsan/lspgate/internal/gate"
	"github.com/hpungsan/lspgate/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// MCPPath is where the streamable MCP transport is mounted.
const MCPPath = "/mcp"

// Options configures the HTTP server.
type Options struct {
	MCP       http.Handler
	Store     *buffer.Store
	Broker    *session.Broker
	Gate      *gate.Gate
	DB        *sql.DB // optional gate ledger
	Workspace WorkspaceInfo
	Logger    *slog.Logger
}

// NewServer creates and configures the HTTP server.
func NewServer(opts Options, addr string) (*http.Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	h := &Handlers{
		store:     opts.Store,
		broker:    opts.Broker,
		gate:      opts.Gate,
		db:        opts.DB,
		workspace: opts.Workspace,
		renderer:  NewRenderer(templateSub, opts.Workspace.Version, opts.Workspace.Name, opts.Logger),
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	if opts.MCP != nil {
		mux.Handle(MCPPath, opts.MCP)
	}
	mux.HandleFunc("GET /{$}", h.HandleDashboard)
	mux.HandleFunc("GET /session-info", h.HandleSessionInfo)
	mux.HandleFunc("GET /workspace-info", h.HandleWorkspaceInfo)
	mux.HandleFunc("GET /buffer-stats", h.HandleBufferStats)
	mux.HandleFunc("GET /instructions", h.HandleInstructions)
	mux.HandleFunc("GET /events", h.HandleEvents)
	mux.HandleFunc("POST /events/prune", h.HandlePrune)

	// Static file server
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return &http.Server{
		Addr:              addr,
		Handler:           securityHeaders(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run serves on ln until ctx is canceled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	addr := ln.Addr().String()
	logger.Info("lspgate listening", "url", "http://"+addr+MCPPath)
	if strings.HasPrefix(addr, "0.0.0.0:") || strings.HasPrefix(addr, "[::]:") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
