package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/lspgate/internal/db"
	"github.com/hpungsan/lspgate/internal/errors"
	"github.com/hpungsan/lspgate/internal/mcp"
	"github.com/hpungsan/lspgate/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "lspgate",
		Usage:   "Token-budgeted code intelligence for MCP clients",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Usage: "Workspace root (defaults to the working directory)"},
			&cli.StringFlag{Name: "config-dir", Usage: "Global config and ledger directory (defaults to ~/.lspgate)"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level: debug|info|warn|error"},
		},
		Commands: []*cli.Command{
			serveCmd(),
			stdioCmd(),
			historyCmd(),
			pruneCmd(),
			configCmd(),
			toolsCmd(),
		},
		// No command: piped stdin means an MCP client is attached
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				return cli.Exit(fmt.Sprintf("unknown command %q\nRun 'lspgate --help' for usage.", c.Args().First()), 1)
			}
			if stdinHasData() {
				return runStdio(c)
			}
			return cli.ShowAppHelp(c)
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// envFrom resolves the global flags.
func envFrom(c *cli.Context) (*env, error) {
	e, err := loadEnv(c.String("workspace"), c.String("config-dir"), c.String("log-level"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return e, nil
}

// serveCmd creates the serve command.
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve MCP over streamable HTTP with the status dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Listen address (overrides config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (overrides the port file and config)"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	e, err := envFrom(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := e.start(ctx)
	if err != nil {
		return outputError(err)
	}
	defer rt.Close()
	go rt.store.Run(ctx)

	bind := e.cfg.Bind
	if c.IsSet("bind") {
		bind = c.String("bind")
	}
	port := resolvePort(c, e)

	ln, err := net.Listen("tcp", net.JoinHostPort(bind, strconv.Itoa(port)))
	if err != nil {
		return outputError(errors.NewUnavailable(fmt.Sprintf("listen on %s:%d: %v", bind, port, err)))
	}
	port = ln.Addr().(*net.TCPAddr).Port

	ws := web.WorkspaceInfo{
		Name:      filepath.Base(e.root),
		Path:      e.root,
		ID:        workspaceID(e.root),
		Port:      port,
		Version:   Version,
		StartedAt: startedAt,
	}

	mcpServer := mcp.NewServer(rt.deps(), e.cfg, Version)
	srv, err := web.NewServer(web.Options{
		MCP:       mcp.NewStreamableHTTP(mcpServer, rt.broker, web.MCPPath, e.logger),
		Store:     rt.store,
		Broker:    rt.broker,
		Gate:      rt.gate,
		DB:        rt.db,
		Workspace: ws,
		Logger:    e.logger,
	}, ln.Addr().String())
	if err != nil {
		ln.Close()
		return outputError(err)
	}

	url := "http://" + net.JoinHostPort(displayHost(bind), strconv.Itoa(port)) + web.MCPPath
	if disc, err := web.WriteDiscovery(e.root, ws, url); err != nil {
		e.logger.Warn("discovery files not written", "error", err)
	} else {
		defer disc.Remove()
	}

	return web.Run(ctx, srv, ln, e.logger)
}

// resolvePort picks the --port flag, then the workspace port file, then config.
func resolvePort(c *cli.Context, e *env) int {
	if c.IsSet("port") {
		return c.Int("port")
	}
	port, ok, err := web.ReadPortFile(e.root)
	if err != nil {
		e.logger.Warn("ignoring port file", "error", err)
	}
	if ok {
		return port
	}
	return e.cfg.Port
}

// displayHost maps wildcard binds to loopback for URLs.
func displayHost(bind string) string {
	if bind == "" || bind == "0.0.0.0" || bind == "::" {
		return "127.0.0.1"
	}
	return bind
}

// stdioCmd creates the stdio command.
func stdioCmd() *cli.Command {
	return &cli.Command{
		Name:   "stdio",
		Usage:  "Serve MCP over stdin/stdout",
		Action: runStdio,
	}
}

func runStdio(c *cli.Context) error {
	e, err := envFrom(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := e.start(ctx)
	if err != nil {
		return outputError(err)
	}
	defer rt.Close()
	go rt.store.Run(ctx)

	return mcp.ServeStdio(mcp.NewServer(rt.deps(), e.cfg, Version))
}

// historyCmd creates the history command.
func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded gate decisions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by tool kind (e.g. references)"},
			&cli.BoolFlag{Name: "buffered", Usage: "Only decisions that buffered the result"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum events to return"},
			&cli.IntFlag{Name: "offset", Usage: "Events to skip"},
			&cli.BoolFlag{Name: "summary", Aliases: []string{"s"}, Usage: "Per-kind totals instead of events"},
		},
		Action: func(c *cli.Context) error {
			e, err := envFrom(c)
			if err != nil {
				return err
			}
			database, err := e.openLedger()
			if err != nil {
				return outputError(err)
			}
			if database == nil {
				return outputError(errors.NewUnavailable("ledger is disabled"))
			}
			defer database.Close()

			if c.Bool("summary") {
				summaries, err := db.Summarize(database)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(c.App.Writer, map[string]any{"summary": summaries})
			}

			events, err := db.List(database, db.ListFilter{
				Kind:         c.String("kind"),
				BufferedOnly: c.Bool("buffered"),
				Limit:        c.Int("limit"),
				Offset:       c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"events": events})
		},
	}
}

// pruneCmd creates the prune command.
func pruneCmd() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete recorded gate decisions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Required: true, Usage: "Only prune events older than N days (e.g., 7d, 0d for all)"},
		},
		Action: func(c *cli.Context) error {
			days, err := parseDuration(c.String("older-than"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			e, err := envFrom(c)
			if err != nil {
				return err
			}
			database, err := e.openLedger()
			if err != nil {
				return outputError(err)
			}
			if database == nil {
				return outputError(errors.NewUnavailable("ledger is disabled"))
			}
			defer database.Close()

			pruned, err := db.Prune(database, pruneCutoff(time.Now(), days))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, map[string]any{"pruned": pruned})
		},
	}
}

// pruneCutoff returns the Unix time before which events are pruned. Zero
// days covers everything recorded so far.
func pruneCutoff(now time.Time, days int) int64 {
	if days == 0 {
		return now.Unix() + 1
	}
	return now.Add(-time.Duration(days) * 24 * time.Hour).Unix()
}

// configCmd creates the config command.
func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration for the workspace",
		Action: func(c *cli.Context) error {
			e, err := envFrom(c)
			if err != nil {
				return err
			}
			return outputJSON(c.App.Writer, e.cfg)
		},
	}
}

// toolInfo is one line of the tools command output.
type toolInfo struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// toolsCmd creates the tools command.
func toolsCmd() *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "List MCP tools and whether the workspace config enables them",
		Action: func(c *cli.Context) error {
			e, err := envFrom(c)
			if err != nil {
				return err
			}
			names := mcp.AllToolNames()
			tools := make([]toolInfo, 0, len(names))
			for _, name := range names {
				tools = append(tools, toolInfo{
					Name:    name,
					Enabled: !slices.Contains(e.cfg.DisabledTools, name),
				})
			}
			return outputJSON(c.App.Writer, map[string]any{"tools": tools})
		},
	}
}

// Helper functions

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if gErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", gErr.Code, gErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
