package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds each backend call.
const DefaultTimeout = 30 * time.Second

// Options configures a language server connection.
type Options struct {
	Command []string // server executable and arguments
	Root    string   // workspace root directory
	Timeout time.Duration
	Logger  *slog.Logger
}

// Server is an initialized language server connection.
type Server struct {
	client  *Client
	rootURI string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	opened map[string]bool

	cmd   *exec.Cmd
	stdin io.Closer
}

// Start launches the language server process and completes the
// initialize handshake.
func Start(ctx context.Context, opts Options) (*Server, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("lsp: no server command configured")
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Root
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("lsp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("lsp: stdout pipe: %w", err)
	}
	cmd.Stderr = &logWriter{logger: loggerOrDiscard(opts.Logger)}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("lsp: start %s: %w", opts.Command[0], err)
	}

	s, err := Attach(ctx, stdout, stdin, opts)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	s.cmd = cmd
	return s, nil
}

// Attach completes the initialize handshake over an existing stream.
func Attach(ctx context.Context, r io.Reader, w io.WriteCloser, opts Options) (*Server, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := loggerOrDiscard(opts.Logger)

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("lsp: workspace root: %w", err)
	}

	s := &Server{
		client:  NewClient(r, w, logger),
		rootURI: pathToURI(root),
		timeout: opts.Timeout,
		logger:  logger,
		opened:  make(map[string]bool),
		stdin:   w,
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := s.initialize(ctx, filepath.Base(root)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) initialize(ctx context.Context, name string) error {
	params := map[string]any{
		"processId": os.Getpid(),
		"rootUri":   s.rootURI,
		"workspaceFolders": []any{
			map[string]any{"uri": s.rootURI, "name": name},
		},
		"capabilities": map[string]any{
			"textDocument": map[string]any{
				"hover": map[string]any{
					"contentFormat": []string{"markdown", "plaintext"},
				},
				"documentSymbol": map[string]any{
					"hierarchicalDocumentSymbolSupport": true,
				},
				"definition":     map[string]any{"linkSupport": true},
				"implementation": map[string]any{"linkSupport": true},
				"completion": map[string]any{
					"completionItem": map[string]any{"snippetSupport": false},
				},
				"callHierarchy": map[string]any{},
				"rename":        map[string]any{},
			},
			"workspace": map[string]any{
				"configuration":    true,
				"workspaceFolders": true,
			},
		},
	}

	var res struct {
		ServerInfo *struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := s.client.Call(ctx, "initialize", params, &res); err != nil {
		return fmt.Errorf("lsp: %w", err)
	}
	if err := s.client.Notify("initialized", map[string]any{}); err != nil {
		return fmt.Errorf("lsp: %w", err)
	}

	if res.ServerInfo != nil {
		s.logger.Info("language server initialized",
			"server", res.ServerInfo.Name,
			"version", res.ServerInfo.Version,
			"root", s.rootURI,
		)
	}
	return nil
}

// Done is closed when the server connection ends.
func (s *Server) Done() <-chan struct{} {
	return s.client.Done()
}

// Close shuts the server down, killing the process if it does not exit.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.Call(ctx, "shutdown", nil, nil); err == nil {
		_ = s.client.Notify("exit", nil)
	}
	_ = s.stdin.Close()

	if s.cmd == nil {
		return nil
	}
	waited := make(chan error, 1)
	go func() { waited <- s.cmd.Wait() }()
	select {
	case err := <-waited:
		return err
	case <-ctx.Done():
		_ = s.cmd.Process.Kill()
		return <-waited
	}
}

// ensureOpen sends didOpen the first time a document is touched.
func (s *Server) ensureOpen(uri string) error {
	s.mu.Lock()
	if s.opened[uri] {
		s.mu.Unlock()
		return nil
	}
	s.opened[uri] = true
	s.mu.Unlock()

	path, err := uriToPath(uri)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		s.mu.Lock()
		delete(s.opened, uri)
		s.mu.Unlock()
		return fmt.Errorf("open %s: %w", uri, err)
	}

	return s.client.Notify("textDocument/didOpen", map[string]any{
		"textDocument": map[string]any{
			"uri":        uri,
			"languageId": languageID(path),
			"version":    1,
			"text":       string(text),
		},
	})
}

// languageIDs maps file extensions to LSP language identifiers.
var languageIDs = map[string]string{
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".py":   "python",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".java": "java",
	".rb":   "ruby",
	".json": "json",
	".md":   "markdown",
}

func languageID(path string) string {
	if id, ok := languageIDs[strings.ToLower(filepath.Ext(path))]; ok {
		return id
	}
	return "plaintext"
}

func pathToURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

func uriToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	return filepath.FromSlash(u.Path), nil
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}

// logWriter forwards server stderr lines to the logger.
type logWriter struct {
	logger *slog.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			w.logger.Debug("language server stderr", "line", line)
		}
	}
	return len(p), nil
}
