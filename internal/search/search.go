package search

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/lspgate/internal/backend"
	"github.com/hpungsan/lspgate/internal/tool"
)

// Defaults.
const (
	DefaultMaxResults  = 100
	DefaultMaxFileSize = 1 << 20
)

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	".lspgate":     true,
}

// Match is one line containing the query.
type Match struct {
	URI       string `json:"uri"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
	Text      string `json:"text"`
}

// Searcher does literal, case-sensitive text search under a root directory.
type Searcher struct {
	root        string
	maxResults  int
	maxFileSize int64
}

// New creates a searcher rooted at root. maxResults <= 0 uses the default.
func New(root string, maxResults int) *Searcher {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Searcher{root: root, maxResults: maxResults, maxFileSize: DefaultMaxFileSize}
}

// Search returns up to limit matches for query in file walk order.
// limit <= 0 uses the searcher's default. Positions are 0-based.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = s.maxResults
	}

	matches := []Match{}
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != s.root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		found, err := s.searchFile(path, query, limit-len(matches))
		if err != nil {
			return nil
		}
		matches = append(matches, found...)
		if len(matches) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.root, err)
	}
	return matches, nil
}

// Invoke implements backend.Backend for text search queries.
func (s *Searcher) Invoke(ctx context.Context, kind tool.Kind, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	limit := 0
	switch v := args["maxResults"].(type) {
	case float64:
		limit = int(v)
	case int:
		limit = v
	}

	matches, err := s.Search(ctx, query, limit)
	if err != nil {
		return nil, &backend.Error{Kind: kind, Detail: err.Error(), Err: err}
	}
	return matches, nil
}

func (s *Searcher) searchFile(path, query string, limit int) ([]Match, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > s.maxFileSize {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if binary(data) {
		return nil, nil
	}

	uri := fileURI(path)
	var out []Match
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), int(s.maxFileSize)+1)
	for line := 0; sc.Scan(); line++ {
		text := sc.Text()
		col := strings.Index(text, query)
		if col < 0 {
			continue
		}
		out = append(out, Match{URI: uri, Line: line, Character: col, Text: strings.TrimSpace(text)})
		if len(out) >= limit {
			break
		}
	}
	return out, sc.Err()
}

// binary reports whether data looks like a binary file.
func binary(data []byte) bool {
	head := data[:min(len(data), 8000)]
	return bytes.IndexByte(head, 0) >= 0
}

func fileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}
