package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hpungsan/lspgate/internal/backend"
	"github.com/hpungsan/lspgate/internal/tool"
)

// Call hierarchy directions.
const (
	Incoming = "incoming"
	Outgoing = "outgoing"
)

// methods maps kinds answered by a single LSP request.
var methods = map[tool.Kind]string{
	tool.Hover:           "textDocument/hover",
	tool.Definition:      "textDocument/definition",
	tool.References:      "textDocument/references",
	tool.Implementations: "textDocument/implementation",
	tool.Completions:     "textDocument/completion",
	tool.DocumentSymbols: "textDocument/documentSymbol",
	tool.Rename:          "textDocument/rename",
}

// Invoke implements backend.Backend. Results are normalized to generic
// JSON values: hover and location results are always arrays.
func (s *Server) Invoke(ctx context.Context, kind tool.Kind, args map[string]any) (any, error) {
	uri, _ := args["uri"].(string)
	if uri == "" {
		return nil, &backend.Error{Kind: kind, Detail: "uri is required"}
	}
	if err := s.ensureOpen(uri); err != nil {
		return nil, &backend.Error{Kind: kind, Detail: err.Error(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		res any
		err error
	)
	if kind == tool.CallHierarchy {
		direction, _ := args["direction"].(string)
		res, err = s.callHierarchy(ctx, uri, position(args), direction)
	} else {
		res, err = s.query(ctx, kind, uri, args)
	}
	if err != nil {
		return nil, &backend.Error{Kind: kind, Detail: err.Error(), Err: err}
	}
	return res, nil
}

func (s *Server) query(ctx context.Context, kind tool.Kind, uri string, args map[string]any) (any, error) {
	method, ok := methods[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported query %q", kind)
	}

	params := map[string]any{"textDocument": map[string]any{"uri": uri}}
	if kind != tool.DocumentSymbols {
		params["position"] = position(args)
	}
	switch kind {
	case tool.References:
		params["context"] = map[string]any{"includeDeclaration": true}
	case tool.Rename:
		newName, _ := args["newName"].(string)
		if newName == "" {
			return nil, fmt.Errorf("newName is required")
		}
		params["newName"] = newName
	}

	var raw json.RawMessage
	if err := s.client.Call(ctx, method, params, &raw); err != nil {
		return nil, err
	}
	var v any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%s: decode result: %w", method, err)
		}
	}

	switch kind {
	case tool.Completions:
		return completionItems(v), nil
	case tool.Rename:
		return renameChanges(v), nil
	default:
		return toArray(v), nil
	}
}

func (s *Server) callHierarchy(ctx context.Context, uri string, pos map[string]any, direction string) (any, error) {
	if direction == "" {
		direction = Incoming
	}
	if direction != Incoming && direction != Outgoing {
		return nil, fmt.Errorf("direction must be %q or %q", Incoming, Outgoing)
	}

	var items []any
	err := s.client.Call(ctx, "textDocument/prepareCallHierarchy", map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     pos,
	}, &items)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return map[string]any{"target": nil, "calls": []any{}}, nil
	}
	target := items[0]

	var calls []any
	if err := s.client.Call(ctx, "callHierarchy/"+direction+"Calls", map[string]any{"item": target}, &calls); err != nil {
		return nil, err
	}

	out := make([]any, 0, len(calls))
	for _, c := range calls {
		call, ok := c.(map[string]any)
		if !ok {
			continue
		}
		from := call["from"]
		if direction == Outgoing {
			from = call["to"]
		}
		out = append(out, map[string]any{"from": from, "fromRanges": call["fromRanges"]})
	}
	return map[string]any{"target": target, "calls": out}, nil
}

// position reads 0-based line and character arguments.
func position(args map[string]any) map[string]any {
	return map[string]any{
		"line":      number(args["line"]),
		"character": number(args["character"]),
	}
}

func number(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}

// toArray turns null into [] and a single value into a one-item array.
func toArray(v any) []any {
	switch t := v.(type) {
	case nil:
		return []any{}
	case []any:
		return t
	default:
		return []any{t}
	}
}

// completionItems flattens a CompletionList to its items.
func completionItems(v any) []any {
	if obj, ok := v.(map[string]any); ok {
		items, _ := obj["items"].([]any)
		return toArray(items)
	}
	return toArray(v)
}

// renameChanges flattens a WorkspaceEdit to {changes: [{uri, edits}]},
// sorted by uri. The edit is never applied.
func renameChanges(v any) map[string]any {
	byURI := make(map[string][]any)
	if edit, ok := v.(map[string]any); ok {
		if changes, ok := edit["changes"].(map[string]any); ok {
			for uri, edits := range changes {
				list, _ := edits.([]any)
				byURI[uri] = append(byURI[uri], list...)
			}
		}
		if docChanges, ok := edit["documentChanges"].([]any); ok {
			for _, dc := range docChanges {
				obj, ok := dc.(map[string]any)
				if !ok {
					continue
				}
				doc, _ := obj["textDocument"].(map[string]any)
				uri, _ := doc["uri"].(string)
				list, _ := obj["edits"].([]any)
				if uri != "" {
					byURI[uri] = append(byURI[uri], list...)
				}
			}
		}
	}

	uris := make([]string, 0, len(byURI))
	for uri := range byURI {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	changes := make([]any, 0, len(uris))
	for _, uri := range uris {
		changes = append(changes, map[string]any{"uri": uri, "edits": byURI[uri]})
	}
	return map[string]any{"changes": changes}
}
