package preview

import (
	"github.com/hpungsan/lspgate/internal/estimate"
	"github.com/hpungsan/lspgate/internal/tool"
)

// Default limits.
const (
	DefaultDepth   = 3
	MinDepth       = 1
	DefaultItems   = 10
	DefaultSamples = 3
)

// Limits bounds the size of a synthesized preview.
type Limits struct {
	Depth   int // tree levels kept below the top level, inclusive of it
	Items   int // list items or top-level tree nodes kept
	Samples int // files sampled for distribution previews
}

// DefaultLimits returns the default preview limits.
func DefaultLimits() Limits {
	return Limits{Depth: DefaultDepth, Items: DefaultItems, Samples: DefaultSamples}
}

// Preview is a tagged variant over the preview forms. Exactly one of the
// shape-specific fields is set, selected by Shape.
type Preview struct {
	Shape        tool.Shape
	List         []any
	Tree         *Tree
	Grouped      *Grouped
	Distribution *Distribution

	// TruncatedAtDepth is the depth limit applied to tree previews, nil otherwise.
	TruncatedAtDepth *int
}

// Tree is the preview of a recursive symbol tree.
type Tree struct {
	Items      []any `json:"items"`
	TotalItems int   `json:"totalItems"`

	// Omitted counts child nodes collapsed into truncation markers.
	Omitted int `json:"-"`
}

// Grouped is the preview of completions counted per category.
type Grouped struct {
	TotalCompletions int                      `json:"totalCompletions"`
	ByCategory       map[string]CategoryCount `json:"byCategory"`
}

// CategoryCount is the number of completions in one category.
type CategoryCount struct {
	Count int `json:"count"`
}

// Distribution is the preview of text search matches spread across files.
type Distribution struct {
	Distribution []FileMatches `json:"distribution"`
}

// FileMatches is the match count for one file.
type FileMatches struct {
	File    string `json:"file"`
	Matches int    `json:"matches"`
}

// MarshalJSON emits only the active variant, in canonical form.
func (p Preview) MarshalJSON() ([]byte, error) {
	switch p.Shape {
	case tool.ShapeTree:
		return estimate.Canonical(p.Tree)
	case tool.ShapeGrouped:
		return estimate.Canonical(p.Grouped)
	case tool.ShapeDistribution:
		return estimate.Canonical(p.Distribution)
	default:
		if p.List == nil {
			return []byte("[]"), nil
		}
		return estimate.Canonical(p.List)
	}
}

// Synthesize projects value into the preview form for kind. It does not
// modify value and always yields the same preview for the same input.
func Synthesize(value any, kind tool.Kind, limits Limits) Preview {
	switch kind.Shape() {
	case tool.ShapeTree:
		depth := max(limits.Depth, MinDepth)
		return Preview{
			Shape:            tool.ShapeTree,
			Tree:             tree(asList(value), limits.Items, depth),
			TruncatedAtDepth: &depth,
		}
	case tool.ShapeGrouped:
		return Preview{Shape: tool.ShapeGrouped, Grouped: grouped(completionItems(value))}
	case tool.ShapeDistribution:
		return Preview{Shape: tool.ShapeDistribution, Distribution: distribution(asList(value), limits.Samples)}
	default:
		return Preview{Shape: tool.ShapeList, List: list(listOf(value, kind), limits.Items)}
	}
}

// asList views value as a list. A lone value becomes a one-item list and
// null becomes empty.
func asList(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// listOf returns the list a list-shaped kind previews.
func listOf(value any, kind tool.Kind) []any {
	field := kind.ListField()
	if field == "" {
		return asList(value)
	}
	if obj, ok := value.(map[string]any); ok {
		return asList(obj[field])
	}
	return asList(value)
}

// list keeps the first n items whole.
func list(items []any, n int) []any {
	n = max(0, min(n, len(items)))
	out := make([]any, n)
	copy(out, items[:n])
	return out
}
