package preview

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hpungsan/lspgate/internal/estimate"
	"github.com/hpungsan/lspgate/internal/tool"
)

func locations(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{
			"uri":   fmt.Sprintf("file:///src/f%d.go", i),
			"range": map[string]any{"start": map[string]any{"line": float64(i)}},
		}
	}
	return out
}

// symbol builds a node with the given number of nested child levels.
func symbol(name string, fanout, levels int) map[string]any {
	node := map[string]any{"name": name, "kind": 12.0}
	if levels == 0 {
		return node
	}
	children := make([]any, fanout)
	for i := range children {
		children[i] = symbol(fmt.Sprintf("%s.%d", name, i), fanout, levels-1)
	}
	node["children"] = children
	return node
}

func TestSynthesize_List(t *testing.T) {
	p := Synthesize(locations(25), tool.References, DefaultLimits())

	if p.Shape != tool.ShapeList {
		t.Fatalf("Shape = %q, want list", p.Shape)
	}
	if len(p.List) != 10 {
		t.Fatalf("len(List) = %d, want 10", len(p.List))
	}
	if !reflect.DeepEqual(p.List[0], locations(1)[0]) {
		t.Errorf("first item not kept whole: %v", p.List[0])
	}
	if p.TruncatedAtDepth != nil {
		t.Errorf("TruncatedAtDepth = %v, want nil for list", *p.TruncatedAtDepth)
	}
}

func TestSynthesize_ListShorterThanLimit(t *testing.T) {
	p := Synthesize(locations(3), tool.Definition, DefaultLimits())
	if len(p.List) != 3 {
		t.Errorf("len(List) = %d, want 3", len(p.List))
	}
}

func TestSynthesize_ListFromObjectField(t *testing.T) {
	calls := make([]any, 15)
	for i := range calls {
		calls[i] = map[string]any{"from": map[string]any{"name": fmt.Sprintf("caller%d", i)}}
	}
	value := map[string]any{
		"target": map[string]any{"name": "getHover"},
		"calls":  calls,
	}

	p := Synthesize(value, tool.CallHierarchy, DefaultLimits())
	if len(p.List) != 10 {
		t.Fatalf("len(List) = %d, want 10", len(p.List))
	}
	first := p.List[0].(map[string]any)["from"].(map[string]any)["name"]
	if first != "caller0" {
		t.Errorf("first call = %v, want caller0", first)
	}
}

func TestSynthesize_SingleValueBecomesList(t *testing.T) {
	hover := map[string]any{"contents": "func Foo()"}
	p := Synthesize(hover, tool.Hover, DefaultLimits())
	if len(p.List) != 1 {
		t.Fatalf("len(List) = %d, want 1", len(p.List))
	}

	p = Synthesize(nil, tool.Hover, DefaultLimits())
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("nil preview = %s, want []", data)
	}
}

func TestSynthesize_TreeTruncatesAtDepth(t *testing.T) {
	nodes := make([]any, 20)
	for i := range nodes {
		nodes[i] = symbol(fmt.Sprintf("S%d", i), 2, 4)
	}

	p := Synthesize(nodes, tool.DocumentSymbols, Limits{Depth: 2, Items: 10, Samples: 3})
	if p.Shape != tool.ShapeTree {
		t.Fatalf("Shape = %q, want tree", p.Shape)
	}
	if p.TruncatedAtDepth == nil || *p.TruncatedAtDepth != 2 {
		t.Fatalf("TruncatedAtDepth = %v, want 2", p.TruncatedAtDepth)
	}
	if p.Tree.TotalItems != 20 {
		t.Errorf("TotalItems = %d, want 20", p.Tree.TotalItems)
	}
	if len(p.Tree.Items) != 10 {
		t.Fatalf("len(Items) = %d, want 10", len(p.Tree.Items))
	}

	top := p.Tree.Items[0].(map[string]any)
	children := top[ChildrenField].([]any)
	if len(children) != 2 {
		t.Fatalf("level 2 children = %d, want 2", len(children))
	}
	child := children[0].(map[string]any)
	if _, ok := child[ChildrenField]; ok {
		t.Error("level 2 node should have its children collapsed")
	}
	if child[OmittedField] != 2 {
		t.Errorf("%s = %v, want 2", OmittedField, child[OmittedField])
	}
	// 10 top nodes x 2 children x 2 omitted grandchildren
	if p.Tree.Omitted != 40 {
		t.Errorf("Omitted = %d, want 40", p.Tree.Omitted)
	}
}

func TestSynthesize_TreeDoesNotMutateInput(t *testing.T) {
	nodes := []any{symbol("Root", 3, 3)}
	before, _ := json.Marshal(nodes)

	Synthesize(nodes, tool.DocumentSymbols, Limits{Depth: 1, Items: 10})

	after, _ := json.Marshal(nodes)
	if string(before) != string(after) {
		t.Error("Synthesize modified its input")
	}
}

func TestSynthesize_TreeDepthFloor(t *testing.T) {
	p := Synthesize([]any{symbol("A", 1, 2)}, tool.DocumentSymbols, Limits{Depth: 0, Items: 10})
	if *p.TruncatedAtDepth != MinDepth {
		t.Errorf("TruncatedAtDepth = %d, want %d", *p.TruncatedAtDepth, MinDepth)
	}
}

func TestSynthesize_TreeJSON(t *testing.T) {
	p := Synthesize([]any{symbol("A", 1, 1)}, tool.DocumentSymbols, Limits{Depth: 1, Items: 10})
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["totalItems"] != 1.0 {
		t.Errorf("totalItems = %v, want 1", decoded["totalItems"])
	}
	if _, ok := decoded["items"].([]any); !ok {
		t.Errorf("items missing: %s", data)
	}
}

func TestSynthesize_Grouped(t *testing.T) {
	items := []any{
		map[string]any{"label": "Println", "kind": 3.0},
		map[string]any{"label": "Printf", "kind": 3.0},
		map[string]any{"label": "Stdout", "kind": 6.0},
		map[string]any{"label": "custom", "kind": "snippet"},
		map[string]any{"label": "nokind"},
	}

	p := Synthesize(items, tool.Completions, DefaultLimits())
	if p.Shape != tool.ShapeGrouped {
		t.Fatalf("Shape = %q, want grouped", p.Shape)
	}
	if p.Grouped.TotalCompletions != 5 {
		t.Errorf("TotalCompletions = %d, want 5", p.Grouped.TotalCompletions)
	}

	want := map[string]CategoryCount{
		"Function": {Count: 2},
		"Variable": {Count: 1},
		"snippet":  {Count: 1},
		"Other":    {Count: 1},
	}
	if !reflect.DeepEqual(p.Grouped.ByCategory, want) {
		t.Errorf("ByCategory = %v, want %v", p.Grouped.ByCategory, want)
	}
}

func TestSynthesize_GroupedCompletionList(t *testing.T) {
	value := map[string]any{
		"isIncomplete": false,
		"items":        []any{map[string]any{"label": "a", "kind": 14.0}},
	}
	p := Synthesize(value, tool.Completions, DefaultLimits())
	if p.Grouped.ByCategory["Keyword"].Count != 1 {
		t.Errorf("ByCategory = %v, want Keyword:1", p.Grouped.ByCategory)
	}
}

func searchMatches(files ...int) []any {
	var out []any
	for i, n := range files {
		for j := range n {
			out = append(out, map[string]any{
				"uri":  fmt.Sprintf("file:///f%d.go", i),
				"line": float64(j),
			})
		}
	}
	return out
}

func TestSynthesize_DistributionFirstMiddleLast(t *testing.T) {
	p := Synthesize(searchMatches(4, 1, 2, 5, 3), tool.TextSearch, DefaultLimits())
	if p.Shape != tool.ShapeDistribution {
		t.Fatalf("Shape = %q, want distribution", p.Shape)
	}

	want := []FileMatches{
		{File: "file:///f0.go", Matches: 4},
		{File: "file:///f2.go", Matches: 2},
		{File: "file:///f4.go", Matches: 3},
	}
	if !reflect.DeepEqual(p.Distribution.Distribution, want) {
		t.Errorf("Distribution = %v, want %v", p.Distribution.Distribution, want)
	}
}

func TestSynthesize_DistributionFewGroups(t *testing.T) {
	tests := []struct {
		name  string
		files []int
		want  int
	}{
		{"no matches", nil, 0},
		{"one file", []int{7}, 1},
		{"two files", []int{2, 3}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Synthesize(searchMatches(tt.files...), tool.TextSearch, DefaultLimits())
			if got := len(p.Distribution.Distribution); got != tt.want {
				t.Errorf("groups = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	inputs := []struct {
		kind  tool.Kind
		value any
	}{
		{tool.References, locations(40)},
		{tool.DocumentSymbols, []any{symbol("A", 3, 4), symbol("B", 2, 2)}},
		{tool.Completions, []any{map[string]any{"kind": 2.0}, map[string]any{"kind": 5.0}}},
		{tool.TextSearch, searchMatches(3, 3, 3, 3, 3, 3)},
	}

	for _, in := range inputs {
		a, _ := json.Marshal(Synthesize(in.value, in.kind, DefaultLimits()))
		b, _ := json.Marshal(Synthesize(in.value, in.kind, DefaultLimits()))
		if string(a) != string(b) {
			t.Errorf("%s preview not deterministic", in.kind)
		}
	}
}

func TestSuggest(t *testing.T) {
	ttl := 60 * time.Second

	t.Run("small result only retrieve hint", func(t *testing.T) {
		p := Synthesize(locations(3), tool.Hover, DefaultLimits())
		got := Suggest(tool.Hover, estimate.Metrics{ItemCount: 3}, p, ttl)
		if len(got) != 1 {
			t.Fatalf("Suggest() = %v, want 1 entry", got)
		}
		if !strings.Contains(got[0], "retrieve_buffer") || !strings.Contains(got[0], "60 seconds") {
			t.Errorf("last suggestion = %q", got[0])
		}
	})

	t.Run("large truncated tree", func(t *testing.T) {
		nodes := make([]any, 60)
		for i := range nodes {
			nodes[i] = symbol("S", 2, 3)
		}
		p := Synthesize(nodes, tool.DocumentSymbols, Limits{Depth: 1, Items: 10})
		m := estimate.Estimate(nodes)
		got := Suggest(tool.DocumentSymbols, m, p, ttl)

		if len(got) != 4 {
			t.Fatalf("Suggest() = %v, want 4 entries", got)
		}
		if !strings.HasPrefix(got[0], "Narrow the query") {
			t.Errorf("got[0] = %q", got[0])
		}
		if !strings.Contains(got[1], "depth 1") {
			t.Errorf("got[1] = %q", got[1])
		}
		if !strings.Contains(got[3], "retrieve_buffer") {
			t.Errorf("got[3] = %q", got[3])
		}
	})
}
