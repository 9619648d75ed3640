package preview

// completionKinds maps LSP CompletionItemKind values to category names.
var completionKinds = map[int]string{
	1:  "Text",
	2:  "Method",
	3:  "Function",
	4:  "Constructor",
	5:  "Field",
	6:  "Variable",
	7:  "Class",
	8:  "Interface",
	9:  "Module",
	10: "Property",
	11: "Unit",
	12: "Value",
	13: "Enum",
	14: "Keyword",
	15: "Snippet",
	16: "Color",
	17: "File",
	18: "Reference",
	19: "Folder",
	20: "EnumMember",
	21: "Constant",
	22: "Struct",
	23: "Event",
	24: "Operator",
	25: "TypeParameter",
}

// otherCategory holds completions without a recognizable kind.
const otherCategory = "Other"

// completionItems accepts a plain item list or an LSP CompletionList.
func completionItems(value any) []any {
	if obj, ok := value.(map[string]any); ok {
		if items, ok := obj["items"].([]any); ok {
			return items
		}
	}
	return asList(value)
}

// grouped counts completions per category.
func grouped(items []any) *Grouped {
	g := &Grouped{
		TotalCompletions: len(items),
		ByCategory:       make(map[string]CategoryCount),
	}
	for _, item := range items {
		name := category(item)
		c := g.ByCategory[name]
		c.Count++
		g.ByCategory[name] = c
	}
	return g
}

// category returns the display category of one completion item.
func category(item any) string {
	obj, ok := item.(map[string]any)
	if !ok {
		return otherCategory
	}
	switch k := obj["kind"].(type) {
	case float64:
		if name, ok := completionKinds[int(k)]; ok {
			return name
		}
	case int:
		if name, ok := completionKinds[k]; ok {
			return name
		}
	case string:
		if k != "" {
			return k
		}
	}
	return otherCategory
}
