package tool

// Kind identifies the backend query a raw result came from.
// The gate uses it to pick a preview shape; it is never inferred from the
// result's runtime shape.
type Kind string

const (
	Hover           Kind = "hover"
	Definition      Kind = "definition"
	References      Kind = "references"
	Implementations Kind = "implementations"
	Completions     Kind = "completions"
	DocumentSymbols Kind = "document_symbols"
	TextSearch      Kind = "text_search"
	CallHierarchy   Kind = "call_hierarchy"
	Rename          Kind = "rename"
)

// Shape is the preview form used for a Kind.
type Shape string

const (
	ShapeList         Shape = "list"
	ShapeTree         Shape = "tree"
	ShapeGrouped      Shape = "grouped"
	ShapeDistribution Shape = "distribution"
)

// kindInfo describes how results of a Kind are previewed.
type kindInfo struct {
	shape Shape
	// listField names the object field holding the previewed list.
	// Empty means the result itself is the list.
	listField string
}

var kinds = map[Kind]kindInfo{
	Hover:           {shape: ShapeList},
	Definition:      {shape: ShapeList},
	References:      {shape: ShapeList},
	Implementations: {shape: ShapeList},
	Completions:     {shape: ShapeGrouped},
	DocumentSymbols: {shape: ShapeTree},
	TextSearch:      {shape: ShapeDistribution},
	CallHierarchy:   {shape: ShapeList, listField: "calls"},
	Rename:          {shape: ShapeList, listField: "changes"},
}

// All returns every known Kind in a stable order.
func All() []Kind {
	return []Kind{
		Hover, Definition, References, Implementations, Completions,
		DocumentSymbols, TextSearch, CallHierarchy, Rename,
	}
}

// Valid reports whether k is a known Kind.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Shape returns the preview shape for k. Unknown kinds preview as lists.
func (k Kind) Shape() Shape {
	if info, ok := kinds[k]; ok {
		return info.shape
	}
	return ShapeList
}

// ListField returns the field that holds the previewed list for
// object-shaped results, or "" when the result is itself a list.
func (k Kind) ListField() string {
	return kinds[k].listField
}
