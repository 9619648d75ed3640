package preview

// ChildrenField is the field holding a symbol's child nodes.
const ChildrenField = "children"

// OmittedField replaces ChildrenField on nodes whose subtree was collapsed.
// Its value is the number of direct children omitted.
const OmittedField = "omittedChildren"

// tree keeps the first n top-level nodes, collapsing every subtree below
// depth levels. Level 1 is the top level.
func tree(nodes []any, n, depth int) *Tree {
	n = max(0, min(n, len(nodes)))
	t := &Tree{
		Items:      make([]any, 0, n),
		TotalItems: len(nodes),
	}
	for _, node := range nodes[:n] {
		t.Items = append(t.Items, truncateNode(node, 1, depth, &t.Omitted))
	}
	return t
}

// truncateNode returns a copy of node with its subtree limited to depth.
// The input node is never modified.
func truncateNode(node any, level, depth int, omitted *int) any {
	obj, ok := node.(map[string]any)
	if !ok {
		return node
	}

	children, hasChildren := obj[ChildrenField].([]any)

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if k == ChildrenField && hasChildren {
			continue
		}
		out[k] = v
	}
	if !hasChildren {
		return out
	}

	if level >= depth {
		if len(children) > 0 {
			out[OmittedField] = len(children)
			*omitted += len(children)
		} else {
			out[ChildrenField] = []any{}
		}
		return out
	}

	kept := make([]any, len(children))
	for i, child := range children {
		kept[i] = truncateNode(child, level+1, depth, omitted)
	}
	out[ChildrenField] = kept
	return out
}
