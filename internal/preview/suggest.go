package preview

import (
	"fmt"
	"time"

	"github.com/hpungsan/lspgate/internal/estimate"
	"github.com/hpungsan/lspgate/internal/tool"
)

// NarrowThreshold is the item count above which narrowing is suggested.
const NarrowThreshold = 50

// kindHints are refinement hints specific to a tool kind.
var kindHints = map[tool.Kind]string{
	tool.TextSearch:      "Use a more specific search pattern or a lower maxResults.",
	tool.Completions:     "Type more characters before requesting completions to filter the list.",
	tool.References:      "Filter references to a single file or directory.",
	tool.Implementations: "Query the implementation in a specific package instead of the interface.",
	tool.Definition:      "Request the definition from a more specific position.",
	tool.DocumentSymbols: "Request a specific symbol by name, or query a smaller file.",
	tool.CallHierarchy:   "Trace one caller at a time by querying its position.",
	tool.Rename:          "Review the edits file by file before applying the rename.",
}

// Suggest returns advisory strings for a buffered result. The rules are
// simple thresholds, so the same inputs always produce the same list.
func Suggest(kind tool.Kind, m estimate.Metrics, p Preview, ttl time.Duration) []string {
	var out []string

	if m.ItemCount > NarrowThreshold {
		out = append(out, fmt.Sprintf("Narrow the query: the full result holds %d items.", m.ItemCount))
	}
	if p.Tree != nil && p.Tree.Omitted > 0 && p.TruncatedAtDepth != nil {
		out = append(out, fmt.Sprintf(
			"Children below depth %d were collapsed (%d omitted); request a specific symbol by name for its full subtree.",
			*p.TruncatedAtDepth, p.Tree.Omitted))
	}
	if hint, ok := kindHints[kind]; ok {
		out = append(out, hint)
	}

	out = append(out, fmt.Sprintf(
		"Call retrieve_buffer with this bufferId within %d seconds for the full result.",
		int(ttl/time.Second)))
	return out
}
