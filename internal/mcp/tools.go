package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// positionOptions are the arguments shared by position-based queries.
func positionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("uri",
			mcp.Required(),
			mcp.Description("file:// URI of the document"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("0-based line"),
		),
		mcp.WithNumber("character",
			mcp.Required(),
			mcp.Description("0-based character offset within the line"),
		),
	}
}

const bufferedNote = " Results over the token budget come back as a buffered_response envelope with a preview and a bufferId; pass the bufferId to retrieve_buffer for the full result."

func positionTool(name, description string, extra ...mcp.ToolOption) mcp.Tool {
	opts := append([]mcp.ToolOption{mcp.WithDescription(description + bufferedNote)}, positionOptions()...)
	return mcp.NewTool(name, append(opts, extra...)...)
}

var hoverToolDef = positionTool("get_hover",
	"Get type information and documentation for the symbol at a position.")

var definitionToolDef = positionTool("get_definition",
	"Find where the symbol at a position is defined.")

var referencesToolDef = positionTool("get_references",
	"Find all references to the symbol at a position, including its declaration.")

var implementationsToolDef = positionTool("find_implementations",
	"Find implementations of the interface or abstract member at a position.")

var completionsToolDef = positionTool("get_completions",
	"List completion candidates at a position. Previews group candidates by kind.")

var documentSymbolsToolDef = mcp.NewTool("get_document_symbols",
	mcp.WithDescription("List the symbols of a document as a tree. Previews are cut at a nesting depth."+bufferedNote),
	mcp.WithString("uri",
		mcp.Required(),
		mcp.Description("file:// URI of the document"),
	),
)

var searchTextToolDef = mcp.NewTool("search_text",
	mcp.WithDescription("Literal, case-sensitive text search across the workspace. Previews sample matches from the first, middle and last files."+bufferedNote),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Text to search for"),
	),
	mcp.WithNumber("maxResults",
		mcp.Description("Maximum matches (default: 100)"),
	),
)

var callHierarchyToolDef = positionTool("get_call_hierarchy",
	"Find the callers or callees of the function at a position.",
	mcp.WithString("direction",
		mcp.Description("incoming (callers, default) or outgoing (callees)"),
		mcp.Enum("incoming", "outgoing"),
	),
)

var renameToolDef = positionTool("rename_symbol",
	"Preview the edits a rename would make, grouped by file. Nothing is written.",
	mcp.WithString("newName",
		mcp.Required(),
		mcp.Description("New name for the symbol"),
	),
)

var retrieveBufferToolDef = mcp.NewTool("retrieve_buffer",
	mcp.WithDescription("Return the full result behind a buffered_response envelope. Buffers expire about a minute after they are created; repeat the original query once expired."),
	mcp.WithString("bufferId",
		mcp.Required(),
		mcp.Description("bufferId from a buffered_response envelope"),
	),
)

var bufferStatsToolDef = mcp.NewTool("get_buffer_stats",
	mcp.WithDescription("Report live buffers: count, total size and age of the oldest."),
)

var sessionInfoToolDef = mcp.NewTool("get_session_info",
	mcp.WithDescription("Report whether the session is initialized and its id."),
)

var instructionsToolDef = mcp.NewTool("get_instructions",
	mcp.WithDescription("Return the usage guide for these tools as markdown."),
)
