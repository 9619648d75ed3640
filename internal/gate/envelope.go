package gate

import "github.com/hpungsan/lspgate/internal/preview"

// EnvelopeType tags a buffered response.
const EnvelopeType = "buffered_response"

// Envelope replaces a result that exceeded the token budget.
type Envelope struct {
	Type        string          `json:"type"`
	Metadata    Metadata        `json:"metadata"`
	Preview     preview.Preview `json:"preview"`
	Suggestions []string        `json:"suggestions"`
	BufferID    string          `json:"bufferId"`
}

// Metadata describes the full result held in the buffer.
type Metadata struct {
	TotalTokens      int  `json:"totalTokens"`
	TotalBytes       int  `json:"totalBytes"`
	ItemCount        int  `json:"itemCount"`
	MaxDepth         int  `json:"maxDepth"`
	WouldExceedLimit bool `json:"wouldExceedLimit"`
	TruncatedAtDepth *int `json:"truncatedAtDepth"`
}
