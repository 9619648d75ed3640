package estimate

import (
	"bytes"
	"encoding/json"
)

// BytesPerToken is the divisor used to turn serialized bytes into a token
// estimate. It is a rough heuristic, not a tokenizer: callers must not
// treat TokenEstimate as exact.
const BytesPerToken = 4

// Metrics describes the size and shape of a JSON-like value.
type Metrics struct {
	// SizeBytes is the length of the value's canonical serialization
	SizeBytes int `json:"sizeBytes"`

	// TokenEstimate is SizeBytes / BytesPerToken
	TokenEstimate int `json:"tokenEstimate"`

	// MaxDepth is the deepest container nesting (scalar = 0, [] or {} = 1)
	MaxDepth int `json:"maxDepth"`

	// ItemCount is the number of array elements, counted transitively
	ItemCount int `json:"itemCount"`
}

// Canonical returns the canonical serialized form of v: compact JSON,
// no HTML escaping, no trailing newline.
func Canonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Tokens converts a byte size into a token estimate.
func Tokens(sizeBytes int) int {
	return sizeBytes / BytesPerToken
}

// Estimate measures v. It never fails: a value that cannot be serialized
// reports a zero size but its shape is still walked.
func Estimate(v any) Metrics {
	data, err := Canonical(v)
	if err != nil {
		data = nil
	}
	return Measure(v, data)
}

// Measure computes metrics for v given its canonical serialization data.
// Values that are not generic JSON shapes (structs, typed slices) are
// walked through their decoded form.
func Measure(v any, data []byte) Metrics {
	depth, items := walk(Normalize(v, data))
	return Metrics{
		SizeBytes:     len(data),
		TokenEstimate: Tokens(len(data)),
		MaxDepth:      depth,
		ItemCount:     items,
	}
}

// Normalize returns v as the generic shapes encoding/json decodes into
// (map[string]any, []any, float64, ...), decoding data when v holds
// typed values. data must be the canonical serialization of v.
func Normalize(v any, data []byte) any {
	if generic(v) || len(data) == 0 {
		return v
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return v
	}
	return decoded
}

// walk returns the nesting depth and transitive array element count of v.
func walk(v any) (depth, items int) {
	switch t := v.(type) {
	case []any:
		deepest := 0
		items = len(t)
		for _, e := range t {
			d, n := walk(e)
			items += n
			deepest = max(deepest, d)
		}
		return deepest + 1, items
	case map[string]any:
		deepest := 0
		for _, e := range t {
			d, n := walk(e)
			items += n
			deepest = max(deepest, d)
		}
		return deepest + 1, items
	default:
		return 0, 0
	}
}

// generic reports whether v is built only from the types encoding/json
// produces when decoding into an interface.
func generic(v any) bool {
	switch t := v.(type) {
	case nil, bool, float64, string, json.Number:
		return true
	case []any:
		for _, e := range t {
			if !generic(e) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, e := range t {
			if !generic(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
