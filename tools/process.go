package tools

import (
	"encoding/json"
	"strings"

	"github.com/rohanthewiz/logger"
)

// ProcessToolResult unwraps one level of escaped JSON from a tool result and
// re-serializes it preserving key order. Tool-calling layers sometimes hand
// back a JSON string, or an object whose "output" field is itself an escaped
// JSON string; a single unwrap fixes both. The operation is a fixed point:
// applying it to its own output changes nothing.
func ProcessToolResult(result string) string {
	if strings.TrimSpace(result) == "" {
		return result
	}

	parsed, err := DecodeOrdered([]byte(strings.TrimSpace(result)))
	if err != nil {
		// Not JSON, leave untouched
		return result
	}

	switch v := parsed.(type) {
	case *OrderedMap:
		// An object whose "output" field holds an escaped JSON string gets
		// that one level unwrapped in place
		if outputVal, ok := v.Get("output"); ok {
			if outputStr, ok := outputVal.(string); ok {
				if inner, err := DecodeOrdered([]byte(outputStr)); err == nil {
					if _, isObj := inner.(*OrderedMap); isObj {
						v.Set("output", inner)
					}
				}
			}
		}
		return marshalOrFallback(v, result)

	case string:
		// The whole result was a JSON-encoded string; unwrap once when the
		// content is itself an object
		if inner, err := DecodeOrdered([]byte(v)); err == nil {
			if om, isObj := inner.(*OrderedMap); isObj {
				return marshalOrFallback(om, v)
			}
		}
		return v

	default:
		// Array, number, bool: re-serialize canonically
		return marshalOrFallback(v, result)
	}
}

func marshalOrFallback(v interface{}, fallback string) string {
	data, err := json.Marshal(v)
	if err != nil {
		logger.LogErr(err, "failed to re-serialize processed tool result")
		return fallback
	}
	return string(data)
}
