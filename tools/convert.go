package tools

import (
	"strings"

	"github.com/rohanthewiz/logger"
)

// ParseArguments parses a tool-call argument string into an ordered map.
// Malformed JSON yields an empty map; a non-object value is wrapped under
// the "value" key.
func ParseArguments(arguments string) *OrderedMap {
	if strings.TrimSpace(arguments) == "" {
		return NewOrderedMap()
	}

	parsed, err := DecodeOrdered([]byte(arguments))
	if err != nil {
		logger.Warn("Failed to parse tool arguments as JSON, using empty map", "arguments", arguments)
		return NewOrderedMap()
	}

	if om, ok := parsed.(*OrderedMap); ok {
		return om
	}

	wrapped := NewOrderedMap()
	wrapped.Set("value", parsed)
	return wrapped
}

// RequiredFields extracts required parameter names from a JSON schema.
// A oneOf schema contributes the union of required fields across variants.
func RequiredFields(schema map[string]interface{}) []string {
	if schema == nil {
		return nil
	}

	if oneOf, ok := schema["oneOf"].([]interface{}); ok {
		var all []string
		for _, variant := range oneOf {
			if vm, ok := variant.(map[string]interface{}); ok {
				all = append(all, requiredList(vm)...)
			}
		}
		return all
	}

	return requiredList(schema)
}

func requiredList(schema map[string]interface{}) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// FillRequired adds an empty string for every required field the arguments
// are missing, so tools with strict decoders still receive all keys
func FillRequired(params *OrderedMap, required []string) *OrderedMap {
	for _, name := range required {
		if !params.Has(name) {
			params.Set(name, "")
		}
	}
	return params
}
