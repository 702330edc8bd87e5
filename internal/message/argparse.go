package message

import (
	"encoding/json"

	"github.com/tidwall/jsonc"
)

// ParseArguments decodes a finalized tool call's accumulated argument
// string. It is a two-stage parse: strict JSON first, then a permissive
// pass that normalizes JSONC-style sloppiness (comments, trailing commas)
// before retrying. A string that survives neither stage yields an empty
// parameter set with ok=false; argument parse failure never aborts a
// session.
func ParseArguments(raw string) (map[string]any, bool) {
	if raw == "" {
		return map[string]any{}, false
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil && args != nil {
		return args, true
	}

	normalized := jsonc.ToJSON([]byte(raw))
	args = nil
	if err := json.Unmarshal(normalized, &args); err == nil && args != nil {
		return args, true
	}

	return map[string]any{}, false
}
