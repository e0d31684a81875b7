package storage

import "encoding/json"

// encodeJSON serializes a free-form metadata/context map to a JSON string
// column, empty string when nil. A map that fails to marshal (for example
// one holding a NaN or a channel) is also stored as an empty string.
func encodeJSON(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	b, _ := json.Marshal(m)
	return string(b)
}

// decodeJSON parses a JSON string column back into a map. A malformed or
// empty value degrades to nil rather than propagating a scan error — context
// metadata is diagnostic, never load-bearing for correctness.
func decodeJSON(s string) map[string]any {
	if s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}
