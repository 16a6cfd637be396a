package commandstructure

import (
	"strings"
)

// GetIntParam safely extracts an int parameter from the params map.
// YAML decodes integers as int, JSON as float64; both are accepted.
func GetIntParam(params map[string]any, key string, defaultValue int) int {
	if val, ok := params[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return defaultValue
}

// GetBoolParam safely extracts a bool parameter from the params map.
// Accepts native booleans and the strings "true"/"false" (case-insensitive).
func GetBoolParam(params map[string]any, key string, defaultValue bool) bool {
	if val, ok := params[key]; ok {
		switch v := val.(type) {
		case bool:
			return v
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true
			case "false":
				return false
			}
		}
	}
	return defaultValue
}
