package tools

import (
	"strconv"
	"strings"
)

// stringArg reads a string argument, trimming surrounding whitespace.
// Missing or non-string values read as "".
func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// intArg reads an integer argument. JSON decoding hands numbers over as
// float64; numeric strings are accepted too. Anything else is the default.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// sliceArg reads an array argument. Missing or non-array values read as nil.
func sliceArg(args map[string]any, key string) []any {
	if v, ok := args[key].([]any); ok {
		return v
	}
	return nil
}

// mapArg reads an object argument. Missing or non-object values read as nil.
func mapArg(args map[string]any, key string) map[string]any {
	if v, ok := args[key].(map[string]any); ok {
		return v
	}
	return nil
}
