package lms

import (
	"context"
	"encoding/json"
	"strconv"
)

// Transport sends one request to the server. playerID is empty for
// server-level queries such as "players".
type Transport interface {
	Request(ctx context.Context, playerID string, command []string) (Result, error)
}

// Result is the decoded reply of a request. Both transports produce the same
// shape: scalar fields as strings or numbers, loops as []any of objects.
type Result map[string]any

// Str returns the field as a string, formatting numbers if needed.
func (r Result) Str(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Int returns the field as an int, or 0.
func (r Result) Int(key string) int {
	switch v := r[key].(type) {
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

// Object returns a nested object field.
func (r Result) Object(key string) Result {
	switch v := r[key].(type) {
	case map[string]any:
		return Result(v)
	case Result:
		return v
	default:
		return nil
	}
}

// Loop returns the records of a loop field such as "players_loop".
func (r Result) Loop(key string) []Result {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Result, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case map[string]any:
			out = append(out, Result(v))
		case Result:
			out = append(out, v)
		}
	}
	return out
}
