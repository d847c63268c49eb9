package image

import (
	"encoding/json"
	"strings"

	"github.com/samber/lo"
)

const DataURIPrefix = "data:image/png;base64,"

// Normalize extracts displayable image references from an untyped upstream
// response. Entries under "images" come before entries under "output" and
// each list keeps its order. Elements are mapped as follows:
//
//   - falsy values are dropped
//   - strings starting with "http" are used as they are
//   - any other string is taken as bare base64 and wrapped in a PNG data URI
//   - objects use a truthy "url", else a truthy "b64_json" wrapped in a data URI
//   - everything else is dropped
func Normalize(payload any) []string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return []string{}
	}

	var items []any
	for _, key := range []string{"images", "output"} {
		if list, ok := obj[key].([]any); ok {
			items = append(items, list...)
		}
	}

	return lo.FilterMap(items, func(item any, _ int) (string, bool) {
		return reference(item)
	})
}

func reference(item any) (string, bool) {
	if !truthy(item) {
		return "", false
	}

	switch v := item.(type) {
	case string:
		if strings.HasPrefix(v, "http") {
			return v, true
		}
		return DataURIPrefix + v, true
	case map[string]any:
		if u := v["url"]; truthy(u) {
			return text(u), true
		}
		if b := v["b64_json"]; truthy(b) {
			return DataURIPrefix + text(b), true
		}
	}
	return "", false
}

// truthy follows JSON value truthiness: null, false, 0 and "" are false.
func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
