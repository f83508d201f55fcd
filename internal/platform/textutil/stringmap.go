// Package textutil cleans free-form text maps such as notification template variables.
package textutil

import "strings"

// NormalizeStringMap returns a copy with keys and values trimmed. Entries whose key is blank after
// trimming are dropped, and nil is returned when nothing is left.
func NormalizeStringMap(values map[string]string) map[string]string {
	var out map[string]string
	for key, value := range values {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(values))
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}
