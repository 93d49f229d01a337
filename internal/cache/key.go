package cache

import (
	"sort"
	"strings"
)

// Key builds a lookup key such as "users|id=42|days=7". Params are written
// in sorted order so equal lookups always share a key; empty values are
// dropped.
func Key(namespace string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name, value := range params {
		if strings.TrimSpace(value) == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var builder strings.Builder
	baseLen := len(namespace) + len(names)*16
	if baseLen < 32 {
		baseLen = 32
	}
	builder.Grow(baseLen)
	builder.WriteString(strings.ToLower(namespace))
	for _, name := range names {
		builder.WriteString("|")
		builder.WriteString(strings.ToLower(name))
		builder.WriteString("=")
		builder.WriteString(strings.TrimSpace(params[name]))
	}
	return builder.String()
}
