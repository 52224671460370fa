package resource

import (
	"net/url"
	"strconv"
	"strings"
)

// Filter reports whether item matches the raw query value.
type Filter[T any] func(item T, value string) bool

// IContains matches when the field contains value, ignoring case.
func IContains[T any](field func(T) string) Filter[T] {
	return func(item T, value string) bool {
		return strings.Contains(strings.ToLower(field(item)), strings.ToLower(value))
	}
}

// Exact matches when the field equals value.
func Exact[T any](field func(T) string) Filter[T] {
	return func(item T, value string) bool {
		return field(item) == value
	}
}

// Bool matches a boolean field against true/false style values. Unparseable
// values match nothing.
func Bool[T any](field func(T) bool) Filter[T] {
	return func(item T, value string) bool {
		switch strings.ToLower(value) {
		case "1", "yes", "on":
			value = "true"
		case "0", "no", "off":
			value = "false"
		}
		parsed, err := strconv.ParseBool(value)
		return err == nil && field(item) == parsed
	}
}

func applyFilters[T any](items []T, filters map[string]Filter[T], query url.Values) []T {
	if len(filters) == 0 {
		return items
	}
	out := items[:0:0]
outer:
	for _, item := range items {
		for name, filter := range filters {
			value := strings.TrimSpace(query.Get(name))
			if value == "" {
				continue
			}
			if !filter(item, value) {
				continue outer
			}
		}
		out = append(out, item)
	}
	return out
}

// parseExpand returns the requested expansions limited to allowed.
func parseExpand(query url.Values, allowed []string) map[string]bool {
	if len(allowed) == 0 {
		return nil
	}
	known := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		known[name] = true
	}
	expand := make(map[string]bool)
	for _, raw := range query["expand"] {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if known[name] {
				expand[name] = true
			}
		}
	}
	return expand
}
