package resource

import (
	"net/url"
	"strconv"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Page is the limit-offset envelope returned by list actions.
type Page struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []any   `json:"results"`
}

// pageBounds parses limit and offset. Invalid values fall back to defaults.
func pageBounds(query url.Values) (limit, offset int) {
	limit = DefaultLimit
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, MaxLimit)
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// paginate slices items and builds next/previous links relative to base.
func paginate[T any](items []T, base *url.URL) ([]T, Page) {
	query := base.Query()
	limit, offset := pageBounds(query)
	count := len(items)
	page := Page{Count: count, Results: []any{}}

	start := min(offset, count)
	end := min(start+limit, count)
	if end < count {
		page.Next = pageLink(base, limit, end)
	}
	if start > 0 {
		page.Previous = pageLink(base, limit, max(start-limit, 0))
	}
	return items[start:end], page
}

func pageLink(base *url.URL, limit, offset int) *string {
	link := *base
	query := link.Query()
	query.Set("limit", strconv.Itoa(limit))
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	} else {
		query.Del("offset")
	}
	link.RawQuery = query.Encode()
	value := link.String()
	return &value
}
