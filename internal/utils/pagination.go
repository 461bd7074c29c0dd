// Package utils holds small helpers shared by the HTTP and service layers.
package utils

import "strconv"

// Page size bounds for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a bounded, 1-based page request.
type Page struct {
	Number int
	Size   int
}

// NewPage bounds a page request. Numbers start at 1; a non-positive size
// means DefaultPageSize and sizes above MaxPageSize are capped.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	return Page{Number: number, Size: Clamp(size, 1, MaxPageSize)}
}

// ParsePage reads raw "page" and "page_size" query values.
func ParsePage(number, size string) Page {
	return NewPage(QueryInt(number, 1), QueryInt(size, DefaultPageSize))
}

// Offset is the number of items before this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages is the number of pages of this size needed for total items.
func (p Page) TotalPages(total int64) int {
	if p.Size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

// HasNext reports whether a page follows this one.
func (p Page) HasNext(total int64) bool { return p.Number < p.TotalPages(total) }

// QueryInt parses s, returning def when s is empty or not an integer.
func QueryInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds n to [lo, hi].
func Clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}
