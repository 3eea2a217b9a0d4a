// Package utils holds the pagination arithmetic shared by the HTTP handlers,
// the history service and the CLI.
package utils

import "strconv"

// Pagination bounds for history listings.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// AtoiDefault parses s, returning def when it is empty or not an integer.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage bounds page to >= 1 and pageSize to [1, MaxPageSize]. A
// non-positive pageSize becomes DefaultPageSize.
func ClampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// Offset is the row offset of the first item on page.
func Offset(page, pageSize int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * pageSize
}

// TotalPages is ceil(total / pageSize); zero when pageSize is not positive.
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
