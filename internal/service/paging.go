package service

import "math"

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// (maxPage-1)*maxPageSize still fits in an int
	maxPage = math.MaxInt / maxPageSize
)

// normalizePaging clamps page to [1, maxPage] and pageSize to [1, maxPageSize].
// A zero pageSize means "not given" and falls back to the default.
func normalizePaging(page, pageSize int) (int, int) {
	switch {
	case page < 1:
		page = 1
	case page > maxPage:
		page = maxPage
	}
	switch {
	case pageSize == 0:
		pageSize = defaultPageSize
	case pageSize < 1:
		pageSize = 1
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
