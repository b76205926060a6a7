package repository

// pastEnd reports whether page starts after the last of total rows.
// Compared in pages so a huge page number cannot overflow the offset.
func pastEnd(page, pageSize int, total int64) bool {
	if pageSize <= 0 {
		return true
	}
	pages := (total + int64(pageSize) - 1) / int64(pageSize)
	return int64(page-1) >= pages
}
