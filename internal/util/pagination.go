package util

const DefaultPageSize = 10

// Calculate clamps page/size and returns the query offset and limit.
func Calculate(page, size int) (from, limit int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 10
	}
	from = (page - 1) * size
	return from, size
}

// TotalPages returns how many pages a result set of total rows occupies.
func TotalPages(total int64, size int) int64 {
	if size <= 0 {
		return 0
	}
	return (total + int64(size) - 1) / int64(size)
}

// PageInRange reports whether the requested page exists. Page 1 is always
// valid, even for an empty result set.
func PageInRange(page int, total int64, size int) bool {
	if page <= 1 {
		return true
	}
	return int64(page) <= TotalPages(total, size)
}
