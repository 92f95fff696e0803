package forum

import (
	"errors"
	"strconv"
)

// ErrInvalidPage is returned by ParsePage for a page value that is not a
// number or lies outside the listing.
var ErrInvalidPage = errors.New("invalid page")

// TotalPages is the number of pages needed for count items. An empty
// listing still has one page.
func TotalPages(count, pageSize int) int {
	if pageSize < 1 || count <= 0 {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}

// LocatePage returns the page holding the n-th item of an ordered listing.
// With n the item count this is the page of the newest item, so a count
// that fills its last page exactly stays on that page.
func LocatePage(n, pageSize int) int {
	return TotalPages(n, pageSize)
}

// ParsePage reads a page query value. An empty value is page 1 and "last"
// is the final page.
func ParsePage(raw string, count, pageSize int) (int, error) {
	total := TotalPages(count, pageSize)
	if raw == "" {
		return 1, nil
	}
	if raw == "last" {
		return total, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 || page > total {
		return 0, ErrInvalidPage
	}
	return page, nil
}

// PaginationData holds all the necessary info for rendering pagination controls.
type PaginationData struct {
	CurrentPage int
	TotalPages  int
	NextPage    int
	PrevPage    int
	HasNext     bool
	HasPrev     bool
	Pages       []int
}

// Paginated reports whether more than one page exists.
func (p PaginationData) Paginated() bool {
	return p.TotalPages > 1
}

func NewPaginationData(page, count, pageSize int) PaginationData {
	totalPages := TotalPages(count, pageSize)
	pages := make([]int, 0, totalPages)
	for i := 1; i <= totalPages; i++ {
		pages = append(pages, i)
	}
	return PaginationData{
		CurrentPage: page,
		TotalPages:  totalPages,
		NextPage:    page + 1,
		PrevPage:    page - 1,
		HasNext:     page < totalPages,
		HasPrev:     page > 1,
		Pages:       pages,
	}
}
