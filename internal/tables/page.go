package tables

import (
	"math"
	"net/url"
	"strconv"

	"github.com/koustreak/tablegate/internal/database"
	"github.com/koustreak/tablegate/internal/errs"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
	MaxLimit     = 500
)

// PageRequest selects one page of a table listing.
type PageRequest struct {
	Page   int
	Limit  int
	Search string
}

// ParsePageRequest reads page, limit and search from query parameters,
// applying defaults for absent values.
func ParsePageRequest(q url.Values) (PageRequest, error) {
	req := PageRequest{Page: DefaultPage, Limit: DefaultLimit, Search: q.Get("search")}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, errs.Newf(errs.ErrKindInvalidInput, "page must be an integer, got %q", v)
		}
		req.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, errs.Newf(errs.ErrKindInvalidInput, "limit must be an integer, got %q", v)
		}
		req.Limit = n
	}

	return req, req.Validate()
}

// Validate enforces page >= 1 and 1 <= limit <= MaxLimit, and that the
// page's offset fits in an int.
func (r PageRequest) Validate() error {
	if r.Page < 1 {
		return errs.Newf(errs.ErrKindInvalidInput, "page must be >= 1, got %d", r.Page)
	}
	if r.Limit < 1 || r.Limit > MaxLimit {
		return errs.Newf(errs.ErrKindInvalidInput, "limit must be between 1 and %d, got %d", MaxLimit, r.Limit)
	}
	if r.Page-1 > math.MaxInt/r.Limit {
		return errs.Newf(errs.ErrKindInvalidInput, "page %d is too large for limit %d", r.Page, r.Limit)
	}
	return nil
}

// Offset is the number of rows skipped before this page.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.Limit
}

// Pagination is the metadata half of the listing envelope.
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int64 `json:"pages"`
}

// NewPagination echoes page and limit and computes pages = ceil(total/limit).
func NewPagination(total int64, page, limit int) Pagination {
	var pages int64
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return Pagination{Total: total, Page: page, Limit: limit, Pages: pages}
}

// Page is the listing envelope: {data, pagination}.
type Page struct {
	Data       []database.Record `json:"data"`
	Pagination Pagination        `json:"pagination"`
}
