package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Params holds pagination parameters extracted from a request.
// Pages are 1-based; PerPage is clamped to [1, MaxPerPage].
type Params struct {
	Page    int
	PerPage int
}

// FromContext extracts pagination parameters from the echo context.
// `_count` sets the page size (non-numeric input falls back to the default),
// `_page` selects the page, `_offset` is accepted as a row-offset fallback.
func FromContext(c echo.Context) Params {
	perPage, err := strconv.Atoi(c.QueryParam("_count"))
	if err != nil || perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	page, _ := strconv.Atoi(c.QueryParam("_page"))
	if page <= 0 {
		page = 1
		if offset, err := strconv.Atoi(c.QueryParam("_offset")); err == nil && offset > 0 {
			page = offset/perPage + 1
		}
	}

	return Params{Page: page, PerPage: perPage}
}

// Offset returns the row offset for the current page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// PageInfo describes the position of a page within the full result set.
type PageInfo struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
}

// Response wraps one page of results with its total count and page info.
type Response struct {
	Data     interface{} `json:"data"`
	Total    int         `json:"total"`
	PageInfo PageInfo    `json:"page_info"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	last := total / p.PerPage
	if total%p.PerPage != 0 || last == 0 {
		last++
	}
	return &Response{
		Data:  data,
		Total: total,
		PageInfo: PageInfo{
			CurrentPage: p.Page,
			LastPage:    last,
			PerPage:     p.PerPage,
		},
	}
}
