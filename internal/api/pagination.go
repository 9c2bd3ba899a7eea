package api

import (
	"net/http"

	"github.com/ignite/dispatch/internal/pkg/httputil"
)

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Limit  int
	Offset int
}

// PaginatedResponse wraps list data with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

type PaginationMeta struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// ParsePagination reads limit and offset, capping limit at maxLimit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	limit := httputil.QueryInt(r, "limit", defaultLimit)
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return PaginationParams{Limit: limit, Offset: httputil.QueryInt(r, "offset", 0)}
}

func NewPaginatedResponse(data interface{}, p PaginationParams, total int) PaginatedResponse {
	return PaginatedResponse{
		Data: data,
		Pagination: PaginationMeta{
			Limit:   p.Limit,
			Offset:  p.Offset,
			Total:   total,
			HasMore: p.Offset+p.Limit < total,
		},
	}
}
