package metrics

// Pagination is the envelope every paginated endpoint returns. There is one
// implementation of the math on purpose: endpoints disagreeing about
// total_pages or has_next is a defect, not a style choice.
type Pagination struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewPagination builds the envelope from a total row count, a 1-indexed page
// number, and a page size. total_pages is ceil(total/page_size), 0 when
// page_size is 0.
func NewPagination(total, page, pageSize int) Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return Pagination{
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
