package Tasks

import (
	"context"
	"fmt"

	"Workbench/Models"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// NewPagination clamps page/limit and derives the page count.
func NewPagination(page, limit int, total int64) Pagination {
	page, limit = NormalizePage(page, limit)
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + int64(limit) - 1) / int64(limit),
	}
}

// NormalizePage applies the defaults used by every paginated listing.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

type CarriedForwardPage struct {
	Tasks      []Models.Task `json:"tasks"`
	Pagination Pagination    `json:"pagination"`
}

// ListCarriedForward is the read-only tenant view of carried tasks,
// most recently updated first.
func ListCarriedForward(ctx context.Context, reader CarriedForwardReader, filter CarriedForwardFilter) (*CarriedForwardPage, error) {
	if filter.CompanyID == "" {
		return nil, fmt.Errorf("carried-forward listing requires a company")
	}
	filter.Page, filter.Limit = NormalizePage(filter.Page, filter.Limit)

	tasks, total, err := reader.FindCarriedForwardTasks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if tasks == nil {
		tasks = []Models.Task{}
	}
	return &CarriedForwardPage{
		Tasks:      tasks,
		Pagination: NewPagination(filter.Page, filter.Limit, total),
	}, nil
}
