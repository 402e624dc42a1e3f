package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ReportRequest narrows the report. Building selects one building; a
// non-nil Buildings restricts the report to that set.
type ReportRequest struct {
	Building  string
	Buildings []string
}

type ListFilter struct {
	Building  string
	Buildings []string
	UpToYear  int
	UpToMonth int
}

type Repository interface {
	// ListOpen returns invoices up to the given month that are not fully
	// paid, ordered by building, floor, apartment, resident and period.
	ListOpen(ctx context.Context, db *gorm.DB, filter ListFilter) ([]OpenInvoice, error)
}

type Service interface {
	Report(ctx context.Context, req ReportRequest) (Report, error)
}

var ErrOutOfScope = errors.New("building_out_of_scope")
