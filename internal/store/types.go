package store

import (
	"errors"

	"mes-execution-backend/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist in the tenant.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a compare-and-swap lost against a
	// concurrent writer.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate is returned when a uniqueness invariant would be violated.
	ErrDuplicate = errors.New("duplicate record")
)

// WorkOrderCommit is one atomic write of a work order aggregate: the order row
// guarded by its expected version plus the result rows created or changed with it.
type WorkOrderCommit struct {
	Order           *model.WorkOrder
	ExpectedVersion int64
	NewResults      []*model.WorkResult
	UpdatedResults  []*model.WorkResult
}

// WorkOrderListParams filters work order listings.
type WorkOrderListParams struct {
	State     model.WorkOrderState
	ProductID string
	Keyword   string
	Active    *bool
	Page      int
	Size      int
}

// DowntimeListParams filters downtime listings.
type DowntimeListParams struct {
	EquipmentID string
	WorkOrderID string
	OpenOnly    bool
	Page        int
	Size        int
}

// NormalizePage returns the page and size a listing actually uses: page from 1,
// size 20 by default and at most 200.
func NormalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 200 {
		size = 200
	}
	return page, size
}
