package workorder

import (
	"time"

	"github.com/shopspring/decimal"

	"mes-execution-backend/internal/model"
	"mes-execution-backend/internal/quantity"
)

// Warning codes.
const (
	WarningQuantityVariance = "QUANTITY_VARIANCE"
	WarningOverProduction   = "OVER_PRODUCTION"
)

// Warning is a non-fatal finding returned alongside a successful operation.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Outcome is the committed order plus any warnings.
type Outcome struct {
	Order    *model.WorkOrder `json:"order"`
	Warnings []Warning        `json:"warnings,omitempty"`
}

// CreateRequest carries the fields of a new work order.
type CreateRequest struct {
	OrderNumber      string          `json:"orderNumber"`
	ProductID        string          `json:"productId"`
	ProcessID        string          `json:"processId"`
	PlannedQuantity  decimal.Decimal `json:"plannedQuantity"`
	PlannedStartDate time.Time       `json:"plannedStartDate"`
	PlannedEndDate   time.Time       `json:"plannedEndDate"`
	OperatorID       *string         `json:"operatorId,omitempty"`
	Priority         model.Priority  `json:"priority"`
	Remarks          string          `json:"remarks,omitempty"`
}

// ResultChange is a quantity delta on a work order together with the result
// rows it stems from. Exactly one of New and Updated is set.
type ResultChange struct {
	WorkOrderID string
	Delta       quantity.Triple
	// New is a result row to insert.
	New *model.WorkResult
	// Updated is the new state of an existing result row, and Previous the row
	// as it was read before the change was prepared.
	Updated  *model.WorkResult
	Previous *model.WorkResult
}

// Policy holds the configurable rules of the lifecycle manager.
type Policy struct {
	Tolerance              quantity.Tolerance
	ReverseResultsOnCancel bool
	PersistTimeout         time.Duration
}
