package workresult

import (
	"time"

	"github.com/shopspring/decimal"

	"mes-execution-backend/internal/model"
	"mes-execution-backend/internal/workorder"
)

// RecordRequest carries one production event against a work order.
type RecordRequest struct {
	WorkOrderID     string          `json:"workOrderId"`
	ResultDate      *time.Time      `json:"resultDate,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	GoodQuantity    decimal.Decimal `json:"goodQuantity"`
	DefectQuantity  decimal.Decimal `json:"defectQuantity"`
	WorkStartTime   time.Time       `json:"workStartTime"`
	WorkEndTime     time.Time       `json:"workEndTime"`
	DurationMinutes *int            `json:"durationMinutes,omitempty"`
	WorkerID        *string         `json:"workerId,omitempty"`
	DefectReason    string          `json:"defectReason,omitempty"`
	Remarks         string          `json:"remarks,omitempty"`
}

// Patch holds the fields of a result to change. Nil fields are kept. When good
// or defect changes without a quantity, the quantity is derived from them.
type Patch struct {
	ResultDate      *time.Time       `json:"resultDate,omitempty"`
	Quantity        *decimal.Decimal `json:"quantity,omitempty"`
	GoodQuantity    *decimal.Decimal `json:"goodQuantity,omitempty"`
	DefectQuantity  *decimal.Decimal `json:"defectQuantity,omitempty"`
	WorkStartTime   *time.Time       `json:"workStartTime,omitempty"`
	WorkEndTime     *time.Time       `json:"workEndTime,omitempty"`
	DurationMinutes *int             `json:"durationMinutes,omitempty"`
	WorkerID        *string          `json:"workerId,omitempty"`
	DefectReason    *string          `json:"defectReason,omitempty"`
	Remarks         *string          `json:"remarks,omitempty"`
}

// Recorded is a committed result together with the order it was applied to.
type Recorded struct {
	Result   *model.WorkResult   `json:"result"`
	Order    *model.WorkOrder    `json:"order"`
	Warnings []workorder.Warning `json:"warnings,omitempty"`
}
