package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkResult is one production event recorded against a work order. Reversed
// results stay in the table; their quantities no longer count.
type WorkResult struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	TenantID    string `json:"tenantId" gorm:"size:64;not null;index:idx_work_result_tenant_order,priority:1"`
	WorkOrderID string `json:"workOrderId" gorm:"size:36;not null;index:idx_work_result_tenant_order,priority:2"`

	ResultDate     time.Time       `json:"resultDate" gorm:"not null"`
	Quantity       decimal.Decimal `json:"quantity" gorm:"type:decimal(12,4);not null"`
	GoodQuantity   decimal.Decimal `json:"goodQuantity" gorm:"type:decimal(12,4);not null"`
	DefectQuantity decimal.Decimal `json:"defectQuantity" gorm:"type:decimal(12,4);not null"`

	WorkStartTime   time.Time `json:"workStartTime" gorm:"not null"`
	WorkEndTime     time.Time `json:"workEndTime" gorm:"not null"`
	DurationMinutes int       `json:"durationMinutes" gorm:"not null"`

	WorkerID     *string `json:"workerId,omitempty" gorm:"size:64"`
	DefectReason string  `json:"defectReason,omitempty" gorm:"size:255"`
	Remarks      string  `json:"remarks,omitempty" gorm:"type:text"`

	IsReversed bool       `json:"isReversed" gorm:"not null;default:false"`
	ReversedAt *time.Time `json:"reversedAt,omitempty"`
	ReversedBy string     `json:"reversedBy,omitempty" gorm:"size:64"`

	CreatedBy string    `json:"createdBy" gorm:"size:64;not null"`
	UpdatedBy string    `json:"updatedBy" gorm:"size:64"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null"`
}

// Clone returns a deep copy.
func (r *WorkResult) Clone() *WorkResult {
	c := *r
	c.WorkerID = cloneString(r.WorkerID)
	c.ReversedAt = cloneTime(r.ReversedAt)
	return &c
}
