package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkOrderState is the lifecycle state of a work order.
type WorkOrderState string

const (
	StatePlanned    WorkOrderState = "PLANNED"
	StateInProgress WorkOrderState = "IN_PROGRESS"
	StateCompleted  WorkOrderState = "COMPLETED"
	StateClosed     WorkOrderState = "CLOSED"
	StateCancelled  WorkOrderState = "CANCELLED"
)

// Terminal reports whether no further results may be recorded in this state.
func (s WorkOrderState) Terminal() bool {
	return s == StateCompleted || s == StateClosed || s == StateCancelled
}

// Priority of a work order.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// WorkOrder is a planned production run.
type WorkOrder struct {
	ID          string         `json:"id" gorm:"primaryKey;size:36"`
	TenantID    string         `json:"tenantId" gorm:"size:64;not null;uniqueIndex:idx_work_order_tenant_number,priority:1;index"`
	OrderNumber string         `json:"orderNumber" gorm:"size:64;not null;uniqueIndex:idx_work_order_tenant_number,priority:2"`
	ProductID   string         `json:"productId" gorm:"size:64;not null;index"`
	ProcessID   string         `json:"processId" gorm:"size:64;not null"`
	OperatorID  *string        `json:"operatorId,omitempty" gorm:"size:64"`
	Priority    Priority       `json:"priority" gorm:"size:16;not null;default:MEDIUM"`
	State       WorkOrderState `json:"state" gorm:"size:20;not null;default:PLANNED;index"`

	PlannedQuantity decimal.Decimal `json:"plannedQuantity" gorm:"type:decimal(12,4);not null"`
	ActualQuantity  decimal.Decimal `json:"actualQuantity" gorm:"type:decimal(12,4);not null;default:0"`
	GoodQuantity    decimal.Decimal `json:"goodQuantity" gorm:"type:decimal(12,4);not null;default:0"`
	DefectQuantity  decimal.Decimal `json:"defectQuantity" gorm:"type:decimal(12,4);not null;default:0"`

	PlannedStartDate time.Time  `json:"plannedStartDate" gorm:"not null"`
	PlannedEndDate   time.Time  `json:"plannedEndDate" gorm:"not null"`
	ActualStartDate  *time.Time `json:"actualStartDate,omitempty"`
	ActualEndDate    *time.Time `json:"actualEndDate,omitempty"`

	Remarks   string    `json:"remarks,omitempty" gorm:"type:text"`
	IsActive  bool      `json:"isActive" gorm:"not null;default:true"`
	Version   int64     `json:"version" gorm:"not null;default:1"`
	CreatedBy string    `json:"createdBy" gorm:"size:64;not null"`
	UpdatedBy string    `json:"updatedBy" gorm:"size:64"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null"`
}

// Clone returns a deep copy so a mutation can be prepared without touching the
// loaded aggregate.
func (w *WorkOrder) Clone() *WorkOrder {
	c := *w
	c.OperatorID = cloneString(w.OperatorID)
	c.ActualStartDate = cloneTime(w.ActualStartDate)
	c.ActualEndDate = cloneTime(w.ActualEndDate)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
