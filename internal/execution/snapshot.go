package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"mes-execution-backend/internal/interval"
	"mes-execution-backend/internal/model"
	"mes-execution-backend/internal/workorder"
)

const snapshotDowntimeLimit = 200

// Snapshot is a read model of one work order.
type Snapshot struct {
	Order          *model.WorkOrder      `json:"order"`
	Results        []model.WorkResult    `json:"results"`
	Downtime       []model.DowntimeEvent `json:"downtime"`
	AllowedActions []workorder.Action    `json:"allowedActions"`
	// Variance is actual minus planned quantity.
	Variance decimal.Decimal `json:"variance"`
	// CompletionPercent is actual over planned quantity, in percent.
	CompletionPercent decimal.Decimal `json:"completionPercent"`
	// DowntimeMinutes is the linked downtime falling inside the order's actual
	// window. Open windows and open events are cut at the snapshot time.
	DowntimeMinutes int `json:"downtimeMinutes"`
}

func buildSnapshot(wo *model.WorkOrder, results []model.WorkResult, events []model.DowntimeEvent, now time.Time) *Snapshot {
	s := &Snapshot{
		Order:    wo,
		Results:  results,
		Downtime: events,
		Variance: wo.ActualQuantity.Sub(wo.PlannedQuantity),
	}
	if s.Results == nil {
		s.Results = []model.WorkResult{}
	}
	if s.Downtime == nil {
		s.Downtime = []model.DowntimeEvent{}
	}
	if wo.IsActive {
		s.AllowedActions = workorder.AllowedActions(wo.State)
	} else {
		s.AllowedActions = []workorder.Action{}
	}
	if wo.PlannedQuantity.IsPositive() {
		s.CompletionPercent = wo.ActualQuantity.Mul(decimal.NewFromInt(100)).Div(wo.PlannedQuantity).Round(2)
	}

	if wo.ActualStartDate == nil {
		return s
	}
	window := interval.Interval{Start: *wo.ActualStartDate}
	if wo.ActualEndDate != nil {
		window.End = *wo.ActualEndDate
	}
	var total time.Duration
	for _, ev := range events {
		span := interval.Interval{Start: ev.StartTime}
		if ev.EndTime != nil {
			span.End = *ev.EndTime
		}
		total += interval.Overlap(window, span, now)
	}
	s.DowntimeMinutes = int(total / time.Minute)
	return s
}
