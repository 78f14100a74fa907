package downtime

import (
	"time"

	"mes-execution-backend/internal/model"
)

// OpenRequest starts a downtime event on a piece of equipment.
type OpenRequest struct {
	EquipmentID       string             `json:"equipmentId"`
	DowntimeCode      string             `json:"downtimeCode"`
	DowntimeType      model.DowntimeType `json:"downtimeType"`
	Category          string             `json:"category,omitempty"`
	StartTime         time.Time          `json:"startTime"`
	WorkOrderID       *string            `json:"workOrderId,omitempty"`
	OperationID       *string            `json:"operationId,omitempty"`
	ResponsiblePerson string             `json:"responsiblePerson,omitempty"`
	Cause             string             `json:"cause,omitempty"`
	Remarks           string             `json:"remarks,omitempty"`
}

// ResolveRequest ends an open downtime event.
type ResolveRequest struct {
	EndTime          time.Time `json:"endTime"`
	Countermeasure   string    `json:"countermeasure,omitempty"`
	PreventiveAction string    `json:"preventiveAction,omitempty"`
	Remarks          string    `json:"remarks,omitempty"`
}

// Patch changes an open downtime event. Nil fields are kept; the equipment
// cannot change.
type Patch struct {
	DowntimeCode      *string             `json:"downtimeCode,omitempty"`
	DowntimeType      *model.DowntimeType `json:"downtimeType,omitempty"`
	Category          *string             `json:"category,omitempty"`
	StartTime         *time.Time          `json:"startTime,omitempty"`
	WorkOrderID       *string             `json:"workOrderId,omitempty"`
	OperationID       *string             `json:"operationId,omitempty"`
	ResponsiblePerson *string             `json:"responsiblePerson,omitempty"`
	Cause             *string             `json:"cause,omitempty"`
	Remarks           *string             `json:"remarks,omitempty"`
}

// Notes are appended to the text fields of an event, resolved or not.
type Notes struct {
	Cause            string `json:"cause,omitempty"`
	Countermeasure   string `json:"countermeasure,omitempty"`
	PreventiveAction string `json:"preventiveAction,omitempty"`
	Remarks          string `json:"remarks,omitempty"`
}

func (n Notes) empty() bool {
	return n.Cause == "" && n.Countermeasure == "" && n.PreventiveAction == "" && n.Remarks == ""
}
