// Package audit delivers audit records and domain events outside the request
// path. Delivery is best-effort: failures are logged and counted, never returned
// to the caller.
package audit

import (
	"context"
	"time"
)

// Domain event types.
const (
	EventDowntimeOpened        = "DowntimeOpened"
	EventDowntimeResolved      = "DowntimeResolved"
	EventWorkOrderTransitioned = "WorkOrderTransitioned"
	EventLongStoppage          = "LongStoppageDetected"
)

// Entity types used in audit records.
const (
	EntityWorkOrder  = "WORK_ORDER"
	EntityWorkResult = "WORK_RESULT"
	EntityDowntime   = "DOWNTIME_EVENT"
)

// Record is one audited operation. Old and New are serialised as JSON.
type Record struct {
	TenantID    string
	Action      string
	EntityType  string
	EntityID    string
	Old         any
	New         any
	ActorUserID string
	Err         error
	Timestamp   time.Time
}

// Success reports whether the audited operation succeeded.
func (r Record) Success() bool { return r.Err == nil }

// DomainEvent is published after a successful state change.
type DomainEvent struct {
	Type        string    `json:"type"`
	TenantID    string    `json:"tenantId"`
	EquipmentID string    `json:"equipmentId,omitempty"`
	DowntimeID  string    `json:"downtimeId,omitempty"`
	WorkOrderID string    `json:"workOrderId,omitempty"`
	Action      string    `json:"action,omitempty"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Emitter accepts audit records and domain events.
type Emitter interface {
	Audit(ctx context.Context, rec Record)
	Publish(ctx context.Context, ev DomainEvent)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Audit(context.Context, Record) {}
func (Nop) Publish(context.Context, DomainEvent) {}
