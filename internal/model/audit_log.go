package model

import "time"

// AuditLog is a persisted audit record of a state-changing operation.
type AuditLog struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	TenantID    string    `json:"tenantId" gorm:"size:64;not null;index:idx_audit_tenant_entity,priority:1"`
	Action      string    `json:"action" gorm:"size:64;not null"`
	EntityType  string    `json:"entityType" gorm:"size:32;not null;index:idx_audit_tenant_entity,priority:2"`
	EntityID    string    `json:"entityId" gorm:"size:64;index:idx_audit_tenant_entity,priority:3"`
	OldValue    string    `json:"oldValue,omitempty" gorm:"type:text"`
	NewValue    string    `json:"newValue,omitempty" gorm:"type:text"`
	ActorUserID string    `json:"actorUserId" gorm:"size:64;not null"`
	Success     bool      `json:"success" gorm:"not null"`
	Error       string    `json:"error,omitempty" gorm:"type:text"`
	Timestamp   time.Time `json:"timestamp" gorm:"not null;index"`
}
