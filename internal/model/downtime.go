package model

import "time"

// DowntimeType enumerates the reasons equipment stops producing.
type DowntimeType string

const (
	DowntimeBreakdown            DowntimeType = "BREAKDOWN"
	DowntimeSetupChange          DowntimeType = "SETUP_CHANGE"
	DowntimeMaterialShortage     DowntimeType = "MATERIAL_SHORTAGE"
	DowntimeQualityIssue         DowntimeType = "QUALITY_ISSUE"
	DowntimePlannedMaintenance   DowntimeType = "PLANNED_MAINTENANCE"
	DowntimeUnplannedMaintenance DowntimeType = "UNPLANNED_MAINTENANCE"
	DowntimeNoOrder              DowntimeType = "NO_ORDER"
	DowntimeOther                DowntimeType = "OTHER"
)

// DowntimeTypes lists every known downtime type.
var DowntimeTypes = []DowntimeType{
	DowntimeBreakdown,
	DowntimeSetupChange,
	DowntimeMaterialShortage,
	DowntimeQualityIssue,
	DowntimePlannedMaintenance,
	DowntimeUnplannedMaintenance,
	DowntimeNoOrder,
	DowntimeOther,
}

// Valid reports whether t is a known downtime type.
func (t DowntimeType) Valid() bool {
	for _, known := range DowntimeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DowntimeEvent is one interval during which equipment was not producing.
type DowntimeEvent struct {
	ID           string       `json:"id" gorm:"primaryKey;size:36"`
	TenantID     string       `json:"tenantId" gorm:"size:64;not null;index:idx_downtime_tenant_equipment,priority:1"`
	EquipmentID  string       `json:"equipmentId" gorm:"size:64;not null;index:idx_downtime_tenant_equipment,priority:2"`
	DowntimeCode string       `json:"downtimeCode" gorm:"size:64;not null"`
	DowntimeType DowntimeType `json:"downtimeType" gorm:"size:32;not null"`
	Category     string       `json:"category,omitempty" gorm:"size:64"`

	StartTime       time.Time  `json:"startTime" gorm:"not null;index:idx_downtime_tenant_equipment,priority:3"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationMinutes *int       `json:"durationMinutes,omitempty"`

	WorkOrderID *string `json:"workOrderId,omitempty" gorm:"size:36;index"`
	OperationID *string `json:"operationId,omitempty" gorm:"size:64"`

	ResponsiblePerson string `json:"responsiblePerson,omitempty" gorm:"size:64"`
	Cause             string `json:"cause,omitempty" gorm:"type:text"`
	Countermeasure    string `json:"countermeasure,omitempty" gorm:"type:text"`
	PreventiveAction  string `json:"preventiveAction,omitempty" gorm:"type:text"`
	Remarks           string `json:"remarks,omitempty" gorm:"type:text"`

	IsResolved bool       `json:"isResolved" gorm:"not null;default:false"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`

	Version   int64     `json:"version" gorm:"not null;default:1"`
	CreatedBy string    `json:"createdBy" gorm:"size:64;not null"`
	UpdatedBy string    `json:"updatedBy" gorm:"size:64"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null"`
}

// Clone returns a deep copy.
func (d *DowntimeEvent) Clone() *DowntimeEvent {
	c := *d
	c.EndTime = cloneTime(d.EndTime)
	c.ResolvedAt = cloneTime(d.ResolvedAt)
	c.WorkOrderID = cloneString(d.WorkOrderID)
	c.OperationID = cloneString(d.OperationID)
	if d.DurationMinutes != nil {
		v := *d.DurationMinutes
		c.DurationMinutes = &v
	}
	return &c
}

// DowntimeOpen is the hot table holding the single open downtime event of a piece
// of equipment. Its primary key enforces one open event per equipment.
type DowntimeOpen struct {
	TenantID    string    `gorm:"primaryKey;size:64"`
	EquipmentID string    `gorm:"primaryKey;size:64"`
	DowntimeID  string    `gorm:"size:36;not null;uniqueIndex"`
	OpenedAt    time.Time `gorm:"not null"`
}
