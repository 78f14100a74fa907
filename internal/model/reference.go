package model

import "time"

// The reference data below is owned by the master-data modules. The execution
// core only reads it to check existence.

// Product is a manufactured item.
type Product struct {
	ID        string    `gorm:"primaryKey;size:64"`
	TenantID  string    `gorm:"size:64;not null;index"`
	Code      string    `gorm:"size:64;not null"`
	Name      string    `gorm:"size:128;not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// Process is a routing a product is manufactured through.
type Process struct {
	ID        string    `gorm:"primaryKey;size:64"`
	TenantID  string    `gorm:"size:64;not null;index"`
	Code      string    `gorm:"size:64;not null"`
	Name      string    `gorm:"size:128;not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// Equipment is a machine that can be down.
type Equipment struct {
	ID        string    `gorm:"primaryKey;size:64"`
	TenantID  string    `gorm:"size:64;not null;index"`
	Code      string    `gorm:"size:64;not null"`
	Name      string    `gorm:"size:128;not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// Employee is an operator or worker.
type Employee struct {
	ID        string    `gorm:"primaryKey;size:64"`
	TenantID  string    `gorm:"size:64;not null;index"`
	Code      string    `gorm:"size:64;not null"`
	Name      string    `gorm:"size:128;not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// All returns every model the execution backend migrates.
func All() []any {
	return []any{
		&WorkOrder{},
		&WorkResult{},
		&DowntimeEvent{},
		&DowntimeOpen{},
		&AuditLog{},
		&Product{},
		&Process{},
		&Equipment{},
		&Employee{},
	}
}
