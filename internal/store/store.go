package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"mes-execution-backend/internal/model"
)

// Store defines the persistence operations the execution core relies on. Every
// lookup is keyed by (tenantID, id).
type Store interface {
	CreateWorkOrder(ctx context.Context, wo *model.WorkOrder) error
	GetWorkOrder(ctx context.Context, tenantID, id string) (*model.WorkOrder, error)
	ListWorkOrders(ctx context.Context, tenantID string, params WorkOrderListParams) ([]model.WorkOrder, int64, error)
	CommitWorkOrder(ctx context.Context, commit WorkOrderCommit) error

	GetWorkResult(ctx context.Context, tenantID, id string) (*model.WorkResult, error)
	ListWorkResults(ctx context.Context, tenantID, workOrderID string) ([]model.WorkResult, error)

	OpenDowntime(ctx context.Context, ev *model.DowntimeEvent) error
	HasOpenDowntime(ctx context.Context, tenantID, equipmentID string) (bool, error)
	GetDowntime(ctx context.Context, tenantID, id string) (*model.DowntimeEvent, error)
	SaveDowntime(ctx context.Context, ev *model.DowntimeEvent, expectedVersion int64) error
	ResolveDowntime(ctx context.Context, ev *model.DowntimeEvent, expectedVersion int64) error
	LastResolvedDowntime(ctx context.Context, tenantID, equipmentID, excludeID string) (*model.DowntimeEvent, error)
	ListDowntime(ctx context.Context, tenantID string, params DowntimeListParams) ([]model.DowntimeEvent, int64, error)
	ListOpenDowntime(ctx context.Context) ([]model.DowntimeEvent, error)

	WriteAuditLog(ctx context.Context, entry *model.AuditLog) error

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// CreateWorkOrder inserts a new work order; a taken order number in the tenant
// yields ErrDuplicate.
func (s *gormStore) CreateWorkOrder(ctx context.Context, wo *model.WorkOrder) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.WorkOrder{}).
			Where("tenant_id = ? AND order_number = ?", wo.TenantID, wo.OrderNumber).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check order number %q: %w", wo.OrderNumber, err)
		}
		if count > 0 {
			return ErrDuplicate
		}
		if err := tx.Create(wo).Error; err != nil {
			return translate(err)
		}
		return nil
	})
}

func (s *gormStore) GetWorkOrder(ctx context.Context, tenantID, id string) (*model.WorkOrder, error) {
	var wo model.WorkOrder
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&wo).Error
	if err != nil {
		return nil, translate(err)
	}
	return &wo, nil
}

func (s *gormStore) ListWorkOrders(ctx context.Context, tenantID string, params WorkOrderListParams) ([]model.WorkOrder, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.WorkOrder{}).Where("tenant_id = ?", tenantID)
	if params.State != "" {
		query = query.Where("state = ?", params.State)
	}
	if params.ProductID != "" {
		query = query.Where("product_id = ?", params.ProductID)
	}
	if params.Keyword != "" {
		query = query.Where("order_number LIKE ?", "%"+params.Keyword+"%")
	}
	if params.Active != nil {
		query = query.Where("is_active = ?", *params.Active)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count work orders: %w", err)
	}
	page, size := NormalizePage(params.Page, params.Size)
	var orders []model.WorkOrder
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&orders).Error
	return orders, total, err
}

// CommitWorkOrder writes the order with a version compare-and-swap together with
// its result rows, in one transaction.
func (s *gormStore) CommitWorkOrder(ctx context.Context, commit WorkOrderCommit) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range commit.NewResults {
			if err := tx.Create(r).Error; err != nil {
				return fmt.Errorf("failed to create work result %s: %w", r.ID, translate(err))
			}
		}
		for _, r := range commit.UpdatedResults {
			res := tx.Model(&model.WorkResult{}).
				Where("tenant_id = ? AND id = ?", r.TenantID, r.ID).
				Select("*").Omit("id", "tenant_id", "work_order_id", "created_at", "created_by").
				Updates(r)
			if res.Error != nil {
				return fmt.Errorf("failed to update work result %s: %w", r.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrNotFound
			}
		}
		return casWorkOrder(tx, commit.Order, commit.ExpectedVersion)
	})
}

func casWorkOrder(tx *gorm.DB, wo *model.WorkOrder, expectedVersion int64) error {
	wo.Version = expectedVersion + 1
	res := tx.Model(&model.WorkOrder{}).
		Where("tenant_id = ? AND id = ? AND version = ?", wo.TenantID, wo.ID, expectedVersion).
		Select("*").Omit("id", "tenant_id", "created_at", "created_by").
		Updates(wo)
	if res.Error != nil {
		wo.Version = expectedVersion
		return fmt.Errorf("failed to update work order %s: %w", wo.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		wo.Version = expectedVersion
		return ErrVersionConflict
	}
	return nil
}

func (s *gormStore) GetWorkResult(ctx context.Context, tenantID, id string) (*model.WorkResult, error) {
	var r model.WorkResult
	if err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *gormStore) ListWorkResults(ctx context.Context, tenantID, workOrderID string) ([]model.WorkResult, error) {
	var results []model.WorkResult
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND work_order_id = ?", tenantID, workOrderID).
		Order("work_start_time ASC, created_at ASC").
		Find(&results).Error
	return results, err
}

// OpenDowntime inserts the event and claims the equipment's open slot. A second
// open event for the same equipment yields ErrDuplicate.
func (s *gormStore) OpenDowntime(ctx context.Context, ev *model.DowntimeEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.DowntimeOpen{}).
			Where("tenant_id = ? AND equipment_id = ?", ev.TenantID, ev.EquipmentID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check open downtime for equipment %s: %w", ev.EquipmentID, err)
		}
		if existing > 0 {
			return ErrDuplicate
		}

		slot := model.DowntimeOpen{
			TenantID:    ev.TenantID,
			EquipmentID: ev.EquipmentID,
			DowntimeID:  ev.ID,
			OpenedAt:    ev.StartTime,
		}
		if err := tx.Create(&slot).Error; err != nil {
			return translate(err)
		}
		if err := tx.Create(ev).Error; err != nil {
			return fmt.Errorf("failed to create downtime event %s: %w", ev.ID, translate(err))
		}
		return nil
	})
}

// HasOpenDowntime reports whether the equipment's open slot is taken.
func (s *gormStore) HasOpenDowntime(ctx context.Context, tenantID, equipmentID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.DowntimeOpen{}).
		Where("tenant_id = ? AND equipment_id = ?", tenantID, equipmentID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check open downtime for equipment %s: %w", equipmentID, err)
	}
	return count > 0, nil
}

func (s *gormStore) GetDowntime(ctx context.Context, tenantID, id string) (*model.DowntimeEvent, error) {
	var ev model.DowntimeEvent
	if err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&ev).Error; err != nil {
		return nil, translate(err)
	}
	return &ev, nil
}

func (s *gormStore) SaveDowntime(ctx context.Context, ev *model.DowntimeEvent, expectedVersion int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return casDowntime(tx, ev, expectedVersion)
	})
}

// ResolveDowntime writes the resolved event and releases the equipment's open
// slot, like archiving an open occupancy.
func (s *gormStore) ResolveDowntime(ctx context.Context, ev *model.DowntimeEvent, expectedVersion int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := casDowntime(tx, ev, expectedVersion); err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ? AND equipment_id = ? AND downtime_id = ?", ev.TenantID, ev.EquipmentID, ev.ID).
			Delete(&model.DowntimeOpen{}).Error; err != nil {
			return fmt.Errorf("failed to release open downtime slot for equipment %s: %w", ev.EquipmentID, err)
		}
		return nil
	})
}

func casDowntime(tx *gorm.DB, ev *model.DowntimeEvent, expectedVersion int64) error {
	ev.Version = expectedVersion + 1
	res := tx.Model(&model.DowntimeEvent{}).
		Where("tenant_id = ? AND id = ? AND version = ?", ev.TenantID, ev.ID, expectedVersion).
		Select("*").Omit("id", "tenant_id", "equipment_id", "created_at", "created_by").
		Updates(ev)
	if res.Error != nil {
		ev.Version = expectedVersion
		return fmt.Errorf("failed to update downtime event %s: %w", ev.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		ev.Version = expectedVersion
		return ErrVersionConflict
	}
	return nil
}

// LastResolvedDowntime returns the most recent resolved event of the equipment,
// or ErrNotFound.
func (s *gormStore) LastResolvedDowntime(ctx context.Context, tenantID, equipmentID, excludeID string) (*model.DowntimeEvent, error) {
	var ev model.DowntimeEvent
	query := s.db.WithContext(ctx).
		Where("tenant_id = ? AND equipment_id = ? AND is_resolved = ?", tenantID, equipmentID, true)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Order("end_time DESC").First(&ev).Error; err != nil {
		return nil, translate(err)
	}
	return &ev, nil
}

func (s *gormStore) ListDowntime(ctx context.Context, tenantID string, params DowntimeListParams) ([]model.DowntimeEvent, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.DowntimeEvent{}).Where("tenant_id = ?", tenantID)
	if params.EquipmentID != "" {
		query = query.Where("equipment_id = ?", params.EquipmentID)
	}
	if params.WorkOrderID != "" {
		query = query.Where("work_order_id = ?", params.WorkOrderID)
	}
	if params.OpenOnly {
		query = query.Where("is_resolved = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count downtime events: %w", err)
	}
	page, size := NormalizePage(params.Page, params.Size)
	var events []model.DowntimeEvent
	err := query.Order("start_time DESC").Offset((page - 1) * size).Limit(size).Find(&events).Error
	return events, total, err
}

// ListOpenDowntime returns the open events of every tenant, oldest first.
func (s *gormStore) ListOpenDowntime(ctx context.Context) ([]model.DowntimeEvent, error) {
	var events []model.DowntimeEvent
	err := s.db.WithContext(ctx).
		Joins("JOIN downtime_opens o ON o.downtime_id = downtime_events.id").
		Order("downtime_events.start_time ASC").
		Find(&events).Error
	return events, err
}

func (s *gormStore) WriteAuditLog(ctx context.Context, entry *model.AuditLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(entry).Error
}
