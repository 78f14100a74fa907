// Package execution is the single entry point of the production execution core.
// Every call takes the acting tenant and user, and every error it returns is an
// *Error carrying a boundary code.
package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mes-execution-backend/config"
	"mes-execution-backend/internal/audit"
	"mes-execution-backend/internal/downtime"
	"mes-execution-backend/internal/lock"
	"mes-execution-backend/internal/model"
	"mes-execution-backend/internal/quantity"
	"mes-execution-backend/internal/refdata"
	"mes-execution-backend/internal/store"
	"mes-execution-backend/internal/workorder"
	"mes-execution-backend/internal/workresult"
)

// Actor identifies the caller.
type Actor = model.Actor

// Dependencies are the collaborators of the execution core.
type Dependencies struct {
	Store   store.Store
	Refs    refdata.Checker
	Emitter audit.Emitter
	Config  config.ExecutionConfig
	Log     *zap.Logger
}

// Facade exposes the execution operations.
type Facade struct {
	orders   *workorder.Manager
	results  *workresult.Recorder
	downtime *downtime.Tracker
	now      func() time.Time
}

// New wires the core components from deps.
func New(deps Dependencies) *Facade {
	locks := lock.New(LockConfig(deps.Config))
	policy := Policy(deps.Config)
	orders := workorder.NewManager(deps.Store, deps.Refs, deps.Emitter, locks, policy, deps.Log.Named("workorder"))
	return &Facade{
		orders:   orders,
		results:  workresult.NewRecorder(deps.Store, deps.Refs, orders, deps.Emitter, policy.PersistTimeout, deps.Log.Named("workresult")),
		downtime: downtime.NewTracker(deps.Store, deps.Refs, deps.Emitter, locks, policy.PersistTimeout, deps.Log.Named("downtime")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Policy converts the execution configuration into lifecycle rules.
func Policy(cfg config.ExecutionConfig) workorder.Policy {
	timeout := cfg.PersistTimeout
	if timeout <= 0 && cfg.PersistTimeoutMillis > 0 {
		timeout = time.Duration(cfg.PersistTimeoutMillis) * time.Millisecond
	}
	return workorder.Policy{
		Tolerance: quantity.Tolerance{
			Quantity: decimal.NewFromFloat(cfg.OverProduction.ToleranceQty),
			Percent:  decimal.NewFromFloat(cfg.OverProduction.TolerancePercent),
			WarnOnly: cfg.OverProduction.Mode == "warn",
		},
		ReverseResultsOnCancel: cfg.ReverseResultsOnCancel,
		PersistTimeout:         timeout,
	}
}

// LockConfig returns the keyed lock tuning for cfg.
func LockConfig(cfg config.ExecutionConfig) lock.Config {
	lc := lock.DefaultConfig()
	if cfg.LockMaxRetry > 0 {
		lc.MaxRetry = cfg.LockMaxRetry
	}
	return lc
}

// CreateWorkOrder creates a PLANNED work order.
func (f *Facade) CreateWorkOrder(ctx context.Context, actor Actor, req workorder.CreateRequest) (*model.WorkOrder, error) {
	wo, err := f.orders.Create(ctx, actor, req)
	return wo, translate(err)
}

// Transition runs a lifecycle action: release, complete, close or cancel.
func (f *Facade) Transition(ctx context.Context, actor Actor, workOrderID, action string) (*workorder.Outcome, error) {
	a, err := workorder.ParseAction(action)
	if err != nil {
		return nil, translate(err)
	}
	out, err := f.orders.Transition(ctx, actor, workOrderID, a)
	return out, translate(err)
}

// DeactivateWorkOrder soft-deactivates a CLOSED or CANCELLED order.
func (f *Facade) DeactivateWorkOrder(ctx context.Context, actor Actor, workOrderID string) (*model.WorkOrder, error) {
	wo, err := f.orders.Deactivate(ctx, actor, workOrderID)
	return wo, translate(err)
}

// ListWorkOrders returns a page of work orders and the total count.
func (f *Facade) ListWorkOrders(ctx context.Context, actor Actor, params store.WorkOrderListParams) ([]model.WorkOrder, int64, error) {
	orders, total, err := f.orders.List(ctx, actor, params)
	return orders, total, translate(err)
}

// RecordResult records a production result.
func (f *Facade) RecordResult(ctx context.Context, actor Actor, req workresult.RecordRequest) (*workresult.Recorded, error) {
	out, err := f.results.Record(ctx, actor, req)
	return out, translate(err)
}

// UpdateResult changes a live production result.
func (f *Facade) UpdateResult(ctx context.Context, actor Actor, resultID string, patch workresult.Patch) (*workresult.Recorded, error) {
	out, err := f.results.Update(ctx, actor, resultID, patch)
	return out, translate(err)
}

// ReverseResult withdraws a production result.
func (f *Facade) ReverseResult(ctx context.Context, actor Actor, resultID string) (*workresult.Recorded, error) {
	out, err := f.results.Reverse(ctx, actor, resultID)
	return out, translate(err)
}

// GetWorkResult returns one production result.
func (f *Facade) GetWorkResult(ctx context.Context, actor Actor, resultID string) (*model.WorkResult, error) {
	r, err := f.results.Get(ctx, actor, resultID)
	return r, translate(err)
}

// OpenDowntime starts a downtime event.
func (f *Facade) OpenDowntime(ctx context.Context, actor Actor, req downtime.OpenRequest) (*model.DowntimeEvent, error) {
	ev, err := f.downtime.Open(ctx, actor, req)
	return ev, translate(err)
}

// ResolveDowntime ends a downtime event.
func (f *Facade) ResolveDowntime(ctx context.Context, actor Actor, downtimeID string, req downtime.ResolveRequest) (*model.DowntimeEvent, error) {
	ev, err := f.downtime.Resolve(ctx, actor, downtimeID, req)
	return ev, translate(err)
}

// UpdateDowntime changes an open downtime event.
func (f *Facade) UpdateDowntime(ctx context.Context, actor Actor, downtimeID string, patch downtime.Patch) (*model.DowntimeEvent, error) {
	ev, err := f.downtime.Update(ctx, actor, downtimeID, patch)
	return ev, translate(err)
}

// AnnotateDowntime appends notes to a downtime event.
func (f *Facade) AnnotateDowntime(ctx context.Context, actor Actor, downtimeID string, notes downtime.Notes) (*model.DowntimeEvent, error) {
	ev, err := f.downtime.Annotate(ctx, actor, downtimeID, notes)
	return ev, translate(err)
}

// GetDowntime returns one downtime event.
func (f *Facade) GetDowntime(ctx context.Context, actor Actor, downtimeID string) (*model.DowntimeEvent, error) {
	ev, err := f.downtime.Get(ctx, actor, downtimeID)
	return ev, translate(err)
}

// ListDowntime returns a page of downtime events and the total count.
func (f *Facade) ListDowntime(ctx context.Context, actor Actor, params store.DowntimeListParams) ([]model.DowntimeEvent, int64, error) {
	events, total, err := f.downtime.List(ctx, actor, params)
	return events, total, translate(err)
}

// GetWorkOrderSnapshot returns the order with its results, its linked downtime
// and the derived figures.
func (f *Facade) GetWorkOrderSnapshot(ctx context.Context, actor Actor, workOrderID string) (*Snapshot, error) {
	wo, err := f.orders.Get(ctx, actor, workOrderID)
	if err != nil {
		return nil, translate(err)
	}
	results, err := f.results.ListByWorkOrder(ctx, actor, workOrderID)
	if err != nil {
		return nil, translate(err)
	}
	events, _, err := f.downtime.List(ctx, actor, store.DowntimeListParams{WorkOrderID: workOrderID, Size: snapshotDowntimeLimit})
	if err != nil {
		return nil, translate(err)
	}
	return buildSnapshot(wo, results, events, f.now()), nil
}
