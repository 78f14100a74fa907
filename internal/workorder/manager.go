// Package workorder owns the work order lifecycle. The Manager is the only
// writer of order state and of the quantity accumulators.
package workorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mes-execution-backend/internal/apperr"
	"mes-execution-backend/internal/audit"
	"mes-execution-backend/internal/interval"
	"mes-execution-backend/internal/lock"
	"mes-execution-backend/internal/metrics"
	"mes-execution-backend/internal/model"
	"mes-execution-backend/internal/quantity"
	"mes-execution-backend/internal/refdata"
	"mes-execution-backend/internal/store"
)

const entityName = "work order"

// Manager runs work order commands.
type Manager struct {
	store   store.Store
	refs    refdata.Checker
	emitter audit.Emitter
	locks   *lock.Keyed
	policy  Policy
	log     *zap.Logger
	now     func() time.Time
}

// NewManager creates a lifecycle manager.
func NewManager(st store.Store, refs refdata.Checker, emitter audit.Emitter, locks *lock.Keyed, policy Policy, log *zap.Logger) *Manager {
	if policy.PersistTimeout <= 0 {
		policy.PersistTimeout = 3 * time.Second
	}
	return &Manager{
		store:   st,
		refs:    refs,
		emitter: emitter,
		locks:   locks,
		policy:  policy,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.policy.PersistTimeout)
}

// Create validates and stores a new PLANNED work order.
func (m *Manager) Create(ctx context.Context, actor model.Actor, req CreateRequest) (wo *model.WorkOrder, err error) {
	defer func() { m.audit(ctx, actor, "workorder.create", orderID(wo), nil, wo, err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if err := validateCreate(&req); err != nil {
		return nil, err
	}

	pctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := m.refs.Product(pctx, actor.TenantID, req.ProductID); err != nil {
		return nil, err
	}
	if err := m.refs.Process(pctx, actor.TenantID, req.ProcessID); err != nil {
		return nil, err
	}
	if req.OperatorID != nil {
		if err := m.refs.Operator(pctx, actor.TenantID, *req.OperatorID); err != nil {
			return nil, err
		}
	}

	now := m.now()
	order := &model.WorkOrder{
		ID:               uuid.NewString(),
		TenantID:         actor.TenantID,
		OrderNumber:      req.OrderNumber,
		ProductID:        req.ProductID,
		ProcessID:        req.ProcessID,
		OperatorID:       req.OperatorID,
		Priority:         req.Priority,
		State:            model.StatePlanned,
		PlannedQuantity:  req.PlannedQuantity,
		ActualQuantity:   decimal.Zero,
		GoodQuantity:     decimal.Zero,
		DefectQuantity:   decimal.Zero,
		PlannedStartDate: req.PlannedStartDate,
		PlannedEndDate:   req.PlannedEndDate,
		Remarks:          req.Remarks,
		IsActive:         true,
		Version:          1,
		CreatedBy:        actor.UserID,
		UpdatedBy:        actor.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.CreateWorkOrder(pctx, order); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			conflict := apperr.Conflict("order number %q already exists", req.OrderNumber)
			conflict.Fields = []string{"orderNumber"}
			return nil, conflict
		}
		return nil, store.Classify(err, entityName, order.ID, "create work order")
	}
	m.log.Info("Work order created",
		zap.String("tenant_id", order.TenantID),
		zap.String("work_order_id", order.ID),
		zap.String("order_number", order.OrderNumber))
	return order, nil
}

func validateCreate(req *CreateRequest) error {
	req.OrderNumber = strings.TrimSpace(req.OrderNumber)
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.ProcessID = strings.TrimSpace(req.ProcessID)

	switch {
	case req.OrderNumber == "":
		return apperr.Validation("orderNumber", "order number is required")
	case req.ProductID == "":
		return apperr.Validation("productId", "product is required")
	case req.ProcessID == "":
		return apperr.Validation("processId", "process is required")
	case !req.PlannedQuantity.IsPositive():
		return apperr.Validation("plannedQuantity", "planned quantity must be greater than zero")
	case req.PlannedStartDate.IsZero():
		return apperr.Validation("plannedStartDate", "planned start date is required")
	case req.PlannedEndDate.IsZero():
		return apperr.Validation("plannedEndDate", "planned end date is required")
	}
	if err := quantity.CheckScale(req.PlannedQuantity, "plannedQuantity"); err != nil {
		return err
	}
	if err := interval.Validate(req.PlannedStartDate, req.PlannedEndDate, "plannedStartDate", "plannedEndDate"); err != nil {
		return err
	}

	if req.Priority == "" {
		req.Priority = model.PriorityMedium
	}
	if !req.Priority.Valid() {
		return apperr.Validation("priority", "unknown priority %q", req.Priority)
	}
	if req.OperatorID != nil && strings.TrimSpace(*req.OperatorID) == "" {
		req.OperatorID = nil
	}
	return nil
}

// Release moves a PLANNED order to IN_PROGRESS. Releasing an IN_PROGRESS order
// changes nothing.
func (m *Manager) Release(ctx context.Context, actor model.Actor, id string) (*Outcome, error) {
	return m.Transition(ctx, actor, id, ActionRelease)
}

// Complete moves an IN_PROGRESS order to COMPLETED and stamps its actual end.
func (m *Manager) Complete(ctx context.Context, actor model.Actor, id string) (*Outcome, error) {
	return m.Transition(ctx, actor, id, ActionComplete)
}

// Close moves a COMPLETED order to CLOSED.
func (m *Manager) Close(ctx context.Context, actor model.Actor, id string) (*Outcome, error) {
	return m.Transition(ctx, actor, id, ActionClose)
}

// Cancel moves a PLANNED or IN_PROGRESS order to CANCELLED.
func (m *Manager) Cancel(ctx context.Context, actor model.Actor, id string) (*Outcome, error) {
	return m.Transition(ctx, actor, id, ActionCancel)
}

// Transition applies a lifecycle action.
func (m *Manager) Transition(ctx context.Context, actor model.Actor, id string, action Action) (out *Outcome, err error) {
	var before *model.WorkOrder
	defer func() {
		var after *model.WorkOrder
		if out != nil {
			after = out.Order
		}
		m.audit(ctx, actor, "workorder."+string(action), id, before, after, err)
		metrics.Transitions.WithLabelValues(string(action), metrics.Outcome(err)).Inc()
	}()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	release, err := m.locks.Acquire(lock.WorkOrderKey(actor.TenantID, id))
	if err != nil {
		return nil, err
	}
	defer release()

	pctx, cancel := m.withTimeout(ctx)
	defer cancel()
	current, err := m.load(pctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	before = current
	if !current.IsActive {
		return nil, apperr.State("work order %s is deactivated", id).WithIDs(id)
	}

	state, changed, err := nextState(ctx, current.State, action)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			ae.WithIDs(id)
		}
		return nil, err
	}
	if !changed {
		return &Outcome{Order: current}, nil
	}

	now := m.now()
	next := current.Clone()
	next.State = state
	next.UpdatedBy = actor.UserID
	next.UpdatedAt = now
	commit := store.WorkOrderCommit{Order: next, ExpectedVersion: current.Version}
	var warnings []Warning

	switch action {
	case ActionRelease:
		if next.ActualStartDate == nil {
			next.ActualStartDate = &now
		}
	case ActionComplete:
		next.ActualEndDate = &now
		if !next.ActualQuantity.Equal(next.PlannedQuantity) {
			warnings = append(warnings, Warning{
				Code: WarningQuantityVariance,
				Message: fmt.Sprintf("actual quantity %s differs from planned quantity %s by %s",
					next.ActualQuantity, next.PlannedQuantity, next.ActualQuantity.Sub(next.PlannedQuantity)),
			})
		}
	case ActionCancel:
		if next.ActualStartDate != nil && next.ActualEndDate == nil {
			next.ActualEndDate = &now
		}
		if m.policy.ReverseResultsOnCancel {
			reversed, err := m.reverseLiveResults(pctx, actor, next, now)
			if err != nil {
				return nil, err
			}
			commit.UpdatedResults = reversed
		}
	}

	if err := m.store.CommitWorkOrder(pctx, commit); err != nil {
		return nil, store.Classify(err, entityName, id, string(action)+" work order")
	}
	m.publishTransition(ctx, next, action, current.State)
	return &Outcome{Order: next, Warnings: warnings}, nil
}

// reverseLiveResults marks every live result of the order reversed and removes
// their quantities from the accumulators of next.
func (m *Manager) reverseLiveResults(ctx context.Context, actor model.Actor, next *model.WorkOrder, now time.Time) ([]*model.WorkResult, error) {
	results, err := m.store.ListWorkResults(ctx, actor.TenantID, next.ID)
	if err != nil {
		return nil, apperr.FromContext(err, "list work results")
	}

	acc := Accumulators(next)
	var reversed []*model.WorkResult
	for i := range results {
		r := results[i].Clone()
		if r.IsReversed {
			continue
		}
		acc, _, err = quantity.Apply(acc, quantity.NewTriple(r.GoodQuantity, r.DefectQuantity).Negate(), next.PlannedQuantity, m.policy.Tolerance)
		if err != nil {
			return nil, err
		}
		r.IsReversed = true
		r.ReversedAt = &now
		r.ReversedBy = actor.UserID
		r.UpdatedBy = actor.UserID
		r.UpdatedAt = now
		reversed = append(reversed, r)
	}
	setAccumulators(next, acc)
	return reversed, nil
}

// Deactivate soft-deactivates a CLOSED or CANCELLED order. Deactivating an
// inactive order changes nothing.
func (m *Manager) Deactivate(ctx context.Context, actor model.Actor, id string) (wo *model.WorkOrder, err error) {
	var before *model.WorkOrder
	defer func() { m.audit(ctx, actor, "workorder.deactivate", id, before, wo, err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	release, err := m.locks.Acquire(lock.WorkOrderKey(actor.TenantID, id))
	if err != nil {
		return nil, err
	}
	defer release()

	pctx, cancel := m.withTimeout(ctx)
	defer cancel()
	current, err := m.load(pctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	before = current
	if !current.IsActive {
		return current, nil
	}
	if current.State != model.StateClosed && current.State != model.StateCancelled {
		return nil, apperr.State("work order %s is %s, only CLOSED or CANCELLED orders can be deactivated", id, current.State).WithIDs(id)
	}

	next := current.Clone()
	next.IsActive = false
	next.UpdatedBy = actor.UserID
	next.UpdatedAt = m.now()
	if err := m.store.CommitWorkOrder(pctx, store.WorkOrderCommit{Order: next, ExpectedVersion: current.Version}); err != nil {
		return nil, store.Classify(err, entityName, id, "deactivate work order")
	}
	return next, nil
}

// ApplyResult applies a result delta to the order's accumulators and commits it
// together with the result row. A PLANNED order is released by its first
// result, and its actual start is the earliest work start seen.
func (m *Manager) ApplyResult(ctx context.Context, actor model.Actor, change ResultChange) (*Outcome, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	id := change.WorkOrderID
	release, err := m.locks.Acquire(lock.WorkOrderKey(actor.TenantID, id))
	if err != nil {
		return nil, err
	}
	defer release()

	pctx, cancel := m.withTimeout(ctx)
	defer cancel()
	current, err := m.load(pctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	if !current.IsActive {
		return nil, apperr.State("work order %s is deactivated", id).WithIDs(id)
	}
	if current.State.Terminal() {
		return nil, apperr.State("work order %s is %s, results can no longer change", id, current.State).WithIDs(id)
	}

	if change.Previous != nil {
		stored, err := m.store.GetWorkResult(pctx, actor.TenantID, change.Previous.ID)
		if err != nil {
			return nil, store.Classify(err, "work result", change.Previous.ID, "load work result")
		}
		if stored.IsReversed != change.Previous.IsReversed || !stored.UpdatedAt.Equal(change.Previous.UpdatedAt) {
			return nil, apperr.Conflict("work result %s was modified concurrently, refetch and retry", stored.ID).WithIDs(stored.ID)
		}
	}

	updated, overrun, err := quantity.Apply(Accumulators(current), change.Delta, current.PlannedQuantity, m.policy.Tolerance)
	if err != nil {
		return nil, err
	}

	now := m.now()
	next := current.Clone()
	setAccumulators(next, updated)
	next.UpdatedBy = actor.UserID
	next.UpdatedAt = now

	released := false
	if start := workStart(change); start != nil {
		if next.State == model.StatePlanned {
			state, changed, err := nextState(ctx, next.State, ActionRelease)
			if err != nil {
				return nil, err
			}
			next.State = state
			released = changed
		}
		if next.ActualStartDate == nil || start.Before(*next.ActualStartDate) {
			t := *start
			next.ActualStartDate = &t
		}
	}

	commit := store.WorkOrderCommit{Order: next, ExpectedVersion: current.Version}
	if change.New != nil {
		commit.NewResults = []*model.WorkResult{change.New}
	}
	if change.Updated != nil {
		commit.UpdatedResults = []*model.WorkResult{change.Updated}
	}
	if err := m.store.CommitWorkOrder(pctx, commit); err != nil {
		return nil, store.Classify(err, entityName, id, "apply work result")
	}

	if released {
		metrics.Transitions.WithLabelValues(string(ActionRelease), metrics.OutcomeSuccess).Inc()
		m.audit(ctx, actor, "workorder.release", id, current, next, nil)
		m.publishTransition(ctx, next, ActionRelease, current.State)
	}

	out := &Outcome{Order: next}
	if overrun != nil {
		out.Warnings = append(out.Warnings, Warning{Code: WarningOverProduction, Message: overrun.String()})
		m.log.Warn("Over-production accepted",
			zap.String("tenant_id", actor.TenantID),
			zap.String("work_order_id", id),
			zap.String("excess", overrun.Excess.String()))
	}
	return out, nil
}

func workStart(change ResultChange) *time.Time {
	switch {
	case change.New != nil:
		return &change.New.WorkStartTime
	case change.Updated != nil && !change.Updated.IsReversed:
		return &change.Updated.WorkStartTime
	}
	return nil
}

// Get returns one work order of the actor's tenant.
func (m *Manager) Get(ctx context.Context, actor model.Actor, id string) (*model.WorkOrder, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	pctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.load(pctx, actor.TenantID, id)
}

// List returns a page of the tenant's work orders and the total count.
func (m *Manager) List(ctx context.Context, actor model.Actor, params store.WorkOrderListParams) ([]model.WorkOrder, int64, error) {
	if err := actor.Validate(); err != nil {
		return nil, 0, err
	}
	pctx, cancel := m.withTimeout(ctx)
	defer cancel()
	orders, total, err := m.store.ListWorkOrders(pctx, actor.TenantID, params)
	if err != nil {
		return nil, 0, apperr.FromContext(err, "list work orders")
	}
	return orders, total, nil
}

func (m *Manager) load(ctx context.Context, tenantID, id string) (*model.WorkOrder, error) {
	wo, err := m.store.GetWorkOrder(ctx, tenantID, id)
	if err != nil {
		return nil, store.Classify(err, entityName, id, "load work order")
	}
	return wo, nil
}

func (m *Manager) publishTransition(ctx context.Context, wo *model.WorkOrder, action Action, from model.WorkOrderState) {
	m.emitter.Publish(ctx, audit.DomainEvent{
		Type:        audit.EventWorkOrderTransitioned,
		TenantID:    wo.TenantID,
		WorkOrderID: wo.ID,
		Action:      string(action),
		From:        string(from),
		To:          string(wo.State),
		Timestamp:   wo.UpdatedAt,
	})
	m.log.Info("Work order transitioned",
		zap.String("tenant_id", wo.TenantID),
		zap.String("work_order_id", wo.ID),
		zap.String("action", string(action)),
		zap.String("from", string(from)),
		zap.String("to", string(wo.State)))
}

func (m *Manager) audit(ctx context.Context, actor model.Actor, action, id string, before, after *model.WorkOrder, err error) {
	rec := audit.Record{
		TenantID:    actor.TenantID,
		Action:      action,
		EntityType:  audit.EntityWorkOrder,
		EntityID:    id,
		ActorUserID: actor.UserID,
		Err:         err,
		Timestamp:   m.now(),
	}
	if before != nil {
		rec.Old = before
	}
	if after != nil {
		rec.New = after
	}
	m.emitter.Audit(ctx, rec)
	if err != nil {
		m.log.Debug("Work order operation rejected",
			zap.String("action", action),
			zap.String("work_order_id", id),
			zap.Error(err))
	}
}

func orderID(wo *model.WorkOrder) string {
	if wo == nil {
		return ""
	}
	return wo.ID
}

// Accumulators returns the order's actual, good and defect quantities.
func Accumulators(wo *model.WorkOrder) quantity.Triple {
	return quantity.Triple{Actual: wo.ActualQuantity, Good: wo.GoodQuantity, Defect: wo.DefectQuantity}
}

func setAccumulators(wo *model.WorkOrder, t quantity.Triple) {
	wo.ActualQuantity = t.Actual
	wo.GoodQuantity = t.Good
	wo.DefectQuantity = t.Defect
}
