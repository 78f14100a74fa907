// Package workresult records production results against work orders. The
// quantities of a result reach the order only through the OrderApplier.
package workresult

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mes-execution-backend/internal/apperr"
	"mes-execution-backend/internal/audit"
	"mes-execution-backend/internal/interval"
	"mes-execution-backend/internal/metrics"
	"mes-execution-backend/internal/model"
	"mes-execution-backend/internal/quantity"
	"mes-execution-backend/internal/refdata"
	"mes-execution-backend/internal/store"
	"mes-execution-backend/internal/workorder"
)

const entityName = "work result"

// OrderApplier applies a result delta to its work order and commits the result
// rows with it.
type OrderApplier interface {
	ApplyResult(ctx context.Context, actor model.Actor, change workorder.ResultChange) (*workorder.Outcome, error)
}

// Recorder validates results and hands their deltas to the OrderApplier.
type Recorder struct {
	store   store.Store
	refs    refdata.Checker
	orders  OrderApplier
	emitter audit.Emitter
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// NewRecorder creates a Recorder. Reads run under timeout.
func NewRecorder(st store.Store, refs refdata.Checker, orders OrderApplier, emitter audit.Emitter, timeout time.Duration, log *zap.Logger) *Recorder {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Recorder{
		store:   st,
		refs:    refs,
		orders:  orders,
		emitter: emitter,
		timeout: timeout,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record validates a new result and applies it to its order.
func (r *Recorder) Record(ctx context.Context, actor model.Actor, req RecordRequest) (out *Recorded, err error) {
	defer func() { r.finish(ctx, actor, "record", out, nil, err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	req.WorkOrderID = strings.TrimSpace(req.WorkOrderID)
	if req.WorkOrderID == "" {
		return nil, apperr.Validation("workOrderId", "work order is required")
	}

	now := r.now()
	result := &model.WorkResult{
		ID:             uuid.NewString(),
		TenantID:       actor.TenantID,
		WorkOrderID:    req.WorkOrderID,
		Quantity:       req.Quantity,
		GoodQuantity:   req.GoodQuantity,
		DefectQuantity: req.DefectQuantity,
		WorkStartTime:  req.WorkStartTime,
		WorkEndTime:    req.WorkEndTime,
		WorkerID:       workerRef(req.WorkerID),
		DefectReason:   strings.TrimSpace(req.DefectReason),
		Remarks:        req.Remarks,
		CreatedBy:      actor.UserID,
		UpdatedBy:      actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.ResultDate != nil {
		result.ResultDate = *req.ResultDate
	} else {
		result.ResultDate = req.WorkEndTime
	}
	if err := validate(result, req.DurationMinutes); err != nil {
		return nil, err
	}
	if err := r.checkWorker(ctx, actor, result.WorkerID); err != nil {
		return nil, err
	}

	outcome, err := r.orders.ApplyResult(ctx, actor, workorder.ResultChange{
		WorkOrderID: result.WorkOrderID,
		Delta:       triple(result),
		New:         result,
	})
	if err != nil {
		return nil, err
	}
	return &Recorded{Result: result, Order: outcome.Order, Warnings: outcome.Warnings}, nil
}

// Update merges patch into a live result, re-validates it and applies the
// difference to its order.
func (r *Recorder) Update(ctx context.Context, actor model.Actor, id string, patch Patch) (out *Recorded, err error) {
	var before *model.WorkResult
	defer func() { r.finish(ctx, actor, "update", out, before, err, id) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	existing, err := r.load(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	before = existing
	if existing.IsReversed {
		return nil, apperr.State("work result %s is reversed and can no longer change", id).WithIDs(id)
	}

	merged := existing.Clone()
	duration := mergePatch(merged, patch)
	merged.UpdatedBy = actor.UserID
	merged.UpdatedAt = r.now()
	if err := validate(merged, duration); err != nil {
		return nil, err
	}
	if patch.WorkerID != nil {
		if err := r.checkWorker(ctx, actor, merged.WorkerID); err != nil {
			return nil, err
		}
	}

	outcome, err := r.orders.ApplyResult(ctx, actor, workorder.ResultChange{
		WorkOrderID: merged.WorkOrderID,
		Delta:       triple(merged).Sub(triple(existing)),
		Updated:     merged,
		Previous:    existing,
	})
	if err != nil {
		return nil, err
	}
	return &Recorded{Result: merged, Order: outcome.Order, Warnings: outcome.Warnings}, nil
}

// Reverse withdraws a result's quantities from its order. The row is kept and
// marked reversed.
func (r *Recorder) Reverse(ctx context.Context, actor model.Actor, id string) (out *Recorded, err error) {
	var before *model.WorkResult
	defer func() { r.finish(ctx, actor, "reverse", out, before, err, id) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	existing, err := r.load(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	before = existing
	if existing.IsReversed {
		return nil, apperr.State("work result %s is already reversed", id).WithIDs(id)
	}

	now := r.now()
	reversed := existing.Clone()
	reversed.IsReversed = true
	reversed.ReversedAt = &now
	reversed.ReversedBy = actor.UserID
	reversed.UpdatedBy = actor.UserID
	reversed.UpdatedAt = now

	outcome, err := r.orders.ApplyResult(ctx, actor, workorder.ResultChange{
		WorkOrderID: existing.WorkOrderID,
		Delta:       triple(existing).Negate(),
		Updated:     reversed,
		Previous:    existing,
	})
	if err != nil {
		return nil, err
	}
	return &Recorded{Result: reversed, Order: outcome.Order}, nil
}

// Get returns one result of the actor's tenant.
func (r *Recorder) Get(ctx context.Context, actor model.Actor, id string) (*model.WorkResult, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return r.load(ctx, actor.TenantID, id)
}

// ListByWorkOrder returns every result of the order, reversed ones included,
// ordered by work start.
func (r *Recorder) ListByWorkOrder(ctx context.Context, actor model.Actor, workOrderID string) ([]model.WorkResult, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := r.store.GetWorkOrder(pctx, actor.TenantID, workOrderID); err != nil {
		return nil, store.Classify(err, "work order", workOrderID, "load work order")
	}
	results, err := r.store.ListWorkResults(pctx, actor.TenantID, workOrderID)
	if err != nil {
		return nil, apperr.FromContext(err, "list work results")
	}
	return results, nil
}

func (r *Recorder) load(ctx context.Context, tenantID, id string) (*model.WorkResult, error) {
	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	result, err := r.store.GetWorkResult(pctx, tenantID, id)
	if err != nil {
		return nil, store.Classify(err, entityName, id, "load work result")
	}
	return result, nil
}

// workerRef trims a worker id; a blank one means no worker.
func workerRef(id *string) *string {
	if id == nil {
		return nil
	}
	v := strings.TrimSpace(*id)
	if v == "" {
		return nil
	}
	return &v
}

func (r *Recorder) checkWorker(ctx context.Context, actor model.Actor, workerID *string) error {
	if workerID == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.refs.Operator(pctx, actor.TenantID, *workerID)
}

// finish audits the operation and counts it. id names the result when out is
// nil.
func (r *Recorder) finish(ctx context.Context, actor model.Actor, op string, out *Recorded, before *model.WorkResult, err error, id ...string) {
	metrics.ResultsRecorded.WithLabelValues(op, metrics.Outcome(err)).Inc()

	rec := audit.Record{
		TenantID:    actor.TenantID,
		Action:      "workresult." + op,
		EntityType:  audit.EntityWorkResult,
		ActorUserID: actor.UserID,
		Err:         err,
		Timestamp:   r.now(),
	}
	if len(id) > 0 {
		rec.EntityID = id[0]
	}
	if before != nil {
		rec.Old = before
	}
	if out != nil {
		rec.EntityID = out.Result.ID
		rec.New = out.Result
	}
	r.emitter.Audit(ctx, rec)

	if err != nil {
		r.log.Debug("Work result operation rejected",
			zap.String("operation", op),
			zap.String("work_result_id", rec.EntityID),
			zap.Error(err))
	}
}

func triple(r *model.WorkResult) quantity.Triple {
	return quantity.Triple{Actual: r.Quantity, Good: r.GoodQuantity, Defect: r.DefectQuantity}
}

// mergePatch applies patch to r and returns the explicit duration to validate,
// if any. A changed window without a duration re-derives it.
func mergePatch(r *model.WorkResult, patch Patch) *int {
	if patch.ResultDate != nil {
		r.ResultDate = *patch.ResultDate
	}
	if patch.GoodQuantity != nil {
		r.GoodQuantity = *patch.GoodQuantity
	}
	if patch.DefectQuantity != nil {
		r.DefectQuantity = *patch.DefectQuantity
	}
	switch {
	case patch.Quantity != nil:
		r.Quantity = *patch.Quantity
	case patch.GoodQuantity != nil || patch.DefectQuantity != nil:
		r.Quantity = r.GoodQuantity.Add(r.DefectQuantity)
	}
	if patch.WorkStartTime != nil {
		r.WorkStartTime = *patch.WorkStartTime
	}
	if patch.WorkEndTime != nil {
		r.WorkEndTime = *patch.WorkEndTime
	}
	if patch.WorkerID != nil {
		r.WorkerID = workerRef(patch.WorkerID)
	}
	if patch.DefectReason != nil {
		r.DefectReason = strings.TrimSpace(*patch.DefectReason)
	}
	if patch.Remarks != nil {
		r.Remarks = *patch.Remarks
	}

	if patch.DurationMinutes != nil {
		return patch.DurationMinutes
	}
	if patch.WorkStartTime == nil && patch.WorkEndTime == nil {
		d := r.DurationMinutes
		return &d
	}
	return nil
}

// validate checks r and sets its duration: the explicit one when given,
// otherwise the whole minutes of its work window.
func validate(r *model.WorkResult, duration *int) error {
	if err := quantity.CheckScale(r.Quantity, "quantity"); err != nil {
		return err
	}
	if err := quantity.CheckScale(r.GoodQuantity, "goodQuantity"); err != nil {
		return err
	}
	if err := quantity.CheckScale(r.DefectQuantity, "defectQuantity"); err != nil {
		return err
	}

	switch {
	case r.Quantity.IsNegative():
		return apperr.Validation("quantity", "quantity must not be negative")
	case r.GoodQuantity.IsNegative():
		return apperr.Validation("goodQuantity", "good quantity must not be negative")
	case r.DefectQuantity.IsNegative():
		return apperr.Validation("defectQuantity", "defect quantity must not be negative")
	case !r.Quantity.IsPositive():
		return apperr.Validation("quantity", "quantity must be greater than zero")
	case !r.GoodQuantity.Add(r.DefectQuantity).Equal(r.Quantity):
		return apperr.Validation("quantity", "quantity %s must equal good %s + defect %s",
			r.Quantity, r.GoodQuantity, r.DefectQuantity)
	case r.DefectQuantity.GreaterThan(decimal.Zero) && r.DefectReason == "":
		return apperr.Validation("defectReason", "a defect reason is required when defect quantity is %s", r.DefectQuantity)
	case r.WorkStartTime.IsZero():
		return apperr.Validation("workStartTime", "work start time is required")
	case r.WorkEndTime.IsZero():
		return apperr.Validation("workEndTime", "work end time is required")
	}
	if err := interval.Validate(r.WorkStartTime, r.WorkEndTime, "workStartTime", "workEndTime"); err != nil {
		return err
	}

	if duration != nil {
		if *duration < 0 {
			return apperr.Validation("durationMinutes", "duration must not be negative")
		}
		r.DurationMinutes = *duration
		return nil
	}
	minutes, err := interval.Duration(r.WorkStartTime, r.WorkEndTime)
	if err != nil {
		return err
	}
	r.DurationMinutes = minutes
	return nil
}
