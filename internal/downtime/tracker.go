// Package downtime keeps the equipment downtime ledger: at most one open event
// per equipment, resolved events carry their duration.
package downtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mes-execution-backend/internal/apperr"
	"mes-execution-backend/internal/audit"
	"mes-execution-backend/internal/interval"
	"mes-execution-backend/internal/lock"
	"mes-execution-backend/internal/metrics"
	"mes-execution-backend/internal/model"
	"mes-execution-backend/internal/refdata"
	"mes-execution-backend/internal/store"
)

const entityName = "downtime event"

// Tracker runs downtime commands.
type Tracker struct {
	store   store.Store
	refs    refdata.Checker
	emitter audit.Emitter
	locks   *lock.Keyed
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// NewTracker creates a Tracker. Store calls run under timeout.
func NewTracker(st store.Store, refs refdata.Checker, emitter audit.Emitter, locks *lock.Keyed, timeout time.Duration, log *zap.Logger) *Tracker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Tracker{
		store:   st,
		refs:    refs,
		emitter: emitter,
		locks:   locks,
		timeout: timeout,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Open records the start of a stoppage.
func (t *Tracker) Open(ctx context.Context, actor model.Actor, req OpenRequest) (ev *model.DowntimeEvent, err error) {
	defer func() { t.finish(ctx, actor, "open", eventID(ev), nil, ev, err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	req.EquipmentID = strings.TrimSpace(req.EquipmentID)
	req.DowntimeCode = strings.TrimSpace(req.DowntimeCode)
	switch {
	case req.EquipmentID == "":
		return nil, apperr.Validation("equipmentId", "equipment is required")
	case req.DowntimeCode == "":
		return nil, apperr.Validation("downtimeCode", "downtime code is required")
	case req.DowntimeType == "":
		return nil, apperr.Validation("downtimeType", "downtime type is required")
	case !req.DowntimeType.Valid():
		return nil, apperr.Validation("downtimeType", "unknown downtime type %q", req.DowntimeType)
	case req.StartTime.IsZero():
		return nil, apperr.Validation("startTime", "start time is required")
	}

	pctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	if err := t.refs.Equipment(pctx, actor.TenantID, req.EquipmentID); err != nil {
		return nil, err
	}
	req.WorkOrderID = trimRef(req.WorkOrderID)
	req.OperationID = trimRef(req.OperationID)
	if err := t.checkWorkOrder(pctx, actor, req.WorkOrderID); err != nil {
		return nil, err
	}

	release, err := t.locks.Acquire(lock.EquipmentKey(actor.TenantID, req.EquipmentID))
	if err != nil {
		return nil, err
	}
	defer release()

	taken, err := t.store.HasOpenDowntime(pctx, actor.TenantID, req.EquipmentID)
	if err != nil {
		return nil, store.Classify(err, entityName, req.EquipmentID, "open downtime")
	}
	if taken {
		return nil, errAlreadyOpen(req.EquipmentID)
	}

	start := req.StartTime.UTC()
	if err := t.checkPrevious(pctx, actor.TenantID, req.EquipmentID, "", start); err != nil {
		return nil, err
	}

	now := t.now()
	event := &model.DowntimeEvent{
		ID:                uuid.NewString(),
		TenantID:          actor.TenantID,
		EquipmentID:       req.EquipmentID,
		DowntimeCode:      req.DowntimeCode,
		DowntimeType:      req.DowntimeType,
		Category:          req.Category,
		StartTime:         start,
		WorkOrderID:       req.WorkOrderID,
		OperationID:       req.OperationID,
		ResponsiblePerson: req.ResponsiblePerson,
		Cause:             req.Cause,
		Remarks:           req.Remarks,
		Version:           1,
		CreatedBy:         actor.UserID,
		UpdatedBy:         actor.UserID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := t.store.OpenDowntime(pctx, event); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, errAlreadyOpen(req.EquipmentID)
		}
		return nil, store.Classify(err, entityName, event.ID, "open downtime")
	}

	t.emitter.Publish(ctx, audit.DomainEvent{
		Type:        audit.EventDowntimeOpened,
		TenantID:    event.TenantID,
		EquipmentID: event.EquipmentID,
		DowntimeID:  event.ID,
		WorkOrderID: deref(event.WorkOrderID),
		Timestamp:   event.StartTime,
	})
	t.log.Info("Downtime opened",
		zap.String("tenant_id", event.TenantID),
		zap.String("equipment_id", event.EquipmentID),
		zap.String("downtime_id", event.ID),
		zap.String("type", string(event.DowntimeType)))
	return event, nil
}

// Resolve ends an open event and derives its duration.
func (t *Tracker) Resolve(ctx context.Context, actor model.Actor, id string, req ResolveRequest) (ev *model.DowntimeEvent, err error) {
	var before *model.DowntimeEvent
	defer func() { t.finish(ctx, actor, "resolve", id, before, ev, err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if req.EndTime.IsZero() {
		return nil, apperr.Validation("endTime", "end time is required")
	}

	pctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	current, err := t.load(pctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	before = current
	if current.IsResolved {
		return nil, apperr.NotFound("open downtime event", id)
	}

	end := req.EndTime.UTC()
	minutes, err := interval.Duration(current.StartTime, end)
	if err != nil {
		return nil, err
	}

	release, err := t.locks.Acquire(lock.EquipmentKey(actor.TenantID, current.EquipmentID))
	if err != nil {
		return nil, err
	}
	defer release()

	now := t.now()
	next := current.Clone()
	next.EndTime = &end
	next.DurationMinutes = &minutes
	next.IsResolved = true
	next.ResolvedAt = &now
	if req.Countermeasure != "" {
		next.Countermeasure = req.Countermeasure
	}
	if req.PreventiveAction != "" {
		next.PreventiveAction = req.PreventiveAction
	}
	if req.Remarks != "" {
		next.Remarks = appendNote(next.Remarks, req.Remarks)
	}
	next.UpdatedBy = actor.UserID
	next.UpdatedAt = now

	if err := t.store.ResolveDowntime(pctx, next, current.Version); err != nil {
		return nil, store.Classify(err, entityName, id, "resolve downtime")
	}

	t.emitter.Publish(ctx, audit.DomainEvent{
		Type:        audit.EventDowntimeResolved,
		TenantID:    next.TenantID,
		EquipmentID: next.EquipmentID,
		DowntimeID:  next.ID,
		WorkOrderID: deref(next.WorkOrderID),
		Timestamp:   end,
	})
	t.log.Info("Downtime resolved",
		zap.String("tenant_id", next.TenantID),
		zap.String("equipment_id", next.EquipmentID),
		zap.String("downtime_id", next.ID),
		zap.Int("duration_minutes", minutes))
	return next, nil
}

// Update changes an open event. Resolved events only accept notes.
func (t *Tracker) Update(ctx context.Context, actor model.Actor, id string, patch Patch) (ev *model.DowntimeEvent, err error) {
	var before *model.DowntimeEvent
	defer func() { t.finish(ctx, actor, "update", id, before, ev, err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	current, err := t.load(pctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	before = current
	if current.IsResolved {
		return nil, apperr.Conflict("downtime event %s is resolved, only notes can be added", id).WithIDs(id)
	}

	next := current.Clone()
	if patch.DowntimeCode != nil {
		code := strings.TrimSpace(*patch.DowntimeCode)
		if code == "" {
			return nil, apperr.Validation("downtimeCode", "downtime code is required")
		}
		next.DowntimeCode = code
	}
	if patch.DowntimeType != nil {
		if !patch.DowntimeType.Valid() {
			return nil, apperr.Validation("downtimeType", "unknown downtime type %q", *patch.DowntimeType)
		}
		next.DowntimeType = *patch.DowntimeType
	}
	if patch.Category != nil {
		next.Category = *patch.Category
	}
	if patch.WorkOrderID != nil {
		next.WorkOrderID = trimRef(patch.WorkOrderID)
		if err := t.checkWorkOrder(pctx, actor, next.WorkOrderID); err != nil {
			return nil, err
		}
	}
	if patch.OperationID != nil {
		next.OperationID = trimRef(patch.OperationID)
	}
	if patch.ResponsiblePerson != nil {
		next.ResponsiblePerson = *patch.ResponsiblePerson
	}
	if patch.Cause != nil {
		next.Cause = *patch.Cause
	}
	if patch.Remarks != nil {
		next.Remarks = *patch.Remarks
	}

	release, err := t.locks.Acquire(lock.EquipmentKey(actor.TenantID, current.EquipmentID))
	if err != nil {
		return nil, err
	}
	defer release()

	if patch.StartTime != nil {
		if patch.StartTime.IsZero() {
			return nil, apperr.Validation("startTime", "start time is required")
		}
		next.StartTime = patch.StartTime.UTC()
		if err := t.checkPrevious(pctx, actor.TenantID, current.EquipmentID, id, next.StartTime); err != nil {
			return nil, err
		}
	}
	next.UpdatedBy = actor.UserID
	next.UpdatedAt = t.now()

	if err := t.store.SaveDowntime(pctx, next, current.Version); err != nil {
		return nil, store.Classify(err, entityName, id, "update downtime")
	}
	return next, nil
}

// Annotate appends notes to an event's text fields. The interval is never
// touched.
func (t *Tracker) Annotate(ctx context.Context, actor model.Actor, id string, notes Notes) (ev *model.DowntimeEvent, err error) {
	var before *model.DowntimeEvent
	defer func() { t.finish(ctx, actor, "annotate", id, before, ev, err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	notes = Notes{
		Cause:            strings.TrimSpace(notes.Cause),
		Countermeasure:   strings.TrimSpace(notes.Countermeasure),
		PreventiveAction: strings.TrimSpace(notes.PreventiveAction),
		Remarks:          strings.TrimSpace(notes.Remarks),
	}
	if notes.empty() {
		return nil, apperr.Validation("notes", "at least one note is required")
	}

	pctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	current, err := t.load(pctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	before = current

	next := current.Clone()
	next.Cause = appendNote(next.Cause, notes.Cause)
	next.Countermeasure = appendNote(next.Countermeasure, notes.Countermeasure)
	next.PreventiveAction = appendNote(next.PreventiveAction, notes.PreventiveAction)
	next.Remarks = appendNote(next.Remarks, notes.Remarks)
	next.UpdatedBy = actor.UserID
	next.UpdatedAt = t.now()

	if err := t.store.SaveDowntime(pctx, next, current.Version); err != nil {
		return nil, store.Classify(err, entityName, id, "annotate downtime")
	}
	return next, nil
}

// Get returns one event of the actor's tenant.
func (t *Tracker) Get(ctx context.Context, actor model.Actor, id string) (*model.DowntimeEvent, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.load(pctx, actor.TenantID, id)
}

// List returns a page of the tenant's events, newest first, and the total.
func (t *Tracker) List(ctx context.Context, actor model.Actor, params store.DowntimeListParams) ([]model.DowntimeEvent, int64, error) {
	if err := actor.Validate(); err != nil {
		return nil, 0, err
	}
	pctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	events, total, err := t.store.ListDowntime(pctx, actor.TenantID, params)
	if err != nil {
		return nil, 0, apperr.FromContext(err, "list downtime")
	}
	return events, total, nil
}

func (t *Tracker) load(ctx context.Context, tenantID, id string) (*model.DowntimeEvent, error) {
	ev, err := t.store.GetDowntime(ctx, tenantID, id)
	if err != nil {
		return nil, store.Classify(err, entityName, id, "load downtime")
	}
	return ev, nil
}

// checkPrevious fails when an event starting at start would overlap the most
// recent resolved event of the equipment.
func (t *Tracker) checkPrevious(ctx context.Context, tenantID, equipmentID, excludeID string, start time.Time) error {
	prev, err := t.store.LastResolvedDowntime(ctx, tenantID, equipmentID, excludeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.FromContext(err, "load previous downtime")
	}
	if prev.EndTime == nil {
		return nil
	}
	previous := interval.Interval{Start: prev.StartTime, End: *prev.EndTime}
	if interval.Overlaps(interval.Interval{Start: start}, previous) {
		return apperr.InvalidInterval("startTime", "",
			"start time %s falls inside downtime event %s (%s to %s)",
			start.Format(time.RFC3339), prev.ID, prev.StartTime.Format(time.RFC3339), prev.EndTime.Format(time.RFC3339)).
			WithIDs(prev.ID)
	}
	return nil
}

func (t *Tracker) checkWorkOrder(ctx context.Context, actor model.Actor, workOrderID *string) error {
	if workOrderID == nil {
		return nil
	}
	if _, err := t.store.GetWorkOrder(ctx, actor.TenantID, *workOrderID); err != nil {
		return store.Classify(err, "work order", *workOrderID, "load work order")
	}
	return nil
}

func (t *Tracker) finish(ctx context.Context, actor model.Actor, op, id string, before, after *model.DowntimeEvent, err error) {
	metrics.DowntimeEvents.WithLabelValues(op, metrics.Outcome(err)).Inc()

	rec := audit.Record{
		TenantID:    actor.TenantID,
		Action:      "downtime." + op,
		EntityType:  audit.EntityDowntime,
		EntityID:    id,
		ActorUserID: actor.UserID,
		Err:         err,
		Timestamp:   t.now(),
	}
	if before != nil {
		rec.Old = before
	}
	if after != nil {
		rec.New = after
	}
	t.emitter.Audit(ctx, rec)

	if err != nil {
		t.log.Debug("Downtime operation rejected",
			zap.String("operation", op),
			zap.String("downtime_id", id),
			zap.Error(err))
	}
}

func appendNote(existing, note string) string {
	switch {
	case note == "":
		return existing
	case existing == "":
		return note
	}
	return existing + "\n" + note
}

func trimRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	v := strings.TrimSpace(*ref)
	if v == "" {
		return nil
	}
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func eventID(ev *model.DowntimeEvent) string {
	if ev == nil {
		return ""
	}
	return ev.ID
}

func errAlreadyOpen(equipmentID string) error {
	return apperr.Conflict("equipment %s already has an open downtime event", equipmentID).WithIDs(equipmentID)
}
