package downtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mes-execution-backend/internal/apperr"
	"mes-execution-backend/internal/audit"
	"mes-execution-backend/internal/lock"
	"mes-execution-backend/internal/model"
	"mes-execution-backend/internal/store"
	"mes-execution-backend/internal/testutil"
)

var clock = testutil.At(12, 0, 0)

func newTracker(t *testing.T) (*Tracker, store.Store, *audit.Memory) {
	t.Helper()
	st := testutil.NewStore(t)
	emitter := audit.NewMemory()
	tracker := NewTracker(st, testutil.SeedRefs(), emitter, lock.New(lock.DefaultConfig()), time.Second, zap.NewNop())
	tracker.now = func() time.Time { return clock }
	return tracker, st, emitter
}

func openRequest(equipment string, start time.Time) OpenRequest {
	return OpenRequest{
		EquipmentID:  equipment,
		DowntimeCode: "DT-01",
		DowntimeType: model.DowntimeBreakdown,
		StartTime:    start,
		Cause:        "spindle jammed",
	}
}

func TestTracker_OpenResolveScenario(t *testing.T) {
	tracker, _, emitter := newTracker(t)
	ctx := context.Background()
	actor := testutil.Actor

	opened, err := tracker.Open(ctx, actor, openRequest("E1", testutil.At(10, 0, 0)))
	require.NoError(t, err)
	assert.False(t, opened.IsResolved)
	assert.Nil(t, opened.EndTime)

	_, err = tracker.Open(ctx, actor, openRequest("E1", testutil.At(10, 5, 0)))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	resolved, err := tracker.Resolve(ctx, actor, opened.ID, ResolveRequest{
		EndTime:        testutil.At(10, 30, 0),
		Countermeasure: "replaced spindle bearing",
	})
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.DurationMinutes)
	assert.Equal(t, 30, *resolved.DurationMinutes)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, clock.Equal(*resolved.ResolvedAt))
	assert.Equal(t, "replaced spindle bearing", resolved.Countermeasure)

	reopened, err := tracker.Open(ctx, actor, openRequest("E1", testutil.At(10, 30, 0)))
	require.NoError(t, err, "the equipment can stop again once resolved")
	assert.NotEqual(t, opened.ID, reopened.ID)

	assert.Len(t, emitter.EventsOfType(audit.EventDowntimeOpened), 2)
	resolvedEvents := emitter.EventsOfType(audit.EventDowntimeResolved)
	require.Len(t, resolvedEvents, 1)
	assert.Equal(t, "E1", resolvedEvents[0].EquipmentID)
	assert.Equal(t, opened.ID, resolvedEvents[0].DowntimeID)
}

func TestTracker_OpenValidation(t *testing.T) {
	tracker, _, _ := newTracker(t)
	ctx := context.Background()

	badType := openRequest("E1", testutil.At(10, 0, 0))
	badType.DowntimeType = "COFFEE_BREAK"
	noStart := openRequest("E1", time.Time{})
	unknownOrder := openRequest("E1", testutil.At(10, 0, 0))
	missing := "WO-404"
	unknownOrder.WorkOrderID = &missing
	noCode := openRequest("E1", testutil.At(10, 0, 0))
	noCode.DowntimeCode = ""

	tests := []struct {
		name      string
		req       OpenRequest
		wantKind  apperr.Kind
		wantField string
	}{
		{"missing equipment", openRequest(" ", testutil.At(10, 0, 0)), apperr.KindValidation, "equipmentId"},
		{"missing code", noCode, apperr.KindValidation, "downtimeCode"},
		{"unknown type", badType, apperr.KindValidation, "downtimeType"},
		{"missing start", noStart, apperr.KindValidation, "startTime"},
		{"unknown equipment", openRequest("E404", testutil.At(10, 0, 0)), apperr.KindNotFound, ""},
		{"unknown work order", unknownOrder, apperr.KindNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tracker.Open(ctx, testutil.Actor, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			if tt.wantField != "" {
				var ae *apperr.Error
				require.ErrorAs(t, err, &ae)
				assert.Contains(t, ae.Fields, tt.wantField)
			}
		})
	}
}

func TestTracker_OpenLinkedToWorkOrder(t *testing.T) {
	tracker, st, emitter := newTracker(t)
	ctx := context.Background()

	wo := &model.WorkOrder{
		ID:               "WO-ID-1",
		TenantID:         testutil.Tenant,
		OrderNumber:      "WO-1",
		ProductID:        testutil.Product,
		ProcessID:        testutil.Process,
		Priority:         model.PriorityMedium,
		State:            model.StateInProgress,
		PlannedQuantity:  decimal.NewFromInt(10),
		PlannedStartDate: testutil.At(8, 0, 0),
		PlannedEndDate:   testutil.At(17, 0, 0),
		IsActive:         true,
		Version:          1,
		CreatedBy:        testutil.User,
		CreatedAt:        clock,
		UpdatedAt:        clock,
	}
	require.NoError(t, st.CreateWorkOrder(ctx, wo))

	req := openRequest("E1", testutil.At(10, 0, 0))
	req.WorkOrderID = &wo.ID
	ev, err := tracker.Open(ctx, testutil.Actor, req)
	require.NoError(t, err)
	require.NotNil(t, ev.WorkOrderID)
	assert.Equal(t, wo.ID, *ev.WorkOrderID)
	assert.Equal(t, wo.ID, emitter.EventsOfType(audit.EventDowntimeOpened)[0].WorkOrderID)
}

func TestTracker_ResolveRules(t *testing.T) {
	tracker, st, _ := newTracker(t)
	ctx := context.Background()

	ev, err := tracker.Open(ctx, testutil.Actor, openRequest("E1", testutil.At(10, 0, 0)))
	require.NoError(t, err)

	_, err = tracker.Resolve(ctx, testutil.Actor, ev.ID, ResolveRequest{EndTime: testutil.At(10, 0, 0)})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidInterval), "end equal to start")
	_, err = tracker.Resolve(ctx, testutil.Actor, ev.ID, ResolveRequest{})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "missing end")

	_, err = tracker.Resolve(ctx, testutil.Actor, ev.ID, ResolveRequest{EndTime: testutil.At(11, 0, 0)})
	require.NoError(t, err)

	_, err = tracker.Resolve(ctx, testutil.Actor, ev.ID, ResolveRequest{EndTime: testutil.At(12, 0, 0)})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound), "resolve twice")

	stored, err := st.GetDowntime(ctx, testutil.Tenant, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.EndTime)
	assert.True(t, testutil.At(11, 0, 0).Equal(*stored.EndTime), "a second resolve never moves the end")
	assert.Equal(t, 60, *stored.DurationMinutes)

	_, err = tracker.Resolve(ctx, testutil.Actor, "missing", ResolveRequest{EndTime: testutil.At(11, 0, 0)})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestTracker_OverlapWithPreviousEvent(t *testing.T) {
	tracker, _, _ := newTracker(t)
	ctx := context.Background()

	first, err := tracker.Open(ctx, testutil.Actor, openRequest("E1", testutil.At(10, 0, 0)))
	require.NoError(t, err)
	_, err = tracker.Resolve(ctx, testutil.Actor, first.ID, ResolveRequest{EndTime: testutil.At(10, 30, 0)})
	require.NoError(t, err)

	_, err = tracker.Open(ctx, testutil.Actor, openRequest("E1", testutil.At(10, 15, 0)))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidInterval))
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.EntityIDs, first.ID)

	_, err = tracker.Open(ctx, testutil.Actor, openRequest("E2", testutil.At(10, 15, 0)))
	assert.NoError(t, err, "other equipment is unaffected")

	second, err := tracker.Open(ctx, testutil.Actor, openRequest("E1", testutil.At(11, 0, 0)))
	require.NoError(t, err)

	_, err = tracker.Open(ctx, testutil.Actor, openRequest("E1", testutil.At(10, 10, 0)))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict), "an open event wins over the overlap with a resolved one")

	early := testutil.At(10, 20, 0)
	_, err = tracker.Update(ctx, testutil.Actor, second.ID, Patch{StartTime: &early})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidInterval), "an update cannot move the start into the previous event")
}

func TestTracker_Update(t *testing.T) {
	tracker, _, _ := newTracker(t)
	ctx := context.Background()

	ev, err := tracker.Open(ctx, testutil.Actor, openRequest("E1", testutil.At(10, 0, 0)))
	require.NoError(t, err)

	typ := model.DowntimeMaterialShortage
	cause := "coil not delivered"
	updated, err := tracker.Update(ctx, testutil.Actor, ev.ID, Patch{DowntimeType: &typ, Cause: &cause})
	require.NoError(t, err)
	assert.Equal(t, model.DowntimeMaterialShortage, updated.DowntimeType)
	assert.Equal(t, cause, updated.Cause)
	assert.Equal(t, ev.Version+1, updated.Version)

	bad := model.DowntimeType("NAP")
	_, err = tracker.Update(ctx, testutil.Actor, ev.ID, Patch{DowntimeType: &bad})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = tracker.Resolve(ctx, testutil.Actor, ev.ID, ResolveRequest{EndTime: testutil.At(10, 45, 0)})
	require.NoError(t, err)
	_, err = tracker.Update(ctx, testutil.Actor, ev.ID, Patch{Cause: &cause})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict), "resolved events only take notes")
}

func TestTracker_Annotate(t *testing.T) {
	tracker, _, _ := newTracker(t)
	ctx := context.Background()

	ev, err := tracker.Open(ctx, testutil.Actor, openRequest("E1", testutil.At(10, 0, 0)))
	require.NoError(t, err)
	_, err = tracker.Resolve(ctx, testutil.Actor, ev.ID, ResolveRequest{EndTime: testutil.At(10, 45, 0), Countermeasure: "reset drive"})
	require.NoError(t, err)

	annotated, err := tracker.Annotate(ctx, testutil.Actor, ev.ID, Notes{
		Countermeasure:   "replaced encoder",
		PreventiveAction: "weekly encoder check",
	})
	require.NoError(t, err)
	assert.Equal(t, "reset drive\nreplaced encoder", annotated.Countermeasure)
	assert.Equal(t, "weekly encoder check", annotated.PreventiveAction)
	assert.Equal(t, "spindle jammed", annotated.Cause)
	assert.Equal(t, 45, *annotated.DurationMinutes)
	assert.True(t, testutil.At(10, 45, 0).Equal(*annotated.EndTime))

	_, err = tracker.Annotate(ctx, testutil.Actor, ev.ID, Notes{Remarks: "  "})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestTracker_ConcurrentOpenSameEquipment(t *testing.T) {
	tracker, _, _ := newTracker(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		opened    int
		conflicts int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tracker.Open(ctx, testutil.Actor, openRequest("E1", testutil.At(10, i, 0)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case apperr.IsKind(err, apperr.KindConflict):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.Equal(t, 9, conflicts)
}

func TestTracker_List(t *testing.T) {
	tracker, _, _ := newTracker(t)
	ctx := context.Background()

	first, err := tracker.Open(ctx, testutil.Actor, openRequest("E1", testutil.At(8, 0, 0)))
	require.NoError(t, err)
	_, err = tracker.Resolve(ctx, testutil.Actor, first.ID, ResolveRequest{EndTime: testutil.At(8, 20, 0)})
	require.NoError(t, err)
	_, err = tracker.Open(ctx, testutil.Actor, openRequest("E1", testutil.At(9, 0, 0)))
	require.NoError(t, err)
	_, err = tracker.Open(ctx, testutil.Actor, openRequest("E2", testutil.At(9, 30, 0)))
	require.NoError(t, err)

	all, total, err := tracker.List(ctx, testutil.Actor, store.DowntimeListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	open, total, err := tracker.List(ctx, testutil.Actor, store.DowntimeListParams{EquipmentID: "E1", OpenOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, open, 1)
	assert.True(t, testutil.At(9, 0, 0).Equal(open[0].StartTime))

	got, err := tracker.Get(ctx, testutil.Actor, first.ID)
	require.NoError(t, err)
	assert.True(t, got.IsResolved)
}
