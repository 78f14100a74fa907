package internal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mes-execution-backend/config"
	"mes-execution-backend/internal/audit"
	"mes-execution-backend/internal/downtime"
	"mes-execution-backend/internal/execution"
	"mes-execution-backend/internal/model"
	"mes-execution-backend/internal/monitor"
	"mes-execution-backend/internal/refdata"
	"mes-execution-backend/internal/store"
	"mes-execution-backend/internal/testutil"
	"mes-execution-backend/internal/workorder"
	"mes-execution-backend/internal/workresult"
)

// TestProductionDay runs a work order from creation to deactivation against
// sqlite, with reference data read from the database and audit rows written by
// the dispatcher.
func TestProductionDay(t *testing.T) {
	// --- Test Setup ---
	db := testutil.NewDB(t)
	now := time.Now().UTC()
	require.NoError(t, db.Create(&model.Product{ID: "P-1", TenantID: "t1", Code: "P-1", Name: "Bracket", IsActive: true, CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&model.Process{ID: "R-1", TenantID: "t1", Code: "R-1", Name: "Stamping", IsActive: true, CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&model.Equipment{ID: "E1", TenantID: "t1", Code: "E1", Name: "Press 1", IsActive: true, CreatedAt: now, UpdatedAt: now}).Error)

	appStore := store.NewGormStore(db)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := audit.NewDispatcher(2, 256, appStore, audit.NewLogPublisher(zap.NewNop()), zap.NewNop())
	dispatcher.Start(ctx)

	cfg := config.Default()
	exec := execution.New(execution.Dependencies{
		Store:   appStore,
		Refs:    refdata.NewGormChecker(db, time.Minute),
		Emitter: dispatcher,
		Config:  cfg.Execution,
		Log:     zap.NewNop(),
	})
	actor := model.Actor{TenantID: "t1", UserID: "supervisor"}

	// --- Step 1: Plan the order ---
	wo, err := exec.CreateWorkOrder(ctx, actor, workorder.CreateRequest{
		OrderNumber:      "WO-2024-0001",
		ProductID:        "P-1",
		ProcessID:        "R-1",
		PlannedQuantity:  decimal.NewFromInt(100),
		PlannedStartDate: testutil.At(6, 0, 0),
		PlannedEndDate:   testutil.At(18, 0, 0),
	})
	require.NoError(t, err)

	_, err = exec.CreateWorkOrder(ctx, actor, workorder.CreateRequest{
		OrderNumber:      "WO-2024-0002",
		ProductID:        "P-404",
		ProcessID:        "R-1",
		PlannedQuantity:  decimal.NewFromInt(1),
		PlannedStartDate: testutil.At(6, 0, 0),
		PlannedEndDate:   testutil.At(18, 0, 0),
	})
	var boundary *execution.Error
	require.ErrorAs(t, err, &boundary)
	assert.Equal(t, execution.CodeNotFound, boundary.Code)

	// --- Step 2: First shift reports 60, the order starts ---
	first, err := exec.RecordResult(ctx, actor, workresult.RecordRequest{
		WorkOrderID:    wo.ID,
		Quantity:       decimal.NewFromInt(60),
		GoodQuantity:   decimal.NewFromInt(55),
		DefectQuantity: decimal.NewFromInt(5),
		DefectReason:   "burrs",
		WorkStartTime:  testutil.At(7, 0, 0),
		WorkEndTime:    testutil.At(9, 0, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StateInProgress, first.Order.State)
	require.NotNil(t, first.Order.ActualStartDate)
	assert.True(t, first.Order.ActualStartDate.Equal(testutil.At(7, 0, 0)))

	// --- Step 3: Ten terminals report 10 each at once; only 40 fit ---
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := exec.RecordResult(ctx, actor, workresult.RecordRequest{
				WorkOrderID:    wo.ID,
				Quantity:       decimal.NewFromInt(10),
				GoodQuantity:   decimal.NewFromInt(10),
				DefectQuantity: decimal.Zero,
				WorkStartTime:  testutil.At(9, 0, 0),
				WorkEndTime:    testutil.At(10, 0, 0),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, succeeded)

	// --- Step 4: The press breaks down during the order ---
	ev, err := exec.OpenDowntime(ctx, actor, downtime.OpenRequest{
		EquipmentID:  "E1",
		DowntimeCode: "DT-HYD",
		DowntimeType: model.DowntimeBreakdown,
		StartTime:    testutil.At(8, 0, 0),
		WorkOrderID:  &wo.ID,
	})
	require.NoError(t, err)

	mon := monitor.NewService(cfg.Monitor, appStore, dispatcher, zap.NewNop())
	report, err := mon.RunOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Open, 1)
	assert.Len(t, report.Long, 1, "a 2024 breakdown is a long stoppage today")

	_, err = exec.ResolveDowntime(ctx, actor, ev.ID, downtime.ResolveRequest{
		EndTime:        testutil.At(8, 45, 0),
		Countermeasure: "replaced hydraulic hose",
	})
	require.NoError(t, err)

	report, err = mon.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Open)

	// --- Step 5: Complete, close and deactivate ---
	out, err := exec.Transition(ctx, actor, wo.ID, "complete")
	require.NoError(t, err)
	assert.Empty(t, out.Warnings, "the order hit its plan exactly")

	snap, err := exec.GetWorkOrderSnapshot(ctx, actor, wo.ID)
	require.NoError(t, err)
	assert.True(t, snap.Order.ActualQuantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, snap.Order.ActualQuantity.Equal(snap.Order.GoodQuantity.Add(snap.Order.DefectQuantity)))
	assert.Len(t, snap.Results, 5)
	assert.Equal(t, 45, snap.DowntimeMinutes)
	assert.True(t, snap.CompletionPercent.Equal(decimal.NewFromInt(100)))

	_, err = exec.ReverseResult(ctx, actor, first.Result.ID)
	require.ErrorAs(t, err, &boundary)
	assert.Equal(t, execution.CodeState, boundary.Code)

	_, err = exec.Transition(ctx, actor, wo.ID, "close")
	require.NoError(t, err)
	deactivated, err := exec.DeactivateWorkOrder(ctx, actor, wo.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	// --- Step 6: Every attempt, failed ones included, reaches the audit log ---
	require.Eventually(t, func() bool {
		var failed int64
		db.Model(&model.AuditLog{}).Where("action = ? AND success = ?", "workresult.record", false).Count(&failed)
		return failed == 6
	}, 2*time.Second, 20*time.Millisecond)

	var transitions int64
	require.NoError(t, db.Model(&model.AuditLog{}).Where("entity_type = ? AND success = ?", audit.EntityWorkOrder, true).Count(&transitions).Error)
	assert.GreaterOrEqual(t, transitions, int64(4))
}
