package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mes-execution-backend/config"
	"mes-execution-backend/internal/audit"
	"mes-execution-backend/internal/execution"
	"mes-execution-backend/internal/mw"
	"mes-execution-backend/internal/store"
	"mes-execution-backend/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Fields  []string        `json:"fields"`
	IDs     []string        `json:"ids"`
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := config.Default()
	exec := execution.New(execution.Dependencies{
		Store:   store.NewGormStore(db),
		Refs:    testutil.SeedRefs(),
		Emitter: audit.NewMemory(),
		Config:  cfg.Execution,
		Log:     zap.NewNop(),
	})
	return NewRouter(exec, db, cfg, zap.NewNop())
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) (int, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(mw.HeaderTenantID, testutil.Tenant)
	req.Header.Set(mw.HeaderUserID, testutil.User)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func createOrder(t *testing.T, r *gin.Engine, number string) string {
	t.Helper()
	status, resp := do(t, r, http.MethodPost, "/api/v1/work-orders", gin.H{
		"orderNumber":      number,
		"productId":        testutil.Product,
		"processId":        testutil.Process,
		"plannedQuantity":  100,
		"plannedStartDate": "2024-05-06T08:00:00Z",
		"plannedEndDate":   "2024-05-06T17:00:00Z",
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var wo struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &wo))
	assert.Equal(t, "PLANNED", wo.State)
	return wo.ID
}

func TestWorkOrderFlow(t *testing.T) {
	r := setupRouter(t)
	id := createOrder(t, r, "WO-1")

	status, resp := do(t, r, http.MethodPost, "/api/v1/work-orders/"+id+"/results", gin.H{
		"quantity":       "60",
		"goodQuantity":   "60",
		"defectQuantity": "0",
		"workStartTime":  "2024-05-06T09:00:00Z",
		"workEndTime":    "2024-05-06T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var recorded struct {
		Result struct {
			ID              string `json:"id"`
			DurationMinutes int    `json:"durationMinutes"`
		} `json:"result"`
		Order struct {
			State          string `json:"state"`
			ActualQuantity string `json:"actualQuantity"`
		} `json:"order"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &recorded))
	assert.Equal(t, 60, recorded.Result.DurationMinutes)
	assert.Equal(t, "IN_PROGRESS", recorded.Order.State)
	assert.Equal(t, "60", recorded.Order.ActualQuantity)

	status, resp = do(t, r, http.MethodPost, "/api/v1/work-orders/"+id+"/transitions", gin.H{"action": "close"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, execution.CodeState, resp.Code)

	status, resp = do(t, r, http.MethodPost, "/api/v1/work-orders/"+id+"/transitions", gin.H{"action": "complete"})
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Contains(t, string(resp.Data), "QUANTITY_VARIANCE")

	status, resp = do(t, r, http.MethodGet, "/api/v1/work-orders/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	var snap struct {
		Order struct {
			State string `json:"state"`
		} `json:"order"`
		Results        []json.RawMessage `json:"results"`
		AllowedActions []string          `json:"allowedActions"`
		Variance       string            `json:"variance"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &snap))
	assert.Equal(t, "COMPLETED", snap.Order.State)
	assert.Len(t, snap.Results, 1)
	assert.Equal(t, []string{"close"}, snap.AllowedActions)
	assert.Equal(t, "-40", snap.Variance)

	status, resp = do(t, r, http.MethodPost, "/api/v1/work-results/"+recorded.Result.ID+"/reverse", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, execution.CodeState, resp.Code)

	status, resp = do(t, r, http.MethodGet, "/api/v1/work-orders?state=COMPLETED", nil)
	require.Equal(t, http.StatusOK, status)
	var list page
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	assert.EqualValues(t, 1, list.Total)
}

func TestErrorEnvelopes(t *testing.T) {
	r := setupRouter(t)
	id := createOrder(t, r, "WO-1")

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   int
		wantFields []string
		wantIDs    []string
	}{
		{"unknown action", http.MethodPost, "/api/v1/work-orders/" + id + "/transitions", gin.H{"action": "explode"}, http.StatusBadRequest, execution.CodeValidation, []string{"action"}, nil},
		{"missing action", http.MethodPost, "/api/v1/work-orders/" + id + "/transitions", gin.H{}, http.StatusBadRequest, execution.CodeValidation, nil, nil},
		{"unknown order", http.MethodGet, "/api/v1/work-orders/nope", nil, http.StatusNotFound, execution.CodeNotFound, nil, []string{"nope"}},
		{"duplicate number", http.MethodPost, "/api/v1/work-orders", gin.H{
			"orderNumber":      "WO-1",
			"productId":        testutil.Product,
			"processId":        testutil.Process,
			"plannedQuantity":  10,
			"plannedStartDate": "2024-05-06T08:00:00Z",
			"plannedEndDate":   "2024-05-06T17:00:00Z",
		}, http.StatusConflict, execution.CodeConflict, []string{"orderNumber"}, nil},
		{"backwards result", http.MethodPost, "/api/v1/work-orders/" + id + "/results", gin.H{
			"quantity":       5,
			"goodQuantity":   5,
			"defectQuantity": 0,
			"workStartTime":  "2024-05-06T10:00:00Z",
			"workEndTime":    "2024-05-06T09:00:00Z",
		}, http.StatusBadRequest, execution.CodeInvalidInterval, []string{"workStartTime", "workEndTime"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Message)
			if tt.wantFields != nil {
				assert.ElementsMatch(t, tt.wantFields, resp.Fields)
			}
			if tt.wantIDs != nil {
				assert.Equal(t, tt.wantIDs, resp.IDs)
			}
		})
	}
}

func TestDowntimeFlow(t *testing.T) {
	r := setupRouter(t)
	open := gin.H{
		"equipmentId":  testutil.Equipment,
		"downtimeCode": "DT-1",
		"downtimeType": "BREAKDOWN",
		"startTime":    "2024-05-06T08:00:00Z",
	}

	status, resp := do(t, r, http.MethodPost, "/api/v1/downtime", open)
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var ev struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &ev))

	status, resp = do(t, r, http.MethodPost, "/api/v1/downtime", open)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, execution.CodeConflict, resp.Code)

	status, resp = do(t, r, http.MethodPost, "/api/v1/downtime/"+ev.ID+"/resolve", gin.H{"endTime": "2024-05-06T08:30:00Z"})
	require.Equal(t, http.StatusOK, status, resp.Message)
	var resolved struct {
		DurationMinutes int  `json:"durationMinutes"`
		IsResolved      bool `json:"isResolved"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &resolved))
	assert.Equal(t, 30, resolved.DurationMinutes)
	assert.True(t, resolved.IsResolved)

	status, resp = do(t, r, http.MethodPost, "/api/v1/downtime/"+ev.ID+"/notes", gin.H{"remarks": "belt replaced"})
	require.Equal(t, http.StatusOK, status, resp.Message)
	assert.Contains(t, string(resp.Data), "belt replaced")

	status, resp = do(t, r, http.MethodGet, "/api/v1/downtime?equipmentId="+testutil.Equipment, nil)
	require.Equal(t, http.StatusOK, status)
	var list page
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	assert.EqualValues(t, 1, list.Total)
}

func TestIdentityRequired(t *testing.T) {
	r := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/work-orders", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMalformedBody(t *testing.T) {
	r := setupRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/work-orders", bytes.NewBufferString("{"))
	req.Header.Set(mw.HeaderTenantID, testutil.Tenant)
	req.Header.Set(mw.HeaderUserID, testutil.User)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":40001`)
}

func TestEnumsAndHealth(t *testing.T) {
	r := setupRouter(t)
	status, resp := do(t, r, http.MethodGet, "/api/v1/meta/enums", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), "BREAKDOWN")
	assert.Contains(t, string(resp.Data), `"CONFLICT":40901`)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGzipResponses(t *testing.T) {
	r := setupRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/meta/enums", nil)
	req.Header.Set(mw.HeaderTenantID, testutil.Tenant)
	req.Header.Set(mw.HeaderUserID, testutil.User)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	status, resp := do(t, r, http.MethodGet, "/api/v1/meta/enums", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, resp.Code, "a plain client is not served the cached compressed variant")
}

func TestListsReportEffectivePaging(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name     string
		path     string
		wantPage int
		wantSize int
	}{
		{"work orders size capped", "/api/v1/work-orders?page=0&size=1000", 1, 200},
		{"work orders explicit", "/api/v1/work-orders?page=3&size=5", 3, 5},
		{"downtime size defaulted", "/api/v1/downtime?size=-3", 1, 20},
		{"downtime size capped", "/api/v1/downtime?page=2&size=500", 2, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := do(t, r, http.MethodGet, tt.path, nil)
			require.Equal(t, http.StatusOK, status)
			var list page
			require.NoError(t, json.Unmarshal(resp.Data, &list))
			assert.Equal(t, tt.wantPage, list.Page)
			assert.Equal(t, tt.wantSize, list.Size)
		})
	}
}
