package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mes-execution-backend/internal/execution"
	"mes-execution-backend/internal/model"
	"mes-execution-backend/internal/workorder"
)

type enumsResponse struct {
	WorkOrderStates []model.WorkOrderState `json:"workOrderStates"`
	Priorities      []model.Priority       `json:"priorities"`
	Actions         []workorder.Action     `json:"actions"`
	DowntimeTypes   []model.DowntimeType   `json:"downtimeTypes"`
	WarningCodes    []string               `json:"warningCodes"`
	ErrorCodes      map[string]int         `json:"errorCodes"`
}

var enums = enumsResponse{
	WorkOrderStates: []model.WorkOrderState{
		model.StatePlanned,
		model.StateInProgress,
		model.StateCompleted,
		model.StateClosed,
		model.StateCancelled,
	},
	Priorities:    []model.Priority{model.PriorityHigh, model.PriorityMedium, model.PriorityLow},
	Actions:       workorder.Actions,
	DowntimeTypes: model.DowntimeTypes,
	WarningCodes:  []string{workorder.WarningQuantityVariance, workorder.WarningOverProduction},
	ErrorCodes: map[string]int{
		"VALIDATION":       execution.CodeValidation,
		"INVALID_INTERVAL": execution.CodeInvalidInterval,
		"NOT_FOUND":        execution.CodeNotFound,
		"CONFLICT":         execution.CodeConflict,
		"STATE":            execution.CodeState,
		"CANCELED":         execution.CodeCanceled,
		"INTERNAL":         execution.CodeInternal,
		"TIMEOUT":          execution.CodeTimeout,
	},
}

// GetEnums handles GET /api/v1/meta/enums.
func GetEnums(c *gin.Context) {
	ok(c, http.StatusOK, enums)
}
