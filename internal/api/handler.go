package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mes-execution-backend/internal/execution"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	exec *execution.Facade
	log  *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(exec *execution.Facade, log *zap.Logger) *Handler {
	return &Handler{
		exec: exec,
		log:  log,
	}
}

// envelope is the body of every API answer.
type envelope struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    any      `json:"data,omitempty"`
	Fields  []string `json:"fields,omitempty"`
	IDs     []string `json:"ids,omitempty"`
}

// page is the data of a list answer.
type page struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Code: 0, Message: "success", Data: data})
}

func (h *Handler) fail(c *gin.Context, err error) {
	var e *execution.Error
	if !errors.As(err, &e) {
		h.log.Error("unclassified handler error", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{Code: execution.CodeInternal, Message: "internal error"})
		return
	}
	if e.Code == execution.CodeInternal {
		h.log.Error("request failed", zap.Error(err), zap.String("request_id", c.GetString("request_id")))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(e.Status(), envelope{
		Code:    e.Code,
		Message: e.Message,
		Fields:  e.Fields,
		IDs:     e.EntityIDs,
	})
}

// bind decodes the JSON body and answers 40001 when it is malformed.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, envelope{
			Code:    execution.CodeValidation,
			Message: "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string, def int) int {
	if raw := c.Query(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return def
}

func queryBool(c *gin.Context, key string) *bool {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &b
}
