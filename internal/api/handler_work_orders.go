package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mes-execution-backend/internal/model"
	"mes-execution-backend/internal/mw"
	"mes-execution-backend/internal/store"
	"mes-execution-backend/internal/workorder"
	"mes-execution-backend/internal/workresult"
)

// CreateWorkOrder handles POST /api/v1/work-orders.
func (h *Handler) CreateWorkOrder(c *gin.Context) {
	var req workorder.CreateRequest
	if !bind(c, &req) {
		return
	}
	wo, err := h.exec.CreateWorkOrder(c.Request.Context(), mw.ActorFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, wo)
}

// ListWorkOrders handles GET /api/v1/work-orders.
func (h *Handler) ListWorkOrders(c *gin.Context) {
	params := store.WorkOrderListParams{
		State:     model.WorkOrderState(c.Query("state")),
		ProductID: c.Query("productId"),
		Keyword:   c.Query("keyword"),
		Active:    queryBool(c, "active"),
		Page:      queryInt(c, "page", 1),
		Size:      queryInt(c, "size", 20),
	}
	params.Page, params.Size = store.NormalizePage(params.Page, params.Size)
	orders, total, err := h.exec.ListWorkOrders(c.Request.Context(), mw.ActorFrom(c), params)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, page{Items: orders, Total: total, Page: params.Page, Size: params.Size})
}

// GetWorkOrder handles GET /api/v1/work-orders/:id and answers the snapshot.
func (h *Handler) GetWorkOrder(c *gin.Context) {
	snap, err := h.exec.GetWorkOrderSnapshot(c.Request.Context(), mw.ActorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, snap)
}

type transitionRequest struct {
	Action string `json:"action" binding:"required"`
}

// TransitionWorkOrder handles POST /api/v1/work-orders/:id/transitions.
func (h *Handler) TransitionWorkOrder(c *gin.Context) {
	var req transitionRequest
	if !bind(c, &req) {
		return
	}
	out, err := h.exec.Transition(c.Request.Context(), mw.ActorFrom(c), c.Param("id"), req.Action)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// DeactivateWorkOrder handles POST /api/v1/work-orders/:id/deactivate.
func (h *Handler) DeactivateWorkOrder(c *gin.Context) {
	wo, err := h.exec.DeactivateWorkOrder(c.Request.Context(), mw.ActorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, wo)
}

// RecordResult handles POST /api/v1/work-orders/:id/results. The path id wins
// over any work order id in the body.
func (h *Handler) RecordResult(c *gin.Context) {
	var req workresult.RecordRequest
	if !bind(c, &req) {
		return
	}
	req.WorkOrderID = c.Param("id")
	out, err := h.exec.RecordResult(c.Request.Context(), mw.ActorFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, out)
}
