package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mes-execution-backend/internal/downtime"
	"mes-execution-backend/internal/mw"
	"mes-execution-backend/internal/store"
)

// OpenDowntime handles POST /api/v1/downtime.
func (h *Handler) OpenDowntime(c *gin.Context) {
	var req downtime.OpenRequest
	if !bind(c, &req) {
		return
	}
	ev, err := h.exec.OpenDowntime(c.Request.Context(), mw.ActorFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, ev)
}

// ListDowntime handles GET /api/v1/downtime.
func (h *Handler) ListDowntime(c *gin.Context) {
	params := store.DowntimeListParams{
		EquipmentID: c.Query("equipmentId"),
		WorkOrderID: c.Query("workOrderId"),
		Page:        queryInt(c, "page", 1),
		Size:        queryInt(c, "size", 20),
	}
	params.Page, params.Size = store.NormalizePage(params.Page, params.Size)
	if open := queryBool(c, "openOnly"); open != nil {
		params.OpenOnly = *open
	}
	events, total, err := h.exec.ListDowntime(c.Request.Context(), mw.ActorFrom(c), params)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, page{Items: events, Total: total, Page: params.Page, Size: params.Size})
}

// GetDowntime handles GET /api/v1/downtime/:id.
func (h *Handler) GetDowntime(c *gin.Context) {
	ev, err := h.exec.GetDowntime(c.Request.Context(), mw.ActorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, ev)
}

// ResolveDowntime handles POST /api/v1/downtime/:id/resolve.
func (h *Handler) ResolveDowntime(c *gin.Context) {
	var req downtime.ResolveRequest
	if !bind(c, &req) {
		return
	}
	ev, err := h.exec.ResolveDowntime(c.Request.Context(), mw.ActorFrom(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, ev)
}

// UpdateDowntime handles PATCH /api/v1/downtime/:id.
func (h *Handler) UpdateDowntime(c *gin.Context) {
	var patch downtime.Patch
	if !bind(c, &patch) {
		return
	}
	ev, err := h.exec.UpdateDowntime(c.Request.Context(), mw.ActorFrom(c), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, ev)
}

// AnnotateDowntime handles POST /api/v1/downtime/:id/notes.
func (h *Handler) AnnotateDowntime(c *gin.Context) {
	var notes downtime.Notes
	if !bind(c, &notes) {
		return
	}
	ev, err := h.exec.AnnotateDowntime(c.Request.Context(), mw.ActorFrom(c), c.Param("id"), notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, ev)
}
