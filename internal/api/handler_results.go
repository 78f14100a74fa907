package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mes-execution-backend/internal/mw"
	"mes-execution-backend/internal/workresult"
)

// GetWorkResult handles GET /api/v1/work-results/:id.
func (h *Handler) GetWorkResult(c *gin.Context) {
	r, err := h.exec.GetWorkResult(c.Request.Context(), mw.ActorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// UpdateWorkResult handles PUT /api/v1/work-results/:id.
func (h *Handler) UpdateWorkResult(c *gin.Context) {
	var patch workresult.Patch
	if !bind(c, &patch) {
		return
	}
	out, err := h.exec.UpdateResult(c.Request.Context(), mw.ActorFrom(c), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// ReverseWorkResult handles POST /api/v1/work-results/:id/reverse.
func (h *Handler) ReverseWorkResult(c *gin.Context) {
	out, err := h.exec.ReverseResult(c.Request.Context(), mw.ActorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}
