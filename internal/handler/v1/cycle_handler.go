package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type cycleRequest struct {
	Name string `json:"name" binding:"required"`
}

func NewCycleHandler(svc CycleService) *CycleHandler {
	return &CycleHandler{svc: svc}
}

func (h *CycleHandler) List(c *gin.Context) {
	cycles, err := h.svc.ListCycles(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, cycles)
}

func (h *CycleHandler) Active(c *gin.Context) {
	active, err := h.svc.ActiveCycle(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, active)
}

func (h *CycleHandler) Create(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req cycleRequest
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.svc.CreateCycle(c.Request.Context(), req.Name, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, created)
}

func (h *CycleHandler) Rename(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req cycleRequest
	if !bindJSON(c, &req) {
		return
	}

	renamed, err := h.svc.Rename(c.Request.Context(), id, req.Name, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, renamed)
}

func (h *CycleHandler) Activate(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	activated, err := h.svc.SetActive(c.Request.Context(), id, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, activated)
}

func (h *CycleHandler) Deactivate(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	deactivated, err := h.svc.Deactivate(c.Request.Context(), id, actor)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, deactivated)
}

// Delete refuses an active cycle with 409 before anything is removed.
func (h *CycleHandler) Delete(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id, actor); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
