package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type actorRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

type startRequest struct {
	UserID  int64 `json:"user_id" binding:"required"`
	Minutes int   `json:"minutes" binding:"required"`
}

type reportRequest struct {
	UserID  int64  `json:"user_id" binding:"required"`
	Message string `json:"message"`
}

// StartCycle handles POST /api/machines/:id/start.
func (h *Handler) StartCycle(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.resolver.StartCycle(c.Request.Context(), req.UserID, c.Param("id"),
		time.Duration(req.Minutes)*time.Minute)
	h.renderOutcome(c, res, err)
}

// StopOwn handles POST /api/machines/:id/stop, the owner ending their own
// cycle early.
func (h *Handler) StopOwn(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.resolver.StopOwn(c.Request.Context(), req.UserID, c.Param("id"))
	h.renderOutcome(c, res, err)
}

// ForceStop handles POST /api/machines/:id/force-stop.
func (h *Handler) ForceStop(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.resolver.ForceStop(c.Request.Context(), req.UserID, c.Param("id"))
	h.renderOutcome(c, res, err)
}

// Collect handles POST /api/machines/:id/collect.
func (h *Handler) Collect(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.resolver.Collect(c.Request.Context(), req.UserID, c.Param("id"))
	h.renderOutcome(c, res, err)
}

// Ping handles POST /api/machines/:id/ping, nudging the last owner of a
// finished machine.
func (h *Handler) Ping(c *gin.Context) {
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.resolver.Ping(c.Request.Context(), req.UserID, c.Param("id"))
	h.renderOutcome(c, res, err)
}

// Report handles POST /api/machines/:id/report, filing a discrepancy
// complaint.
func (h *Handler) Report(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.resolver.Report(c.Request.Context(), req.UserID, c.Param("id"), req.Message)
	if err == nil && res.Applied {
		c.JSON(http.StatusCreated, gin.H{"status": "reported"})
		return
	}
	h.renderOutcome(c, res, err)
}
