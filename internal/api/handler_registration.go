package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hostel-laundry-backend/internal/model"
	"hostel-laundry-backend/internal/session"
	"hostel-laundry-backend/internal/store"
)

type beginRegistrationRequest struct {
	UserID         int64  `json:"user_id" binding:"required"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	PendingMachine string `json:"pending_machine"`
}

type registrationStepRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Value  string `json:"value" binding:"required"`
}

// BeginRegistration handles POST /api/register. Already-registered users
// get their profile back instead of a new flow; /api/register with
// restart=true re-onboards (the original "reset" command).
func (h *Handler) BeginRegistration(c *gin.Context) {
	var req beginRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("restart") != "true" {
		if u, err := h.store.GetUser(c.Request.Context(), req.UserID); err == nil {
			c.JSON(http.StatusOK, gin.H{
				"registered":   true,
				"display_name": u.DisplayName,
				"location":     u.Location,
			})
			return
		} else if !errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
			return
		}
	}

	h.sessions.Begin(req.UserID, req.Username, req.FirstName, req.PendingMachine)
	c.JSON(http.StatusOK, gin.H{"step": session.StepName})
}

// SubmitRegistrationStep handles POST /api/register/step. Each submission
// answers the current prompt and returns the next one, mirroring the
// original three-question flow.
func (h *Handler) SubmitRegistrationStep(c *gin.Context) {
	var req registrationStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reg, ok := h.sessions.Get(req.UserID)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "no registration in progress"})
		return
	}

	switch reg.Step {
	case session.StepName:
		reg.Name = req.Value
		reg.Step = session.StepLocation
		h.sessions.Save(reg)
		c.JSON(http.StatusOK, gin.H{"step": session.StepLocation, "options": h.locations})

	case session.StepLocation:
		if !contains(h.locations, req.Value) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown location", "options": h.locations})
			return
		}
		reg.Location = req.Value
		reg.Step = session.StepHouse
		h.sessions.Save(reg)
		c.JSON(http.StatusOK, gin.H{"step": session.StepHouse, "options": h.houses})

	case session.StepHouse:
		if !contains(h.houses, req.Value) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown house", "options": h.houses})
			return
		}
		user := &model.User{
			ID:          reg.UserID,
			Username:    reg.Username,
			FirstName:   reg.FirstName,
			DisplayName: reg.Name,
			Location:    reg.Location,
			House:       req.Value,
		}
		if err := h.store.UpsertUser(c.Request.Context(), user); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to save user"})
			return
		}
		h.sessions.Complete(reg.UserID)
		resp := gin.H{"registered": true}
		if reg.PendingMachine != "" {
			resp["pending_machine"] = reg.PendingMachine
		}
		c.JSON(http.StatusCreated, resp)
	}
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
