package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hostel-laundry-backend/internal/lifecycle"
	"hostel-laundry-backend/internal/model"
)

// machineView is the status projection clients render. Status is the
// presented status, not the raw stored one.
type machineView struct {
	ID          string              `json:"id"`
	Kind        model.MachineKind   `json:"kind"`
	Location    string              `json:"location"`
	Status      model.MachineStatus `json:"status"`
	MinutesLeft *int                `json:"minutes_left,omitempty"`
	ReadyAgoMin *int                `json:"ready_ago_minutes,omitempty"`
	Owner       string              `json:"owner,omitempty"`
	LastOwner   string              `json:"last_owner,omitempty"`
	CycleEnd    *time.Time          `json:"cycle_end,omitempty"`
}

func (h *Handler) machineView(m *model.Machine) machineView {
	now := h.clock.Now()
	v := machineView{
		ID:       m.ID,
		Kind:     m.Kind,
		Location: m.Location,
		Status:   lifecycle.PresentStatus(m, now),
		CycleEnd: m.CycleEnd,
	}

	switch v.Status {
	case model.StatusRunning:
		if m.CycleEnd != nil {
			left := lifecycle.MinutesDelta(now, *m.CycleEnd)
			v.MinutesLeft = &left
		}
		if m.CurrentOwner != nil {
			v.Owner = m.CurrentOwner.Label()
		}
	case model.StatusFinished:
		if m.CycleEnd != nil {
			ago := lifecycle.MinutesDelta(now, *m.CycleEnd)
			v.ReadyAgoMin = &ago
		}
		if m.LastOwner != nil {
			v.LastOwner = m.LastOwner.Label()
		}
	}
	return v
}

// GetMachines handles GET /api/machines?location=9.
func (h *Handler) GetMachines(c *gin.Context) {
	machines, err := h.store.ListMachines(c.Request.Context(), c.Query("location"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve machines"})
		return
	}

	views := make([]machineView, 0, len(machines))
	for i := range machines {
		views = append(views, h.machineView(&machines[i]))
	}
	c.JSON(http.StatusOK, views)
}

// GetMachine handles GET /api/machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	m, err := h.store.GetMachine(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderOutcome(c, nil, err)
		return
	}

	view := h.machineView(m)
	resp := gin.H{"machine": view}
	if view.Status != model.StatusRunning {
		// Offer the duration menu when the machine can be started.
		durations := lifecycle.AllowedDurations(m.Kind)
		minutes := make([]int, len(durations))
		for i, d := range durations {
			minutes[i] = int(d.Minutes())
		}
		resp["allowed_minutes"] = minutes
	}
	c.JSON(http.StatusOK, resp)
}
