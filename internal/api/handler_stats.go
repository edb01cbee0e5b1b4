package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hostel-laundry-backend/internal/lifecycle"
	"hostel-laundry-backend/internal/model"
)

// locationStats summarizes one laundry room by presented status.
type locationStats struct {
	Location  string `json:"location"`
	Available int    `json:"available"`
	Running   int    `json:"running"`
	Finished  int    `json:"finished"`
}

type forceStopView struct {
	MachineID string    `json:"machine_id"`
	At        time.Time `json:"at"`
}

// GetStats handles GET /api/stats.
func (h *Handler) GetStats(c *gin.Context) {
	machines, err := h.store.ListMachines(c.Request.Context(), "")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve machines"})
		return
	}

	now := h.clock.Now()
	byLocation := make(map[string]*locationStats)
	order := []string{}
	for i := range machines {
		m := &machines[i]
		s, ok := byLocation[m.Location]
		if !ok {
			s = &locationStats{Location: m.Location}
			byLocation[m.Location] = s
			order = append(order, m.Location)
		}
		switch lifecycle.PresentStatus(m, now) {
		case model.StatusRunning:
			s.Running++
		case model.StatusFinished:
			s.Finished++
		default:
			s.Available++
		}
	}

	out := make([]locationStats, 0, len(order))
	for _, loc := range order {
		out = append(out, *byLocation[loc])
	}

	audits, err := h.store.ListRecentAudits(c.Request.Context(),
		model.EventForceStop, now.Add(-24*time.Hour), 10)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve stats"})
		return
	}
	forceStops := make([]forceStopView, 0, len(audits))
	for _, a := range audits {
		forceStops = append(forceStops, forceStopView{MachineID: a.MachineID, At: a.CreatedAt})
	}

	c.JSON(http.StatusOK, gin.H{
		"locations":          out,
		"total":              len(machines),
		"recent_force_stops": forceStops,
	})
}
