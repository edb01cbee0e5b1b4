package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"hostel-laundry-backend/internal/resolver"
	"hostel-laundry-backend/internal/sched"
	"hostel-laundry-backend/internal/session"
	"hostel-laundry-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	resolver  *resolver.Resolver
	sessions  *session.Manager
	webpush   *webpush.Options
	clock     sched.Clock
	houses    []string
	locations []string
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, r *resolver.Resolver, sess *session.Manager, webpushOptions *webpush.Options, clock sched.Clock, houses, locations []string) *Handler {
	return &Handler{
		store:     s,
		resolver:  r,
		sessions:  sess,
		webpush:   webpushOptions,
		clock:     clock,
		houses:    houses,
		locations: locations,
	}
}

// renderOutcome maps a resolver outcome onto the HTTP surface. Conflicts
// and rule rejections are ordinary responses, never 5xx.
func (h *Handler) renderOutcome(c *gin.Context, res *resolver.Result, err error) {
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrConcurrentConflict):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "conflicting update, retry"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
		}
		return
	}

	switch {
	case res.Conflict != nil:
		c.JSON(http.StatusConflict, gin.H{
			"conflict": gin.H{
				"owner":        res.Conflict.OwnerName,
				"owner_id":     res.Conflict.OwnerID,
				"minutes_left": res.Conflict.MinutesLeft,
			},
		})
	case res.Rejection != nil:
		body := gin.H{"error": res.Rejection.Reason}
		status := http.StatusConflict
		if res.Rejection.RetryAfter > 0 {
			body["retry_after_seconds"] = int(res.Rejection.RetryAfter.Seconds())
			status = http.StatusTooManyRequests
		}
		if res.Rejection.Reason == "rate-limited" {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, body)
	default:
		c.JSON(http.StatusOK, h.machineView(res.Machine))
	}
}
