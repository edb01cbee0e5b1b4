package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"hostel-laundry-backend/internal/mw"
)

// RouterOptions tunes the ambient middleware.
type RouterOptions struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.RequestLogger())

	// Uptime monitors ping this to keep the instance awake.
	r.GET("/", func(c *gin.Context) { c.String(200, "OK") })

	rateLimiter := mw.RateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst)

	cacheStore := cache.New(opts.CacheTTL, 10*opts.CacheTTL)
	caching := mw.Cache(cacheStore, opts.CacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/machines", caching, h.GetMachines)
		api.GET("/machines/:id", h.GetMachine)
		api.GET("/stats", caching, h.GetStats)

		api.POST("/machines/:id/start", h.StartCycle)
		api.POST("/machines/:id/stop", h.StopOwn)
		api.POST("/machines/:id/force-stop", h.ForceStop)
		api.POST("/machines/:id/collect", h.Collect)
		api.POST("/machines/:id/ping", h.Ping)
		api.POST("/machines/:id/report", h.Report)

		api.POST("/register", h.BeginRegistration)
		api.POST("/register/step", h.SubmitRegistrationStep)

		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
