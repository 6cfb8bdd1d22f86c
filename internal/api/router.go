package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"hourmeter-backend/config"
	"hourmeter-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. A nil gatherer leaves
// out the /metrics endpoint.
func NewRouter(h *Handler, cfg config.ServerConfig, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	responses := mw.NewResponseCache(time.Duration(cfg.CacheTTLSeconds) * time.Second)
	caching := responses.Cache()

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.Use(rateLimiter, responses.InvalidateOnWrite())
	{
		api.GET("/machines", caching, h.ListMachines)
		api.POST("/machines", h.CreateMachine)
		api.GET("/machines/:id", caching, h.GetMachine)
		api.PUT("/machines/:id/schedule", h.PutSchedule)
		api.POST("/machines/:id/deactivate", h.SetMachineActive(false))
		api.POST("/machines/:id/reactivate", h.SetMachineActive(true))

		api.POST("/machines/:id/alarms", h.AddAlarm)
		api.POST("/machines/:id/alarms/:alarm_id/deactivate", h.SetAlarmActive(false))
		api.POST("/machines/:id/alarms/:alarm_id/reactivate", h.SetAlarmActive(true))

		api.GET("/runs", h.ListRuns)
		api.POST("/runs", h.TriggerRun)

		api.GET("/export/maintenance.xlsx", h.ExportMaintenance)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
