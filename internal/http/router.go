// README: HTTP router registration.
package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kitchenline/internal/http/handlers"
	"kitchenline/internal/http/middleware"
	"kitchenline/internal/modules/kitchen"
	"kitchenline/internal/modules/location"
	"kitchenline/internal/modules/order"
	"kitchenline/internal/modules/realtime"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterDeps struct {
	Orders         *order.Service
	Locations      *location.Service
	Scheduler      *kitchen.Scheduler
	Hub            *realtime.Hub
	Broadcaster    *realtime.Broadcaster
	AllowedOrigins []string
	SendBuffer     int
	Checks         map[string]HealthCheck
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logging(), middleware.Recovery())

	r.GET("/health", health(deps.Checks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.Broadcaster, deps.AllowedOrigins, deps.SendBuffer)
	r.GET("/ws", realtimeHandler.Connect)

	api := r.Group("/api")

	orderHandler := handlers.NewOrderHandler(deps.Orders)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders", orderHandler.List)
	api.GET("/orders/:id", orderHandler.Get)
	api.PATCH("/orders/:id/status", orderHandler.UpdateStatus)
	api.POST("/orders/:id/assign", orderHandler.AssignDriver)
	api.POST("/orders/:id/delivery", orderHandler.AdvanceDelivery)
	api.DELETE("/orders/:id", orderHandler.Delete)

	kitchenHandler := handlers.NewKitchenHandler(deps.Orders, deps.Scheduler)
	api.GET("/kitchen/queue", kitchenHandler.Queue)

	locationHandler := handlers.NewLocationHandler(deps.Locations)
	api.POST("/location", locationHandler.Report)

	driverHandler := handlers.NewDriverHandler(deps.Locations)
	api.POST("/drivers", driverHandler.Register)
	api.GET("/drivers/nearby", driverHandler.Nearby)
	api.GET("/drivers/:id", driverHandler.Get)

	api.POST("/menu/updated", realtimeHandler.MenuUpdated)
	api.GET("/realtime/stats", realtimeHandler.Stats)

	return r
}

func health(checks map[string]HealthCheck) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		failed := map[string]string{}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
