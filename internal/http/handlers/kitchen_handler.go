// README: Kitchen queue handler.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kitchenline/internal/modules/kitchen"
	"kitchenline/internal/modules/order"
)

type KitchenHandler struct {
	order     *order.Service
	scheduler *kitchen.Scheduler
	now       func() time.Time
}

func NewKitchenHandler(orders *order.Service, scheduler *kitchen.Scheduler) *KitchenHandler {
	return &KitchenHandler{order: orders, scheduler: scheduler, now: time.Now}
}

// Queue returns active orders in the order the kitchen should work them.
func (h *KitchenHandler) Queue(c *gin.Context) {
	list, err := h.order.List(c.Request.Context(), order.Filter{Statuses: order.ActiveStatuses})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	now := h.now()
	queue := h.scheduler.KitchenQueue(list, now)
	if queue == nil {
		queue = []kitchen.Entry{}
	}
	writeJSON(c, http.StatusOK, gin.H{"queue": queue, "generatedAt": now})
}
