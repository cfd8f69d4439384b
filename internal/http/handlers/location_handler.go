// README: Location ingestion handler for driver pings.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kitchenline/internal/modules/location"
	"kitchenline/internal/types"
)

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

type locationReq struct {
	DriverID  string   `json:"driverId"`
	OrderID   string   `json:"orderId"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Timestamp int64    `json:"timestamp"`
}

// Report handles POST /api/location. NotAssigned answers 200 {success:false}.
func (h *LocationHandler) Report(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng required")
		return
	}
	ping := location.Ping{
		DriverID: types.ID(req.DriverID),
		OrderID:  types.ID(req.OrderID),
		Position: types.Point{Lat: *req.Lat, Lng: *req.Lng},
	}
	if req.Timestamp > 0 {
		ping.Timestamp = time.UnixMilli(req.Timestamp)
	}
	res, err := h.location.ReportLocation(c.Request.Context(), ping)
	if errors.Is(err, location.ErrNotAssigned) {
		writeJSON(c, http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err != nil {
		writeLocationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}
