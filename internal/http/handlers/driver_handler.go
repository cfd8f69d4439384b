// README: Driver handlers for registration, lookup and radius search.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"kitchenline/internal/modules/location"
	"kitchenline/internal/types"
)

type DriverHandler struct {
	location *location.Service
}

func NewDriverHandler(svc *location.Service) *DriverHandler {
	return &DriverHandler{location: svc}
}

type registerDriverReq struct {
	ID                  string `json:"id"`
	FirstName           string `json:"firstName"`
	LastName            string `json:"lastName"`
	Phone               string `json:"phone"`
	VehicleType         string `json:"vehicleType"`
	VehicleRegistration string `json:"vehicleRegistration"`
	DeviceToken         string `json:"deviceToken"`
}

func (h *DriverHandler) Register(c *gin.Context) {
	var req registerDriverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ID != "" && !isValidID(req.ID) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	d, err := h.location.RegisterDriver(c.Request.Context(), location.Driver{
		ID:                  types.ID(req.ID),
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		Phone:               req.Phone,
		VehicleType:         req.VehicleType,
		VehicleRegistration: req.VehicleRegistration,
		DeviceToken:         req.DeviceToken,
	})
	if err != nil {
		writeLocationError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, d)
}

func (h *DriverHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	view, err := h.location.Driver(c.Request.Context(), types.ID(id))
	if err != nil {
		writeLocationError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view)
}

// Nearby handles GET /api/drivers/nearby?lat=&lng=&radiusKm=&limit=.
func (h *DriverHandler) Nearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, http.StatusBadRequest, "lat and lng required")
		return
	}
	radius := 5.0
	if raw := c.Query("radiusKm"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid radiusKm")
			return
		}
		radius = v
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, err := h.location.Nearby(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius, limit)
	if err != nil {
		writeLocationError(c, err)
		return
	}
	if list == nil {
		list = []location.Nearby{}
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": list})
}
