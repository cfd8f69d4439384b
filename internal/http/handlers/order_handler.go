// README: Order handlers for create, read, list, status and delivery transitions, delete.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kitchenline/internal/modules/order"
	"kitchenline/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type createOrderReq struct {
	OrderNumber  string       `json:"orderNumber"`
	OrderType    string       `json:"orderType"`
	CustomerName string       `json:"customerName"`
	Items        []order.Item `json:"items"`
	PickupDate   string       `json:"pickupDate"`
	PickupTime   string       `json:"pickupTime"`
	DeliveryDate string       `json:"deliveryDate"`
	DeliveryTime string       `json:"deliveryTime"`
	PreorderDate string       `json:"preorderDate"`
	PreorderTime string       `json:"preorderTime"`
	DeliveryLat  *float64     `json:"deliveryLat"`
	DeliveryLng  *float64     `json:"deliveryLng"`
	Total        types.Money  `json:"total"`
	DeliveryFee  types.Money  `json:"deliveryFee"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		OrderNumber:  req.OrderNumber,
		OrderType:    order.Type(req.OrderType),
		CustomerName: req.CustomerName,
		Items:        req.Items,
		Pickup:       types.Slot{Date: req.PickupDate, Time: req.PickupTime},
		Delivery:     types.Slot{Date: req.DeliveryDate, Time: req.DeliveryTime},
		Preorder:     types.Slot{Date: req.PreorderDate, Time: req.PreorderTime},
		DeliveryLat:  req.DeliveryLat,
		DeliveryLng:  req.DeliveryLng,
		Total:        req.Total,
		DeliveryFee:  req.DeliveryFee,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := h.order.Get(c.Request.Context(), id)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

// List handles GET /api/orders?status=a,b&orderType=&driverId=&customerName=&from=&to=.
func (h *OrderHandler) List(c *gin.Context) {
	f, err := order.ParseFilter(c.Request.URL.Query())
	if err != nil {
		writeOrderError(c, err)
		return
	}
	list, err := h.order.List(c.Request.Context(), f)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if list == nil {
		list = []*order.Order{}
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": list})
}

type transitionReq struct {
	Status     string `json:"status"`
	FromStatus string `json:"fromStatus"`
	Actor      string `json:"actor"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req transitionReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "missing status")
		return
	}
	actor, ok := parseActor(c, req.Actor, order.ActorKitchen)
	if !ok {
		return
	}
	from := order.Status(req.FromStatus)
	if from != "" && !from.Valid() {
		writeError(c, http.StatusBadRequest, "unknown fromStatus")
		return
	}
	o, err := h.order.Transition(c.Request.Context(), order.TransitionCommand{
		OrderID: id,
		From:    from,
		To:      order.Status(req.Status),
		Actor:   actor,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type assignReq struct {
	DriverID string `json:"driverId"`
	Actor    string `json:"actor"`
}

func (h *OrderHandler) AssignDriver(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(req.DriverID) {
		writeError(c, http.StatusBadRequest, "missing driverId")
		return
	}
	actor, ok := parseActor(c, req.Actor, order.ActorAdmin)
	if !ok {
		return
	}
	o, err := h.order.AssignDriver(c.Request.Context(), order.AssignDriverCommand{
		OrderID:  id,
		DriverID: types.ID(req.DriverID),
		Actor:    actor,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type deliveryReq struct {
	DriverID       string `json:"driverId"`
	DeliveryStatus string `json:"deliveryStatus"`
}

func (h *OrderHandler) AdvanceDelivery(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var req deliveryReq
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(req.DriverID) || req.DeliveryStatus == "" {
		writeError(c, http.StatusBadRequest, "missing driverId or deliveryStatus")
		return
	}
	o, err := h.order.AdvanceDelivery(c.Request.Context(), order.AdvanceDeliveryCommand{
		OrderID:  id,
		DriverID: types.ID(req.DriverID),
		To:       order.DeliveryStatus(req.DeliveryStatus),
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Delete(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	if err := h.order.Delete(c.Request.Context(), id); err != nil {
		writeOrderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func orderID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return "", false
	}
	return types.ID(id), true
}

// parseActor falls back to def for an empty actor and rejects unknown ones.
func parseActor(c *gin.Context, raw string, def order.Actor) (order.Actor, bool) {
	if raw == "" {
		return def, true
	}
	actor := order.Actor(raw)
	if !actor.Valid() {
		writeError(c, http.StatusBadRequest, "unknown actor")
		return "", false
	}
	return actor, true
}
