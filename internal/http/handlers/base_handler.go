// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kitchenline/internal/logging"
	"kitchenline/internal/modules/location"
	"kitchenline/internal/modules/order"
	"kitchenline/internal/modules/realtime"
)

type errorResponse struct {
	Error                 string `json:"error"`
	CurrentStatus         string `json:"currentStatus,omitempty"`
	CurrentDeliveryStatus string `json:"currentDeliveryStatus,omitempty"`
}

// isValidID accepts the hex IDs we generate as well as short client-chosen slugs.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeOrderError(c *gin.Context, err error) {
	var te *order.TransitionError
	switch {
	case errors.As(err, &te):
		resp := errorResponse{Error: err.Error()}
		if te.Machine == "delivery" {
			resp.CurrentDeliveryStatus = te.From
		} else {
			resp.CurrentStatus = te.From
		}
		writeJSON(c, http.StatusConflict, resp)
	case errors.Is(err, order.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrConflict), errors.Is(err, order.ErrNotAssigned), errors.Is(err, order.ErrDuplicateNumber):
		writeError(c, http.StatusConflict, err.Error())
	default:
		internalError(c, err)
	}
}

func writeLocationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, location.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, location.ErrDriverNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, location.ErrNotAssigned):
		writeError(c, http.StatusConflict, err.Error())
	default:
		internalError(c, err)
	}
}

func writeRealtimeError(c *gin.Context, err error) {
	if errors.Is(err, realtime.ErrInvalidPayload) {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	internalError(c, err)
}

func internalError(c *gin.Context, err error) {
	logging.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	writeError(c, http.StatusInternalServerError, "internal error")
}
