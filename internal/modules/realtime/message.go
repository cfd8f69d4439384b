package realtime

// Server to client event types.
const (
	EventNewOrder              = "new-order"
	EventOrderStatusUpdated    = "order-status-updated"
	EventOrderDeleted          = "order-deleted"
	EventDriverLocationUpdated = "driver-location-updated"
	EventMenuUpdated           = "menu-updated"

	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
	MessageTypeError = "error"
	MessageTypeAck   = "ack"
)

// Message is the wire envelope for every frame the hub sends.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ClientMessage is what clients send: a join/leave/ping type plus optional data.
type ClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

type ack struct {
	Action Action `json:"action"`
	Room   Room   `json:"room"`
}

type errorPayload struct {
	Message string `json:"message"`
}
