package protocol

// WebSocket message type constants
const (
	WSTypeOutcome = "outcome"
	WSTypeStatus  = "status"
	WSTypeInject  = "inject"
	WSTypeError   = "error"
)

// WebSocketMessage is the generic message envelope for WebSocket communication.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is for incoming requests from WebSocket clients.
type WebSocketRequest struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// WebSocketResponse is for responses to WebSocket requests.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OutcomePayload is broadcast after every handled bus message.
type OutcomePayload struct {
	EventID    string `json:"eventId"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
	Tag        string `json:"tag,omitempty"`
	Action     string `json:"action,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Album      string `json:"album,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Time       string `json:"time"` // RFC3339
}
