package models

import "encoding/json"

// Frame is the wire shape of every websocket and broker message.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is an outbound frame whose payload is already a Go value.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ErrorPayload is the payload of a "type":"error" frame.
type ErrorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// Wire error codes.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeBrokerError      = "BROKER_ERROR"
	CodeServerError      = "SERVER_ERROR"
)

// ErrorEvent builds an error frame.
func ErrorEvent(code, message string, details map[string]any) Event {
	if details == nil {
		details = map[string]any{}
	}
	return Event{Type: "error", Payload: ErrorPayload{Code: code, Message: message, Details: details}}
}
