package capture

import "encoding/json"

// Message is the envelope for every websocket message, in both directions.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Message types. payload and reset_listing arrive from the interceptor
// client; trigger_details and status are pushed to it.
const (
	TypePayload        = "payload"
	TypeResetListing   = "reset_listing"
	TypeTriggerDetails = "trigger_details"
	TypeStatus         = "status"
)

// inboundMessage defers data decoding until the type is known.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PayloadData is one observed network response forwarded by the
// interceptor client.
type PayloadData struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// NewStatusMessage wraps a capture-progress update for broadcast.
func NewStatusMessage(data interface{}) Message {
	return Message{Type: TypeStatus, Data: data}
}

// NewTriggerDetailsMessage asks connected clients to make the host page
// emit event-detail responses.
func NewTriggerDetailsMessage() Message {
	return Message{Type: TypeTriggerDetails}
}
