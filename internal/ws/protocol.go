package ws

import "encoding/json"

// Envelope is the message sent to every observer. Seq increases by one per
// published event across the whole broadcaster.
type Envelope struct {
	Namespace string `json:"namespace"`
	Event     string `json:"event"`
	Seq       uint64 `json:"seq"`
	Data      any    `json:"data"`
}

// RawEnvelope is the decoding side used by clients that do not know the
// payload type up front.
type RawEnvelope struct {
	Namespace string          `json:"namespace"`
	Event     string          `json:"event"`
	Seq       uint64          `json:"seq"`
	Data      json.RawMessage `json:"data"`
}

type connectRequest struct {
	Port string `json:"port"`
	Baud int    `json:"baud"`
}

type commandRequest struct {
	Command string `json:"command"`
}

type errorResponse struct {
	Error string `json:"error"`
	State any    `json:"state,omitempty"`
}
