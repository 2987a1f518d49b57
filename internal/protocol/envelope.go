package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope kinds carried on the wire.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Envelope is the outer frame of every wire message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Request is a client-initiated command.
type Request struct {
	// ID correlates the request with its response.
	ID string `json:"id"`
	// Cmd is the "category.action" command string.
	Cmd string `json:"cmd"`
	// Params carries command parameters; decoded per command at the router.
	Params map[string]interface{} `json:"params,omitempty"`
	// ClientID optionally identifies the sending client.
	ClientID string `json:"clientId,omitempty"`
}

// Response answers exactly one request.
type Response struct {
	ID      string      `json:"id"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Event is a server-initiated, unsolicited notification.
type Event struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	SessionID string      `json:"sessionId,omitempty"`
}

// Encode wraps a payload in an envelope and marshals the whole frame.
func Encode(kind string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return json.Marshal(Envelope{Type: kind, Payload: raw})
}

// EncodeRequest frames a request.
func EncodeRequest(req Request) ([]byte, error) {
	return Encode(TypeRequest, req)
}

// EncodeResponse frames a response.
func EncodeResponse(resp Response) ([]byte, error) {
	return Encode(TypeResponse, resp)
}

// EncodeEvent frames an event.
func EncodeEvent(ev Event) ([]byte, error) {
	return Encode(TypeEvent, ev)
}

// Decode parses one wire frame. The payload stays raw; use the typed
// DecodeRequest/DecodeResponse/DecodeEvent helpers on the result.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	switch env.Type {
	case TypeRequest, TypeResponse, TypeEvent:
		return &env, nil
	default:
		return nil, fmt.Errorf("malformed frame: unknown envelope type %q", env.Type)
	}
}

// DecodeRequest parses the payload of a request envelope.
func (e *Envelope) DecodeRequest() (*Request, error) {
	if e.Type != TypeRequest {
		return nil, fmt.Errorf("envelope is %q, not a request", e.Type)
	}
	var req Request
	if err := json.Unmarshal(e.Payload, &req); err != nil {
		return nil, fmt.Errorf("malformed request payload: %w", err)
	}
	return &req, nil
}

// DecodeResponse parses the payload of a response envelope.
func (e *Envelope) DecodeResponse() (*Response, error) {
	if e.Type != TypeResponse {
		return nil, fmt.Errorf("envelope is %q, not a response", e.Type)
	}
	var resp Response
	if err := json.Unmarshal(e.Payload, &resp); err != nil {
		return nil, fmt.Errorf("malformed response payload: %w", err)
	}
	return &resp, nil
}

// DecodeEvent parses the payload of an event envelope.
func (e *Envelope) DecodeEvent() (*Event, error) {
	if e.Type != TypeEvent {
		return nil, fmt.Errorf("envelope is %q, not an event", e.Type)
	}
	var ev Event
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}
	return &ev, nil
}
