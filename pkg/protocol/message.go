// Package protocol defines the realtime link's wire messages.
//
// Every frame is a flat JSON object tagged by a "type" field:
//
//	{"type":"telemetry","pos":[x,y,z],"rot":[r,p,y],...}   backend → console
//	{"type":"camera","jpeg":"<base64>"}                     backend → console
//	{"type":"command","throttle":t,"pitch":p,"roll":r,"yaw":y}  console → backend
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies the type of a link frame
type MessageType string

const (
	// Backend → console
	TypeTelemetry MessageType = "telemetry" // Vehicle state
	TypeCamera    MessageType = "camera"    // Onboard camera JPEG

	// Console → backend
	TypeCommand MessageType = "command" // Operator axes
)

// ErrNotObject is returned when a frame is valid JSON but not an object.
var ErrNotObject = errors.New("frame is not a JSON object")

// Message is a parsed frame whose payload has not been decoded yet.
type Message struct {
	Type MessageType
	Raw  json.RawMessage
}

// ParseMessage parses a frame far enough to read its type discriminator.
// A frame without a "type" field parses fine and carries an empty Type.
func ParseMessage(data []byte) (*Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "" {
			return nil, ErrNotObject
		}
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &Message{Type: head.Type, Raw: json.RawMessage(data)}, nil
}

// Telemetry decodes the payload as a telemetry frame.
func (m *Message) Telemetry() (Telemetry, error) {
	var t Telemetry
	if err := json.Unmarshal(m.Raw, &t); err != nil {
		return Telemetry{}, fmt.Errorf("failed to parse telemetry: %w", err)
	}
	return t, nil
}

// Camera decodes the payload as a camera frame.
func (m *Message) Camera() (Camera, error) {
	var c Camera
	if err := json.Unmarshal(m.Raw, &c); err != nil {
		return Camera{}, fmt.Errorf("failed to parse camera frame: %w", err)
	}
	return c, nil
}

// Command decodes the payload as an operator command.
func (m *Message) Command() (Command, error) {
	var c Command
	if err := json.Unmarshal(m.Raw, &c); err != nil {
		return Command{}, fmt.Errorf("failed to parse command: %w", err)
	}
	return c, nil
}

// =============================================================================
// Console → Backend
// =============================================================================

// Command is one sampling tick's merged operator intent.
type Command struct {
	Throttle float64 `json:"throttle"`
	Pitch    float64 `json:"pitch"`
	Roll     float64 `json:"roll"`
	Yaw      float64 `json:"yaw"`
}

// commandFrame adds the explicit discriminator on the wire.
type commandFrame struct {
	Type MessageType `json:"type"`
	Command
}

// Bytes returns the JSON-encoded command frame.
func (c Command) Bytes() ([]byte, error) {
	return json.Marshal(commandFrame{Type: TypeCommand, Command: c})
}
