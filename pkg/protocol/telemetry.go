package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Telemetry is a backend vehicle state frame.
//
// Pos and Rot are kept in the backend's coordinate frame exactly as
// received; a nil slice means the field was absent. Fields holds every
// top-level field except "type", so extra data reaches the display layer
// unmodified.
type Telemetry struct {
	Pos    []float64
	Rot    []float64
	Fields map[string]json.RawMessage
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Telemetry) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	delete(fields, "type")

	pos, err := vectorField(fields, "pos")
	if err != nil {
		return err
	}
	rot, err := vectorField(fields, "rot")
	if err != nil {
		return err
	}

	*t = Telemetry{Pos: pos, Rot: rot, Fields: fields}
	return nil
}

// MarshalJSON writes the frame back out with its discriminator.
func (t Telemetry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Fields)+3)
	for k, v := range t.Fields {
		out[k] = v
	}
	out["type"] = TypeTelemetry
	if t.Pos != nil {
		out["pos"] = t.Pos
	}
	if t.Rot != nil {
		out["rot"] = t.Rot
	}
	return json.Marshal(out)
}

// Set stores a passthrough field. Values that cannot be encoded are
// rejected and leave the frame unchanged.
func (t *Telemetry) Set(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	if t.Fields == nil {
		t.Fields = make(map[string]json.RawMessage)
	}
	t.Fields[name] = raw
	return nil
}

// Bytes returns the JSON-encoded telemetry frame.
func (t Telemetry) Bytes() ([]byte, error) {
	return json.Marshal(t)
}

// vectorField decodes an optional numeric array. JSON null counts as absent.
func vectorField(fields map[string]json.RawMessage, name string) ([]float64, error) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var v []float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("field %q: %w", name, err)
	}
	return v, nil
}

// Float returns a numeric passthrough field.
func (t Telemetry) Float(name string) (float64, bool) {
	raw, ok := t.Fields[name]
	if !ok {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

// Bool returns a boolean passthrough field.
func (t Telemetry) Bool(name string) (bool, bool) {
	raw, ok := t.Fields[name]
	if !ok {
		return false, false
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, false
	}
	return v, true
}

// Vector returns a numeric array passthrough field.
func (t Telemetry) Vector(name string) ([]float64, bool) {
	v, err := vectorField(t.Fields, name)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// Velocity is the simulator's "vel" field, backend frame.
func (t Telemetry) Velocity() ([]float64, bool) { return t.Vector("vel") }

// Battery is the simulator's 0..1 "battery" field.
func (t Telemetry) Battery() (float64, bool) { return t.Float("battery") }

// SimTime is the simulator clock in seconds.
func (t Telemetry) SimTime() (float64, bool) { return t.Float("time") }

// Collided reports the simulator's collision flag.
func (t Telemetry) Collided() bool {
	v, _ := t.Bool("collided")
	return v
}

// =============================================================================
// Camera
// =============================================================================

// Camera is an onboard camera frame.
type Camera struct {
	JPEG string `json:"jpeg"` // base64 encoded
}

// Decode returns the raw JPEG bytes.
func (c Camera) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(c.JPEG)
}

// NewCamera encodes raw JPEG bytes into a camera frame.
func NewCamera(jpeg []byte) Camera {
	return Camera{JPEG: base64.StdEncoding.EncodeToString(jpeg)}
}

// Bytes returns the JSON-encoded camera frame.
func (c Camera) Bytes() ([]byte, error) {
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		Camera
	}{TypeCamera, c})
}
