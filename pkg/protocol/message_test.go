package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantType MessageType
		wantErr  bool
	}{
		{"telemetry", `{"type":"telemetry","pos":[1,2,3]}`, TypeTelemetry, false},
		{"camera", `{"type":"camera","jpeg":"AAAA"}`, TypeCamera, false},
		{"unknown type", `{"type":"weather","wind":3}`, "weather", false},
		{"missing type", `{"pos":[1,2,3]}`, "", false},
		{"not json", `{"type":`, "", true},
		{"array", `[1,2,3]`, "", true},
		{"numeric type", `{"type":7}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if msg.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", msg.Type, tt.wantType)
			}
		})
	}
}

func TestParseMessageNotObject(t *testing.T) {
	_, err := ParseMessage([]byte(`"telemetry"`))
	if !errors.Is(err, ErrNotObject) {
		t.Errorf("ParseMessage() error = %v, want ErrNotObject", err)
	}
}

func TestCommandBytes(t *testing.T) {
	cmd := Command{Throttle: 0.6, Pitch: -0.35, Roll: 0.1, Yaw: 0}

	data, err := cmd.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if wire["type"] != "command" {
		t.Errorf("type = %v, want command", wire["type"])
	}
	for key, want := range map[string]float64{"throttle": 0.6, "pitch": -0.35, "roll": 0.1, "yaw": 0} {
		if wire[key] != want {
			t.Errorf("%s = %v, want %v", key, wire[key], want)
		}
	}
	if len(wire) != 5 {
		t.Errorf("command frame has %d fields, want exactly 5: %v", len(wire), wire)
	}

	msg, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	got, err := msg.Command()
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if got != cmd {
		t.Errorf("Command() = %+v, want %+v", got, cmd)
	}
}
