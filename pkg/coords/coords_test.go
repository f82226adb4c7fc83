package coords

import (
	"encoding/json"
	"testing"

	"github.com/teslashibe/go-flightdeck/pkg/protocol"
)

func TestPosition(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want Vec3
	}{
		{"swap up axis", []float64{1, 2, 3}, NewVec3(1, 3, 2)},
		{"absent", nil, Vec3{}},
		{"short", []float64{7}, NewVec3(7, 0, 0)},
		{"extra components ignored", []float64{1, 2, 3, 4}, NewVec3(1, 3, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Position(tt.in); got != tt.want {
				t.Errorf("Position(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRotation(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want Vec3
	}{
		{"cycle left", []float64{4, 5, 6}, NewVec3(5, 6, 4)},
		{"absent", nil, Vec3{}},
		{"yaw only", []float64{0, 0, 1.5}, NewVec3(0, 1.5, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Rotation(tt.in); got != tt.want {
				t.Errorf("Rotation(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMap(t *testing.T) {
	var tel protocol.Telemetry
	if err := json.Unmarshal([]byte(`{"type":"telemetry","pos":[1,2,3],"rot":[4,5,6]}`), &tel); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	first := Map(tel)
	if first.Position != NewVec3(1, 3, 2) {
		t.Errorf("Position = %v, want (1,3,2)", first.Position)
	}
	if first.Rotation != NewVec3(5, 6, 4) {
		t.Errorf("Rotation = %v, want (5,6,4)", first.Rotation)
	}

	// Same input, same output; the input is not modified.
	if second := Map(tel); second != first {
		t.Errorf("Map() not repeatable: %v then %v", first, second)
	}
	if tel.Pos[1] != 2 || tel.Rot[0] != 4 {
		t.Errorf("Map() mutated its input: %v %v", tel.Pos, tel.Rot)
	}
}

func TestMapNoVectors(t *testing.T) {
	pose := Map(protocol.Telemetry{})
	if pose.Position != (Vec3{}) || pose.Rotation != (Vec3{}) {
		t.Errorf("Map(empty) = %+v, want zero pose", pose)
	}
}
